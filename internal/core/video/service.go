// Package video tracks image-to-video generation jobs.
package video

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoImage       = errors.New("video: an image is required")
	ErrBadImage      = errors.New("video: attachment is not an image")
	ErrAspectRatio   = errors.New("video: aspect ratio must be 16:9 or 9:16")
	ErrNotFound      = errors.New("video: job not found")
	ErrServiceClosed = errors.New("video: service closed")
)

const (
	Landscape = "16:9"
	Portrait  = "9:16"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Request struct {
	Prompt      string
	Image       []byte
	MIMEType    string
	AspectRatio string
}

func (r *Request) validate() error {
	if len(r.Image) == 0 {
		return ErrNoImage
	}
	if !strings.HasPrefix(r.MIMEType, "image/") {
		return ErrBadImage
	}
	switch r.AspectRatio {
	case "":
		r.AspectRatio = Landscape
	case Landscape, Portrait:
	default:
		return ErrAspectRatio
	}
	return nil
}

type Job struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	AspectRatio string    `json:"aspect_ratio"`
	Status      Status    `json:"status"`
	URI         string    `json:"uri,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Generator produces a video and returns where it can be downloaded.
type Generator interface {
	GenerateVideo(ctx context.Context, req Request) (string, error)
}

type Repo interface {
	Save(j Job)
	Get(id string) (Job, bool)
	Update(id string, fn func(*Job)) bool
}

type Service struct {
	gen  Generator
	repo Repo
	log  *slog.Logger
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewService(gen Generator, repo Repo, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{gen: gen, repo: repo, log: log, now: time.Now, ctx: ctx, cancel: cancel}
}

// Submit records a pending job and starts generating in the background.
func (s *Service) Submit(req Request) (Job, error) {
	if err := req.validate(); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Job{}, ErrServiceClosed
	}
	now := s.now()
	j := Job{
		ID:          uuid.NewString(),
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.repo.Save(j)
	s.wg.Add(1)
	go s.run(j.ID, req)
	return j, nil
}

func (s *Service) run(id string, req Request) {
	defer s.wg.Done()
	s.set(id, func(j *Job) { j.Status = StatusRunning })
	log := s.log.With("job", id)
	log.Info("video generation started", "aspect_ratio", req.AspectRatio)

	uri, err := s.gen.GenerateVideo(s.ctx, req)
	if err != nil {
		log.Error("video generation failed", "err", err)
		s.set(id, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
		})
		return
	}
	log.Info("video generation finished")
	s.set(id, func(j *Job) {
		j.Status = StatusSucceeded
		j.URI = uri
	})
}

func (s *Service) set(id string, fn func(*Job)) {
	now := s.now()
	s.repo.Update(id, func(j *Job) {
		fn(j)
		j.UpdatedAt = now
	})
}

func (s *Service) Get(id string) (Job, error) {
	j, ok := s.repo.Get(id)
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

// Close cancels running jobs and waits for them to record their outcome.
// Later Submits fail with ErrServiceClosed.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
