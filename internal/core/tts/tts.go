// Package tts turns text into model speech and optionally plays it locally.
package tts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/steveyiyo/livetutor/internal/audio/pcm"
	"github.com/steveyiyo/livetutor/internal/audio/playback"
)

const DefaultVoice = "Kore"

var ErrNoAudio = errors.New("tts: no audio returned")

// Speech is synthesized audio: raw PCM16 plus its decoded form.
type Speech struct {
	Voice    string
	PCM      []byte
	Audio    *pcm.Buffer
	Duration time.Duration
}

func NewSpeech(voice string, data []byte) (*Speech, error) {
	buf, err := pcm.Decode(data, pcm.OutputSampleRate, 1)
	if err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, ErrNoAudio
	}
	return &Speech{
		Voice:    voice,
		PCM:      data,
		Audio:    buf,
		Duration: time.Duration(buf.Duration() * float64(time.Second)),
	}, nil
}

type Provider interface {
	Synthesize(ctx context.Context, text, voice string) (*Speech, error)
}

// Cache memoizes a Provider by text and voice in an LRU. Concurrent
// requests for the same speech share one upstream call.
type Cache struct {
	p     Provider
	lru   *lru.Cache[string, *Speech]
	group singleflight.Group
}

func NewCache(p Provider, size int) (*Cache, error) {
	l, err := lru.New[string, *Speech](size)
	if err != nil {
		return nil, fmt.Errorf("tts: cache: %w", err)
	}
	return &Cache{p: p, lru: l}, nil
}

func (c *Cache) Synthesize(ctx context.Context, text, voice string) (*Speech, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	k := key(text, voice)
	if s, ok := c.lru.Get(k); ok {
		return s, nil
	}
	v, err, _ := c.group.Do(k, func() (any, error) {
		if s, ok := c.lru.Get(k); ok {
			return s, nil
		}
		s, err := c.p.Synthesize(ctx, text, voice)
		if err != nil {
			return nil, err
		}
		c.lru.Add(k, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Speech), nil
}

func key(text, voice string) string {
	h := sha1.New()
	h.Write([]byte(voice + "\x00" + text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Speaker plays speech on a local output, queued back to back.
type Speaker struct {
	sched *playback.Scheduler
}

func NewSpeaker(out playback.Output) *Speaker {
	return &Speaker{sched: playback.NewScheduler(out)}
}

// Speak schedules s and returns when it will start, in output seconds.
func (sp *Speaker) Speak(s *Speech) (float64, error) {
	return sp.sched.Schedule(s.Audio)
}
