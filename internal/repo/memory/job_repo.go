package memory

import (
	"sync"

	"github.com/steveyiyo/livetutor/internal/core/video"
)

// JobRepo keeps video jobs in process memory.
type JobRepo struct {
	mu sync.Mutex
	m  sync.Map
}

func NewJobRepo() *JobRepo {
	return &JobRepo{}
}

func (r *JobRepo) Save(j video.Job) {
	r.m.Store(j.ID, j)
}

func (r *JobRepo) Get(id string) (video.Job, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return video.Job{}, false
	}
	return v.(video.Job), true
}

func (r *JobRepo) Update(id string, fn func(*video.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.m.Load(id)
	if !ok {
		return false
	}
	j := v.(video.Job)
	fn(&j)
	r.m.Store(id, j)
	return true
}
