package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mapvivid/cityroute/internal/model"
)

// MemoryStore is an in-process Store with the same transition and
// subscription semantics as RedisStore. It backs unit tests and local
// runs without Redis.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	subs   map[string]map[int]chan *model.Job
	nextID int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*model.Job),
		subs: make(map[string]map[int]chan *model.Job),
	}
}

func cloneJob(job *model.Job) *model.Job {
	raw, _ := json.Marshal(job)
	out := &model.Job{}
	_ = json.Unmarshal(raw, out)
	return out
}

func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return errors.Wrapf(ErrExists, "job %s", job.ID)
	}

	now := time.Now().UTC()
	job.Status = model.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = cloneJob(job)
	s.notifyLocked(job.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "job %s", id)
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) ClaimRunning(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, errors.Wrapf(ErrNotFound, "job %s", id)
	}
	if job.Status != model.JobStatusQueued {
		return false, nil
	}
	job.Status = model.JobStatusRunning
	job.UpdatedAt = time.Now().UTC()
	s.notifyLocked(id)
	return true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id string, result *model.ItineraryResult, debug *model.DebugInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "job %s", id)
	}
	if job.Status != model.JobStatusRunning {
		return errors.Wrapf(ErrConflict, "complete job %s in status %s", id, job.Status)
	}
	job.Status = model.JobStatusDone
	job.Result = result
	job.Debug = debug
	job.UpdatedAt = time.Now().UTC()
	s.notifyLocked(id)
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, id string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "job %s", id)
	}
	if job.Status != model.JobStatusRunning {
		return errors.Wrapf(ErrConflict, "fail job %s in status %s", id, job.Status)
	}
	job.Status = model.JobStatusError
	job.Error = Truncate(msg)
	job.UpdatedAt = time.Now().UTC()
	s.notifyLocked(id)
	return nil
}

// notifyLocked pushes the current snapshot to every subscriber. Buffered
// channels collapse bursts: a slow reader sees the latest state, not
// every intermediate one, matching the push-transport guarantee.
func (s *MemoryStore) notifyLocked(id string) {
	job := s.jobs[id]
	for _, ch := range s.subs[id] {
		snap := cloneJob(job)
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (s *MemoryStore) Subscribe(ctx context.Context, id string) (<-chan *model.Job, func(), error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, errors.Wrapf(ErrNotFound, "job %s", id)
	}

	ch := make(chan *model.Job, 4)
	ch <- cloneJob(job)

	if s.subs[id] == nil {
		s.subs[id] = make(map[int]chan *model.Job)
	}
	key := s.nextID
	s.nextID++
	s.subs[id][key] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[id], key)
			if len(s.subs[id]) == 0 {
				delete(s.subs, id)
			}
			s.mu.Unlock()
			close(ch)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel, nil
}

func (s *MemoryStore) Close() error { return nil }
