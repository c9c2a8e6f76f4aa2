package memory

import (
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
)

var ErrNotFound = errors.New("not found")

const shardCount = 32

type entry struct {
	mu  sync.Mutex
	job *entity.Job
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// JobRegistry keeps every job of the process in memory.
// Shards guard the id -> entry map; each entry has its own lock,
// so a worker updating one job never blocks readers of another.
type JobRegistry struct {
	shards [shardCount]*shard
	now    func() time.Time
	newID  func() string
}

func NewJobRegistry() *JobRegistry {
	r := &JobRegistry{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return r
}

func (r *JobRegistry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return r.shards[h.Sum32()%shardCount]
}

// Create registers a queued job for url under a fresh id.
func (r *JobRegistry) Create(url string) entity.Job {
	for {
		id := r.newID()
		s := r.shardFor(id)

		s.mu.Lock()
		if _, taken := s.entries[id]; taken {
			s.mu.Unlock()
			continue
		}
		j := entity.NewJob(id, url, r.now())
		s.entries[id] = &entry{job: j}
		snap := j.Clone()
		s.mu.Unlock()

		return snap
	}
}

func (r *JobRegistry) lookup(id string) (*entry, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	return e, ok
}

// Get returns a consistent snapshot of the job.
func (r *JobRegistry) Get(id string) (entity.Job, error) {
	e, ok := r.lookup(id)
	if !ok {
		return entity.Job{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Mutate applies fn to the job under its lock and returns the resulting snapshot.
// fn must validate before changing anything: a non-nil error is returned as is.
// An unknown id is logged and reported as ErrNotFound.
func (r *JobRegistry) Mutate(id string, fn func(j *entity.Job, now time.Time) error) (entity.Job, error) {
	e, ok := r.lookup(id)
	if !ok {
		log.Printf("[registry] job_id=%s mutate on unknown job", id)
		return entity.Job{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.job, r.now()); err != nil {
		return e.job.Clone(), err
	}
	return e.job.Clone(), nil
}

// Len returns the number of registered jobs.
func (r *JobRegistry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
