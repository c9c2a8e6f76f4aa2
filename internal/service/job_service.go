package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/Abishekvarshan/youtube-downloader/internal/artifact"
	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrURLRequired = errors.New("url is required")
	ErrBusy        = errors.New("too many jobs in flight")
	ErrNoArtifact  = errors.New("job has no artifact")
)

// Registry port (implementation: memory.JobRegistry)
type JobRegistry interface {
	Create(url string) entity.Job
	Get(id string) (entity.Job, error)
	Mutate(id string, fn func(j *entity.Job, now time.Time) error) (entity.Job, error)
}

// Launcher hands jobs to background workers (implementation: worker.Pool).
// Reserve fails when no capacity is left; start must then not be called.
type Launcher interface {
	Reserve() (start func(jobID, url string), err error)
}

type ArtifactStore interface {
	OpenArtifact(ctx context.Context, path string) (*artifact.Object, error)
}

type JobService struct {
	registry  JobRegistry
	launcher  Launcher
	artifacts ArtifactStore
}

func NewJobService(registry JobRegistry, launcher Launcher, artifacts ArtifactStore) *JobService {
	return &JobService{registry: registry, launcher: launcher, artifacts: artifacts}
}

// Submit registers a queued job for url and starts it in the background.
// It returns as soon as the job is registered.
func (s *JobService) Submit(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", ErrURLRequired
	}

	start, err := s.launcher.Reserve()
	if err != nil {
		log.Printf("[service] submit rejected url=%s error=%v", url, err)
		return "", errors.Join(ErrBusy, err)
	}

	job := s.registry.Create(url)
	if _, err := s.registry.Mutate(job.ID, func(j *entity.Job, now time.Time) error {
		j.Logf(now, "starting download of %s", url)
		return nil
	}); err != nil {
		log.Printf("[service] job_id=%s initial log error=%v", job.ID, err)
	}

	start(job.ID, url)
	log.Printf("[service] job_id=%s url=%s status=queued", job.ID, url)
	return job.ID, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (entity.Job, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return entity.Job{}, errors.Join(ErrJobNotFound, err)
	}
	return job, nil
}

// OpenArtifact opens the file of a done job. Jobs in any other state yield ErrNoArtifact.
func (s *JobService) OpenArtifact(ctx context.Context, id string) (entity.Job, *artifact.Object, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return entity.Job{}, nil, err
	}
	if job.Status != entity.StatusDone || job.Output == "" {
		return job, nil, ErrNoArtifact
	}

	obj, err := s.artifacts.OpenArtifact(ctx, job.Output)
	if err != nil {
		if errors.Is(err, artifact.ErrArtifactNotFound) {
			log.Printf("[service] job_id=%s artifact missing on disk path=%s", id, job.Output)
			return job, nil, errors.Join(ErrNoArtifact, err)
		}
		return job, nil, err
	}
	return job, obj, nil
}
