package worker

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Abishekvarshan/youtube-downloader/internal/downloader"
	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
	"github.com/Abishekvarshan/youtube-downloader/internal/observability"
)

type JobRegistry interface {
	Get(id string) (entity.Job, error)
	Mutate(id string, fn func(j *entity.Job, now time.Time) error) (entity.Job, error)
}

// Artifacts maps a job to where its file is written and where it ended up.
type Artifacts interface {
	Template(id string) string
	Locate(ctx context.Context, id string) (string, error)
}

// Observer receives a snapshot after every change the worker applies.
type Observer interface {
	Observe(ctx context.Context, job entity.Job)
}

type Processor struct {
	registry   JobRegistry
	downloader downloader.Downloader
	artifacts  Artifacts
	observers  []Observer
}

func NewProcessor(registry JobRegistry, dl downloader.Downloader, artifacts Artifacts, observers ...Observer) *Processor {
	return &Processor{
		registry:   registry,
		downloader: dl,
		artifacts:  artifacts,
		observers:  observers,
	}
}

func (p *Processor) observe(ctx context.Context, job entity.Job) {
	for _, o := range p.observers {
		o.Observe(ctx, job)
	}
}

// Process runs one job to a terminal state. Failures are recorded on the job;
// the returned error is informational only.
func (p *Processor) Process(ctx context.Context, jobID, url string) (err error) {
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "job.process",
		attribute.String("job.id", jobID),
		attribute.String("job.url", url),
	)
	defer span.End()

	if _, gerr := p.registry.Get(jobID); gerr != nil {
		log.Printf("[worker] job_id=%s registry entry missing, exiting", jobID)
		return nil
	}

	rep := newReporter(jobID, p.registry, func(j entity.Job) { p.observe(ctx, j) })
	defer rep.Close()

	defer func() {
		if rec := recover(); rec != nil {
			rep.Close()
			err = fmt.Errorf("panic: %v", rec)
			p.fail(ctx, jobID, entity.KindInternal, "internal error: "+fmt.Sprint(rec))
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	log.Printf("[worker] job_id=%s url=%s status=starting", jobID, url)

	dlErr := p.downloader.Download(ctx, downloader.Request{
		URL:            url,
		OutputTemplate: p.artifacts.Template(jobID),
	}, rep.Report)
	rep.Close()

	job, gerr := p.registry.Get(jobID)
	if gerr != nil {
		log.Printf("[worker] job_id=%s registry entry vanished during download", jobID)
		return nil
	}
	if job.Status == entity.StatusError {
		msg := job.Error.Message
		log.Printf("[worker] job_id=%s status=error duration_ms=%d error=%s",
			jobID, time.Since(start).Milliseconds(), msg,
		)
		span.SetStatus(codes.Error, msg)
		return nil
	}

	if dlErr != nil {
		kind, msg := classifyDownloadError(dlErr)
		p.fail(ctx, jobID, kind, msg)
		log.Printf("[worker] job_id=%s status=error kind=%s duration_ms=%d error=%s",
			jobID, kind, time.Since(start).Milliseconds(), msg,
		)
		span.SetStatus(codes.Error, msg)
		return dlErr
	}

	// one state per commit so observers see downloading before finished_download
	reached := job.Status == entity.StatusFinishedDownload
	for !reached {
		snap, err := p.registry.Mutate(jobID, func(j *entity.Job, now time.Time) error {
			var serr error
			reached, serr = j.Step(entity.StatusFinishedDownload, now)
			if serr != nil {
				return serr
			}
			if reached {
				j.Progress = 100
				j.Logf(now, "download finished")
			}
			return nil
		})
		if err != nil {
			log.Printf("[worker] job_id=%s advance to finished_download error=%v", jobID, err)
			return err
		}
		p.observe(ctx, snap)
	}

	path, lerr := p.artifacts.Locate(ctx, jobID)
	if lerr != nil {
		msg := "download reported success but no output file was found"
		p.fail(ctx, jobID, entity.KindResolution, msg)
		log.Printf("[worker] job_id=%s status=error kind=%s error=%v", jobID, entity.KindResolution, lerr)
		span.SetStatus(codes.Error, msg)
		return lerr
	}

	snap, err := p.registry.Mutate(jobID, func(j *entity.Job, now time.Time) error {
		if err := j.Complete(path, now); err != nil {
			return err
		}
		j.Logf(now, "done: %s", filepath.Base(path))
		return nil
	})
	if err != nil {
		log.Printf("[worker] job_id=%s set_done error=%v", jobID, err)
		return err
	}
	p.observe(ctx, snap)

	span.SetAttributes(attribute.String("job.output", filepath.Base(path)))
	log.Printf("[worker] job_id=%s status=done output=%s duration_ms=%d",
		jobID, filepath.Base(path), time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, jobID string, kind entity.ErrorKind, msg string) {
	snap, err := p.registry.Mutate(jobID, func(j *entity.Job, now time.Time) error {
		if err := j.Fail(kind, msg, now); err != nil {
			return err
		}
		j.Logf(now, "error: %s", msg)
		return nil
	})
	if err != nil {
		log.Printf("[worker] job_id=%s set_error error=%v", jobID, err)
		return
	}
	p.observe(ctx, snap)
}
