package worker

import (
	"errors"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Abishekvarshan/youtube-downloader/internal/downloader"
	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
)

const eventBuffer = 64

// reporter turns downloader phase events into job state changes.
// Report only enqueues; a single updater goroutine applies events in arrival order,
// so the downloader never waits on registry locks.
type reporter struct {
	jobID    string
	registry JobRegistry
	notify   func(entity.Job)

	mu     sync.Mutex
	closed bool
	events chan downloader.Event
	done   chan struct{}
}

func newReporter(jobID string, registry JobRegistry, notify func(entity.Job)) *reporter {
	r := &reporter{
		jobID:    jobID,
		registry: registry,
		notify:   notify,
		events:   make(chan downloader.Event, eventBuffer),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Report is the downloader.ProgressFunc bound to one job.
func (r *reporter) Report(ev downloader.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Printf("[progress] job_id=%s phase=%s dropped: reporter closed", r.jobID, ev.Phase)
		return
	}
	r.events <- ev
}

// Close stops accepting events and waits until every queued event is applied.
func (r *reporter) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *reporter) run() {
	defer close(r.done)
	for ev := range r.events {
		r.apply(ev)
	}
}

// apply commits ev one state change at a time, so every intermediate
// status reaches observers as its own snapshot.
func (r *reporter) apply(ev downloader.Event) {
	for {
		var done bool
		snap, err := r.registry.Mutate(r.jobID, func(j *entity.Job, now time.Time) error {
			var aerr error
			done, aerr = applyEvent(j, ev, now)
			return aerr
		})
		if err != nil {
			log.Printf("[progress] job_id=%s phase=%s skipped: %v", r.jobID, ev.Phase, err)
			return
		}
		r.publish(snap)
		if done {
			return
		}
	}
}

func (r *reporter) publish(snap entity.Job) {
	if r.notify == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[progress] job_id=%s status=%s observer panic: %v", r.jobID, snap.Status, rec)
		}
	}()
	r.notify(snap)
}

// applyEvent applies at most one status transition for ev and reports whether
// ev is fully applied. A finished event on a queued job first moves it to downloading.
func applyEvent(j *entity.Job, ev downloader.Event, now time.Time) (bool, error) {
	name := ev.Filename
	if name == "" {
		name = "file"
	}

	switch ev.Phase {
	case downloader.PhaseDownloading:
		if j.Status == entity.StatusFinishedDownload {
			// yt-dlp fetches merged formats as separate streams
			j.Logf(now, "downloading %s: %s (additional stream)", name, formatPercent(ParsePercent(ev.Percent)))
			return true, nil
		}
		if _, err := j.Step(entity.StatusDownloading, now); err != nil {
			return true, err
		}
		j.Progress = ParsePercent(ev.Percent)
		j.Logf(now, "downloading %s: %s", name, formatPercent(j.Progress))

	case downloader.PhaseFinished:
		reached, err := j.Step(entity.StatusFinishedDownload, now)
		if err != nil {
			return true, err
		}
		if !reached {
			j.Logf(now, "downloading %s", name)
			return false, nil
		}
		j.Progress = 100
		j.Logf(now, "finished downloading %s, processing", name)

	case downloader.PhaseError:
		err := ev.Err
		if err == nil {
			err = errors.New("download reported an error")
		}
		kind, msg := classifyDownloadError(err)
		if ferr := j.Fail(kind, msg, now); ferr != nil {
			return true, ferr
		}
		j.Logf(now, "error: %s", msg)

	default:
		return true, errors.New("unknown phase " + string(ev.Phase))
	}
	return true, nil
}

// ParsePercent reads a yt-dlp style percentage (" 42.0%") and falls back to 0.
func ParsePercent(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func classifyDownloadError(err error) (entity.ErrorKind, string) {
	if errors.Is(err, downloader.ErrAuthRequired) || downloader.IsAuthMessage(err.Error()) {
		msg := err.Error()
		if !strings.HasPrefix(msg, downloader.ErrAuthRequired.Error()) {
			msg = downloader.ErrAuthRequired.Error() + ": " + msg
		}
		return entity.KindAuthRequired, msg
	}
	return entity.KindNetwork, "download failed: " + err.Error()
}
