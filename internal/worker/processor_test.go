package worker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Abishekvarshan/youtube-downloader/internal/artifact"
	"github.com/Abishekvarshan/youtube-downloader/internal/downloader"
	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
	"github.com/Abishekvarshan/youtube-downloader/internal/repository/memory"
	"github.com/Abishekvarshan/youtube-downloader/internal/worker"
)

// ---- fakes ----

type scriptedDownloader struct {
	events []downloader.Event
	write  bool
	err    error
	panic  bool
}

func (d *scriptedDownloader) Download(ctx context.Context, req downloader.Request, progress downloader.ProgressFunc) error {
	if d.panic {
		panic("boom")
	}
	for _, ev := range d.events {
		progress(ev)
	}
	if d.write {
		path := strings.NewReplacer("%(title).80B", "Clip", "%(ext)s", "mp4").Replace(req.OutputTemplate)
		if err := os.WriteFile(path, []byte(req.URL), 0o644); err != nil {
			return err
		}
	}
	return d.err
}

type recorder struct {
	mu       sync.Mutex
	statuses []entity.JobStatus
}

func (r *recorder) Observe(ctx context.Context, job entity.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, job.Status)
}

func (r *recorder) assertValidPath(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := entity.StatusQueued
	for _, s := range r.statuses {
		if s != prev && !entity.CanTransition(prev, s) {
			t.Fatalf("invalid observed transition %s -> %s in %v", prev, s, r.statuses)
		}
		prev = s
	}
}

func (r *recorder) assertStatuses(t *testing.T, want ...entity.JobStatus) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) != len(want) {
		t.Fatalf("expected observed %v, got %v", want, r.statuses)
	}
	for i := range want {
		if r.statuses[i] != want[i] {
			t.Fatalf("expected observed %v, got %v", want, r.statuses)
		}
	}
}

// ---- helpers ----

func setup(t *testing.T, dl downloader.Downloader) (*memory.JobRegistry, *artifact.Store, *recorder, *worker.Processor) {
	t.Helper()
	reg := memory.NewJobRegistry()
	store, err := artifact.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	rec := &recorder{}
	return reg, store, rec, worker.NewProcessor(reg, dl, store, rec)
}

// ---- tests ----

func TestProcessor_DownloadingFinishedDone(t *testing.T) {
	dl := &scriptedDownloader{
		events: []downloader.Event{
			{Phase: downloader.PhaseDownloading, Percent: "42.0%", Filename: "Clip.mp4"},
			{Phase: downloader.PhaseFinished, Filename: "Clip.mp4"},
		},
		write: true,
	}
	reg, store, rec, p := setup(t, dl)
	job := reg.Create("https://example.com/watch?v=1")

	if err := p.Process(context.Background(), job.ID, job.URL); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	got, _ := reg.Get(job.ID)
	if got.Status != entity.StatusDone {
		t.Fatalf("expected done, got %s (%#v)", got.Status, got.Error)
	}
	if !strings.HasPrefix(filepath.Base(got.Output), job.ID) {
		t.Fatalf("expected output prefixed by id, got %s", got.Output)
	}
	if filepath.Dir(got.Output) != store.Dir() {
		t.Fatalf("expected output in %s, got %s", store.Dir(), got.Output)
	}
	if _, err := os.Stat(got.Output); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
	if got.Error != nil {
		t.Fatalf("expected no error, got %#v", got.Error)
	}
	if len(got.Log) < 2 {
		t.Fatalf("expected at least 2 log entries, got %d", len(got.Log))
	}
	for i := 1; i < len(got.Log); i++ {
		if got.Log[i].Time.Before(got.Log[i-1].Time) {
			t.Fatalf("log not chronological at %d", i)
		}
	}
	if !strings.Contains(got.Log[0].Message, "42.0%") {
		t.Fatalf("expected first entry to carry the percentage, got %q", got.Log[0].Message)
	}
	rec.assertValidPath(t)
}

func TestProcessor_NoEventsStillWalksStateMachine(t *testing.T) {
	reg, _, rec, p := setup(t, &scriptedDownloader{write: true})
	job := reg.Create("u")

	_ = p.Process(context.Background(), job.ID, job.URL)

	got, _ := reg.Get(job.ID)
	if got.Status != entity.StatusDone {
		t.Fatalf("expected done, got %s", got.Status)
	}
	rec.assertValidPath(t)
	rec.assertStatuses(t, entity.StatusDownloading, entity.StatusFinishedDownload, entity.StatusDone)
}

func TestProcessor_FinishedOnlyEventWalksStateMachine(t *testing.T) {
	dl := &scriptedDownloader{
		events: []downloader.Event{{Phase: downloader.PhaseFinished, Filename: "Clip.mp4"}},
		write:  true,
	}
	reg, _, rec, p := setup(t, dl)
	job := reg.Create("u")

	if err := p.Process(context.Background(), job.ID, job.URL); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	got, _ := reg.Get(job.ID)
	if got.Status != entity.StatusDone || got.Output == "" {
		t.Fatalf("expected done with output, got %s %q", got.Status, got.Output)
	}
	rec.assertValidPath(t)
	rec.assertStatuses(t, entity.StatusDownloading, entity.StatusFinishedDownload, entity.StatusDone)
}

func TestProcessor_AuthRequired(t *testing.T) {
	dl := &scriptedDownloader{
		err: fmt.Errorf("%w: Sign in to confirm you're not a bot", downloader.ErrAuthRequired),
	}
	reg, _, rec, p := setup(t, dl)
	job := reg.Create("u")

	if err := p.Process(context.Background(), job.ID, job.URL); err == nil {
		t.Fatalf("expected download error to be returned")
	}

	got, _ := reg.Get(job.ID)
	if got.Status != entity.StatusError {
		t.Fatalf("expected error, got %s", got.Status)
	}
	if got.Error == nil || got.Error.Kind != entity.KindAuthRequired {
		t.Fatalf("expected auth_required, got %#v", got.Error)
	}
	if !strings.Contains(strings.ToLower(got.Error.Message), "login required") {
		t.Fatalf("expected login required message, got %q", got.Error.Message)
	}
	if got.Output != "" {
		t.Fatalf("expected no output, got %q", got.Output)
	}
	rec.assertValidPath(t)
}

func TestProcessor_ErrorEventSkipsResolution(t *testing.T) {
	dl := &scriptedDownloader{
		events: []downloader.Event{
			{Phase: downloader.PhaseDownloading, Percent: "10%"},
			{Phase: downloader.PhaseError, Err: errors.New("HTTP Error 403: Forbidden")},
		},
		write: true,
	}
	reg, _, _, p := setup(t, dl)
	job := reg.Create("u")

	_ = p.Process(context.Background(), job.ID, job.URL)

	got, _ := reg.Get(job.ID)
	if got.Status != entity.StatusError || got.Error.Kind != entity.KindNetwork {
		t.Fatalf("expected network error, got %s %#v", got.Status, got.Error)
	}
	if got.Output != "" {
		t.Fatalf("expected no output, got %q", got.Output)
	}
}

func TestProcessor_MissingArtifact(t *testing.T) {
	dl := &scriptedDownloader{
		events: []downloader.Event{{Phase: downloader.PhaseFinished}},
	}
	reg, _, rec, p := setup(t, dl)
	job := reg.Create("u")

	if err := p.Process(context.Background(), job.ID, job.URL); !errors.Is(err, artifact.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}

	got, _ := reg.Get(job.ID)
	if got.Status != entity.StatusError || got.Error.Kind != entity.KindResolution {
		t.Fatalf("expected resolution error, got %s %#v", got.Status, got.Error)
	}
	if got.Output != "" {
		t.Fatalf("expected no output, got %q", got.Output)
	}
	rec.assertValidPath(t)
	rec.assertStatuses(t, entity.StatusDownloading, entity.StatusFinishedDownload, entity.StatusError)
}

func TestProcessor_PanicBecomesInternalError(t *testing.T) {
	reg, _, _, p := setup(t, &scriptedDownloader{panic: true})
	job := reg.Create("u")

	if err := p.Process(context.Background(), job.ID, job.URL); err == nil {
		t.Fatalf("expected error from recovered panic")
	}

	got, _ := reg.Get(job.ID)
	if got.Status != entity.StatusError || got.Error.Kind != entity.KindInternal {
		t.Fatalf("expected internal error, got %s %#v", got.Status, got.Error)
	}
}

func TestProcessor_UnknownJobExitsQuietly(t *testing.T) {
	dl := &scriptedDownloader{write: true}
	_, _, _, p := setup(t, dl)

	if err := p.Process(context.Background(), "ghost", "u"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestProcessor_ConcurrentJobsDoNotCrossWrite(t *testing.T) {
	dl := &scriptedDownloader{
		events: []downloader.Event{
			{Phase: downloader.PhaseDownloading, Percent: "50%"},
			{Phase: downloader.PhaseFinished},
		},
		write: true,
	}
	reg, _, _, p := setup(t, dl)

	const n = 8
	jobs := make([]entity.Job, n)
	for i := range jobs {
		jobs[i] = reg.Create(fmt.Sprintf("https://example.com/%d", i))
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j entity.Job) {
			defer wg.Done()
			_ = p.Process(context.Background(), j.ID, j.URL)
		}(j)
	}
	wg.Wait()

	for _, j := range jobs {
		got, _ := reg.Get(j.ID)
		if got.Status != entity.StatusDone {
			t.Fatalf("job %s: expected done, got %s", j.ID, got.Status)
		}
		if !strings.HasPrefix(filepath.Base(got.Output), j.ID) {
			t.Fatalf("job %s: output %s belongs to another job", j.ID, got.Output)
		}
		body, err := os.ReadFile(got.Output)
		if err != nil || string(body) != j.URL {
			t.Fatalf("job %s: expected artifact written for %s, got %q (%v)", j.ID, j.URL, body, err)
		}
		if len(got.Log) != 3 {
			t.Fatalf("job %s: expected 3 log entries, got %d", j.ID, len(got.Log))
		}
	}
}
