package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
	"github.com/Abishekvarshan/youtube-downloader/internal/notify"
)

type publishCall struct {
	channel string
	message []byte
}

type fakePublisher struct {
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.calls = append(f.calls, publishCall{channel: channel, message: message.([]byte)})
	return redis.NewIntResult(1, f.err)
}

func TestRedisPublisher_PublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	p := notify.NewRedisPublisher(pub, "jobs:events")

	now := time.Now().UTC()
	job := entity.NewJob("abc", "https://example.com", now)
	job.Logf(now, "downloading x: 42.0%%")
	_ = job.Transition(entity.StatusDownloading, now)
	job.Progress = 42

	p.Observe(context.Background(), job.Clone())

	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	if pub.calls[0].channel != "jobs:events" {
		t.Fatalf("expected channel jobs:events, got %s", pub.calls[0].channel)
	}

	var ev entity.JobEvent
	if err := json.Unmarshal(pub.calls[0].message, &ev); err != nil {
		t.Fatalf("invalid event json: %v", err)
	}
	if ev.JobID != "abc" || ev.Status != entity.StatusDownloading || ev.Progress != 42 {
		t.Fatalf("unexpected event %#v", ev)
	}
	if ev.Message != "downloading x: 42.0%" {
		t.Fatalf("expected last log entry as message, got %q", ev.Message)
	}
	if ev.Output {
		t.Fatalf("expected has_output=false")
	}
}

func TestRedisPublisher_ErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	p := notify.NewRedisPublisher(pub, "jobs:events")

	job := entity.NewJob("abc", "u", time.Now())
	p.Observe(context.Background(), job.Clone())

	if len(pub.calls) != 1 {
		t.Fatalf("expected publish attempted once, got %d", len(pub.calls))
	}
}

func TestRedisPublisher_CancelledJobContextStillPublishes(t *testing.T) {
	pub := &fakePublisher{}
	p := notify.NewRedisPublisher(pub, "c")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Observe(ctx, entity.NewJob("abc", "u", time.Now()).Clone())

	if len(pub.calls) != 1 {
		t.Fatalf("expected publish despite cancelled context, got %d", len(pub.calls))
	}
}
