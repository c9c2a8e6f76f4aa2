// Package notify fans job changes out to external subscribers.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
)

const publishTimeout = 2 * time.Second

// Publisher is the subset of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes a JSON entity.JobEvent for every observed change.
// Publishing is best effort: failures are logged and never reach the job.
type RedisPublisher struct {
	rdb     Publisher
	channel string
}

func NewRedisPublisher(rdb Publisher, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Observe(ctx context.Context, job entity.Job) {
	payload, err := json.Marshal(entity.EventFrom(job))
	if err != nil {
		log.Printf("[notify] job_id=%s marshal event error=%v", job.ID, err)
		return
	}

	// the job context lives as long as the download; bound each publish separately
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		log.Printf("[notify] job_id=%s channel=%s publish error=%v", job.ID, p.channel, err)
	}
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
