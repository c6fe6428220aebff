// Package stream publishes failure records to a redis stream for external consumers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"faillog/internal/dispatch"
)

// Producer appends records to one stream key.
type Producer struct {
	client *redis.Client
	key    string
	maxLen int64
}

// Options configures NewProducer.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxLen   int64
}

func NewProducer(ctx context.Context, opts Options) (*Producer, error) {
	if opts.Key == "" {
		return nil, errors.New("stream: key is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("stream: ping %s: %w", opts.Addr, err)
	}
	return &Producer{client: client, key: opts.Key, maxLen: opts.MaxLen}, nil
}

func (p *Producer) Name() string { return "stream" }

// Publish adds r as one entry with kind, id and the JSON payload.
func (p *Producer) Publish(ctx context.Context, r dispatch.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.key,
		Values: map[string]any{
			"id":      r.Event.ID,
			"kind":    string(r.Event.Kind),
			"line":    r.Line,
			"payload": string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("stream: xadd %s: %w", p.key, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.client.Close()
}
