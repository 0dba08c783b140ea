// Package redispub fans fired transformations out to a Redis pub/sub channel.
package redispub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"dyewash.ai/internal/sim/bleach"
)

type Config struct {
	Addr    string
	Channel string
	// QueueSize bounds transforms waiting to be published. Defaults to 4096.
	QueueSize int
	// PublishTimeout bounds one PUBLISH round trip. Defaults to 1s.
	PublishTimeout time.Duration
}

// Message is the JSON payload published per transformation.
type Message struct {
	RunID     string           `json:"run_id,omitempty"`
	WorldID   string           `json:"world_id"`
	Transform bleach.Transform `json:"transform"`
}

type Publisher struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	runID   string
	worldID string
	log     zerolog.Logger

	ch     chan bleach.Transform
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

func New(cfg Config, worldID, runID string, logger zerolog.Logger) (*Publisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 2 * time.Second,
		MaxRetries:  1,
	})
	return newWithClient(client, cfg, worldID, runID, logger), nil
}

func newWithClient(client redis.UniversalClient, cfg Config, worldID, runID string, logger zerolog.Logger) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = time.Second
	}
	if cfg.Channel == "" {
		cfg.Channel = "dyewash:transforms"
	}
	p := &Publisher{
		client:  client,
		channel: cfg.Channel,
		timeout: cfg.PublishTimeout,
		runID:   runID,
		worldID: worldID,
		log:     logger,
		ch:      make(chan bleach.Transform, cfg.QueueSize),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop()
	}()
	return p
}

// Ping checks connectivity once; the publisher keeps running on failure.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// RecordTransform queues t for publishing and drops it when the queue is full.
// It must not run concurrently with Close: callers stop the world loop that
// records transforms before closing the publisher.
func (p *Publisher) RecordTransform(t bleach.Transform) {
	if p == nil || p.closed.Load() {
		return
	}
	select {
	case p.ch <- t:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close drains queued transforms and closes the client. Call it only after the
// last RecordTransform has returned; a send racing Close panics on the closed queue.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.ch)
		p.wg.Wait()
		err = p.client.Close()
	})
	return err
}

func (p *Publisher) loop() {
	for t := range p.ch {
		b, err := json.Marshal(Message{RunID: p.runID, WorldID: p.worldID, Transform: t})
		if err != nil {
			p.failed.Add(1)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = p.client.Publish(ctx, p.channel, b).Err()
		cancel()
		if err != nil {
			// Log the first failure and then every 100th to keep a dead Redis quiet.
			if n := p.failed.Add(1); n == 1 || n%100 == 0 {
				p.log.Warn().Err(err).Uint64("failed", n).Msg("redis publish failed")
			}
			continue
		}
		p.published.Add(1)
	}
}
