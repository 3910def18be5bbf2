package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

type EventType string

const (
	EnrichmentCompleted EventType = "enrichment.completed"
	EnrichmentFailed    EventType = "enrichment.failed"
	VettingCompleted    EventType = "vetting.completed"
	VettingFailed       EventType = "vetting.failed"
)

// Event is the pipeline notification consumed by the API layer and notifiers.
type Event struct {
	Type        EventType      `json:"type"`
	MediaID     uuid.UUID      `json:"media_id"`
	CampaignID  *uuid.UUID     `json:"campaign_id,omitempty"`
	DiscoveryID *uuid.UUID     `json:"discovery_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	At          time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// New returns a Redis publisher, or a no-op publisher when Addr is empty.
func New(log *logger.Logger, cfg Config) (Publisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		log.Info("REDIS_ADDR not set; pipeline events disabled")
		return Nop(), nil
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = "podreach.pipeline"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisBus{
		log:     log.With("service", "EventBus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func Encode(ev Event) ([]byte, error) {
	if ev.Type == "" {
		return nil, fmt.Errorf("event type required")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return json.Marshal(ev)
}

func (b *redisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Type, err)
	}
	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

type nopBus struct{}

func Nop() Publisher { return nopBus{} }

func (nopBus) Publish(context.Context, Event) error { return nil }
func (nopBus) Close() error                         { return nil }

// Recorder keeps published events in memory. Tests use it in place of Redis.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Type
	}
	return out
}
