// Package kafka carries the push channel over a Kafka topic keyed by entity id.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/99minutos/job-tracking/internal/core/domain"
)

const readRetryDelay = time.Second

// ErrHubClosed is returned by Subscribe once the hub has been closed.
var ErrHubClosed = errors.New("position hub closed")

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// HubConfig selects the topic read by a PositionHub. Every service instance
// needs every entity's positions, so GroupID must be unique per instance.
type HubConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// PositionHub reads the positions topic once and fans records out to the
// listeners of their entity.
type PositionHub struct {
	reader messageReader
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	subs   map[string]map[uint64]func(domain.PositionRecord)
	nextID uint64
}

// NewPositionHub creates a hub reading from the latest offset of cfg.Topic.
func NewPositionHub(cfg HubConfig, log zerolog.Logger) *PositionHub {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafkago.LastOffset,
	})
	return newPositionHub(reader, log)
}

func newPositionHub(reader messageReader, log zerolog.Logger) *PositionHub {
	return &PositionHub{
		reader: reader,
		log:    log.With().Str("component", "kafka_position_hub").Logger(),
		subs:   make(map[string]map[uint64]func(domain.PositionRecord)),
	}
}

// Run consumes the topic until ctx is cancelled. Read errors are logged and
// retried; listeners miss nothing the poll channel cannot recover.
func (h *PositionHub) Run(ctx context.Context) error {
	for {
		msg, err := h.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.log.Warn().Err(err).Msg("kafka read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}
		h.dispatch(msg)
	}
}

func (h *PositionHub) dispatch(msg kafkago.Message) {
	var rec domain.PositionRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		h.log.Debug().Err(err).Int64("offset", msg.Offset).Msg("malformed position message ignored")
		return
	}
	if rec.EntityID == "" {
		rec.EntityID = string(msg.Key)
	}

	h.mu.RLock()
	listeners := make([]func(domain.PositionRecord), 0, len(h.subs[rec.EntityID]))
	for _, fn := range h.subs[rec.EntityID] {
		listeners = append(listeners, fn)
	}
	h.mu.RUnlock()

	for _, fn := range listeners {
		fn(rec)
	}
}

// Subscribe registers fn for entityID. It satisfies ports.PositionSubscriber.
func (h *PositionHub) Subscribe(_ context.Context, entityID string, fn func(domain.PositionRecord)) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("subscribe %s: %w", entityID, ErrHubClosed)
	}
	id := h.nextID
	h.nextID++
	if h.subs[entityID] == nil {
		h.subs[entityID] = make(map[uint64]func(domain.PositionRecord))
	}
	h.subs[entityID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[entityID], id)
			if len(h.subs[entityID]) == 0 {
				delete(h.subs, entityID)
			}
		})
	}, nil
}

// Close drops every listener and closes the reader.
func (h *PositionHub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.subs = make(map[string]map[uint64]func(domain.PositionRecord))
	h.mu.Unlock()
	return h.reader.Close()
}
