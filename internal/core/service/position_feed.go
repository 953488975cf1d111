package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/api/metrics"
	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

// DefaultPollInterval is the poll channel period used when none is configured.
const DefaultPollInterval = 5 * time.Second

// PositionFeed merges the push and poll channels of one entity into a single
// monotonic "latest position" cell.
//
// A record is accepted only if its ObservedAt is strictly after the held
// record's. The compare, the store and the delivery to subscribers all happen
// under one gate, so subscribers see a total order by ObservedAt no matter how
// push and poll interleave. Subscribers are called synchronously and must not
// call Offer or Refresh on the same feed.
type PositionFeed struct {
	entityID string
	source   ports.PositionSource
	push     ports.PositionSubscriber
	interval time.Duration
	log      zerolog.Logger

	gate    sync.Mutex
	latest  atomic.Pointer[domain.PositionRecord]
	stopped bool // guarded by gate; late push deliveries after Stop are dropped

	subsMu  sync.Mutex
	subs    map[uint64]func(domain.PositionRecord)
	nextSub uint64

	lifeMu      sync.Mutex
	running     bool
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

// NewPositionFeed creates a detached feed. push may be nil for poll-only operation.
func NewPositionFeed(
	entityID string,
	source ports.PositionSource,
	push ports.PositionSubscriber,
	pollInterval time.Duration,
	log zerolog.Logger,
) *PositionFeed {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &PositionFeed{
		entityID: entityID,
		source:   source,
		push:     push,
		interval: pollInterval,
		log:      log.With().Str("entity_id", entityID).Str("component", "position_feed").Logger(),
		subs:     make(map[uint64]func(domain.PositionRecord)),
	}
}

// Start attaches both channels: the push listener (if any) and the poll timer.
// A failed push subscription degrades the feed to poll-only and is not an error.
func (f *PositionFeed) Start(ctx context.Context) error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()

	if f.running {
		return nil
	}
	if f.source == nil {
		return fmt.Errorf("start feed %s: no position source", f.entityID)
	}

	f.gate.Lock()
	f.stopped = false
	f.gate.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	var unsubscribe func()
	if f.push != nil {
		unsub, err := f.push.Subscribe(runCtx, f.entityID, func(rec domain.PositionRecord) {
			f.Offer(rec, domain.OriginPush)
		})
		if err != nil {
			metrics.PushDegradedTotal.Inc()
			f.log.Info().Err(err).Msg("push channel unavailable, running poll-only")
		} else {
			unsubscribe = unsub
		}
	}

	done := make(chan struct{})
	go f.pollLoop(runCtx, done)

	f.running = true
	f.cancel = cancel
	f.unsubscribe = unsubscribe
	f.done = done
	return nil
}

// Stop tears down both channels and waits for the poll loop to exit.
// It is safe to call on a feed that was never started or is already stopped.
func (f *PositionFeed) Stop() {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()

	if !f.running {
		return
	}
	f.running = false

	if f.unsubscribe != nil {
		f.unsubscribe()
		f.unsubscribe = nil
	}
	f.cancel()
	<-f.done

	f.gate.Lock()
	f.stopped = true
	f.gate.Unlock()
}

// Running reports whether the channels are attached.
func (f *PositionFeed) Running() bool {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()
	return f.running
}

func (f *PositionFeed) pollLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.poll(ctx, domain.OriginPoll)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.poll(ctx, domain.OriginPoll)
		}
	}
}

// poll fetches once; failures are logged and left to the next natural tick.
func (f *PositionFeed) poll(ctx context.Context, origin domain.PositionOrigin) {
	if err := f.fetch(ctx, origin); err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrNoPosition) {
			f.log.Debug().Msg("no position reported yet")
			return
		}
		metrics.PollErrorsTotal.Inc()
		f.log.Warn().Err(err).Str("origin", string(origin)).Msg("poll fetch failed")
	}
}

func (f *PositionFeed) fetch(ctx context.Context, origin domain.PositionOrigin) error {
	rec, err := f.source.Fetch(ctx, f.entityID)
	if err != nil {
		if errors.Is(err, domain.ErrNoPosition) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	f.Offer(rec, origin)
	return nil
}

// Refresh forces an immediate poll-channel fetch, e.g. when the consuming
// context regains foreground. The acceptance rule is the same as for any
// other record; a stale result is not an error.
func (f *PositionFeed) Refresh(ctx context.Context) error {
	if err := f.fetch(ctx, domain.OriginRefresh); err != nil {
		return fmt.Errorf("refresh %s: %w", f.entityID, err)
	}
	return nil
}

// Offer applies the acceptance rule to rec and publishes it when accepted.
func (f *PositionFeed) Offer(rec domain.PositionRecord, origin domain.PositionOrigin) bool {
	if rec.EntityID != "" && rec.EntityID != f.entityID {
		metrics.PositionsDiscardedTotal.WithLabelValues(string(origin), "foreign_entity").Inc()
		return false
	}
	if !rec.Coordinate.Valid() {
		metrics.PositionsDiscardedTotal.WithLabelValues(string(origin), "invalid").Inc()
		f.log.Debug().Str("origin", string(origin)).Msg("invalid coordinate discarded")
		return false
	}

	f.gate.Lock()
	defer f.gate.Unlock()

	if f.stopped {
		return false
	}
	if cur := f.latest.Load(); cur != nil && !rec.NewerThan(*cur) {
		metrics.PositionsDiscardedTotal.WithLabelValues(string(origin), "stale").Inc()
		f.log.Debug().
			Err(domain.ErrStaleRecord).
			Str("origin", string(origin)).
			Time("observed_at", rec.ObservedAt).
			Time("held_at", cur.ObservedAt).
			Msg("position discarded")
		return false
	}

	accepted := rec
	accepted.EntityID = f.entityID
	f.latest.Store(&accepted)
	metrics.PositionsAcceptedTotal.WithLabelValues(string(origin)).Inc()

	for _, fn := range f.subscribers() {
		fn(accepted)
	}
	return true
}

// Latest returns the last accepted record, if any.
func (f *PositionFeed) Latest() (domain.PositionRecord, bool) {
	cur := f.latest.Load()
	if cur == nil {
		return domain.PositionRecord{}, false
	}
	return *cur, true
}

// Subscribe registers fn for every accepted record and returns its cancel function.
func (f *PositionFeed) Subscribe(fn func(domain.PositionRecord)) func() {
	f.subsMu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.subsMu.Unlock()

	return func() {
		f.subsMu.Lock()
		delete(f.subs, id)
		f.subsMu.Unlock()
	}
}

func (f *PositionFeed) subscribers() []func(domain.PositionRecord) {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()

	out := make([]func(domain.PositionRecord), 0, len(f.subs))
	for id := uint64(0); id < f.nextSub; id++ {
		if fn, ok := f.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
