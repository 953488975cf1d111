package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/api/metrics"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// ErrStopped is returned by Enqueue once the dispatcher has been stopped.
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher routes position reports to a fixed set of workers by hashing the
// entity id, so reports of one entity are stored and published in arrival order.
type Dispatcher struct {
	workers []chan ports.PositionReportInput
	service ports.PositionService
	log     zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.PositionService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.PositionReportInput, numWorkers),
		service: service,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.PositionReportInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers drain their channel and exit
// after Stop; ctx is handed to the position service.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends a report to the worker responsible for its entity. It blocks
// while that worker's buffer is full, until ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, report ports.PositionReportInput) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	idx := d.shardIndex(report.EntityID)
	select {
	case d.workers[idx] <- report:
		metrics.ReportsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueBatch enqueues multiple reports preserving per-entity ordering.
func (d *Dispatcher) EnqueueBatch(ctx context.Context, reports []ports.PositionReportInput) error {
	for _, r := range reports {
		if err := d.Enqueue(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Stop closes every worker channel and waits until queued reports are processed.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// shardIndex maps an entity id deterministically to a worker index.
func (d *Dispatcher) shardIndex(entityID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.PositionReportInput) {
	defer d.wg.Done()
	label := strconv.Itoa(id)

	for report := range ch {
		metrics.ReportsQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
		if err := d.service.Process(ctx, report); err != nil {
			d.log.Error().Err(err).
				Str("entity_id", report.EntityID).
				Int("worker_id", id).
				Msg("report processing failed")
		}
	}
}
