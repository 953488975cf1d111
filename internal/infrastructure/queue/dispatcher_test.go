package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/core/ports"
)

type recordingService struct {
	mu   sync.Mutex
	seen map[string][]time.Time
}

func (s *recordingService) Process(_ context.Context, r ports.PositionReportInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string][]time.Time)
	}
	s.seen[r.EntityID] = append(s.seen[r.EntityID], r.ObservedAt)
	return nil
}

func TestDispatcher_PreservesPerEntityOrder(t *testing.T) {
	svc := &recordingService{}
	d := NewDispatcher(4, svc, zerolog.Nop())
	d.Start(context.Background())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entities := []string{"job-1", "job-2", "job-3", "job-4", "job-5"}
	var batch []ports.PositionReportInput
	for i := 0; i < 50; i++ {
		for _, e := range entities {
			batch = append(batch, ports.PositionReportInput{EntityID: e, ObservedAt: base.Add(time.Duration(i) * time.Second)})
		}
	}
	if err := d.EnqueueBatch(context.Background(), batch); err != nil {
		t.Fatalf("enqueue batch: %v", err)
	}
	d.Stop()

	for _, e := range entities {
		got := svc.seen[e]
		if len(got) != 50 {
			t.Fatalf("%s: expected 50 reports, got %d", e, len(got))
		}
		for i := 1; i < len(got); i++ {
			if !got[i].After(got[i-1]) {
				t.Fatalf("%s: report %d out of order", e, i)
			}
		}
	}
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	d := NewDispatcher(1, &recordingService{}, zerolog.Nop())
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	err := d.Enqueue(context.Background(), ports.PositionReportInput{EntityID: "job-1"})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(8, &recordingService{}, zerolog.Nop())
	first := d.shardIndex("job-42")
	for i := 0; i < 10; i++ {
		if got := d.shardIndex("job-42"); got != first {
			t.Fatalf("shard index changed: %d vs %d", got, first)
		}
	}
	if first < 0 || first >= 8 {
		t.Fatalf("shard index out of range: %d", first)
	}
}
