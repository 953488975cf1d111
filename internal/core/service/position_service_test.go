package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubPositionRepo struct {
	inserted  []domain.PositionRecord
	insertErr error
}

func (r *stubPositionRepo) Insert(_ context.Context, rec domain.PositionRecord) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, rec)
	return nil
}

func (r *stubPositionRepo) Latest(_ context.Context, _ string) (domain.PositionRecord, error) {
	if len(r.inserted) == 0 {
		return domain.PositionRecord{}, domain.ErrNoPosition
	}
	return r.inserted[len(r.inserted)-1], nil
}

type stubPublisher struct {
	published []domain.PositionRecord
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, rec domain.PositionRecord) error {
	p.published = append(p.published, rec)
	return p.err
}

type stubDedup struct {
	seen     map[string]bool
	claimErr error
}

func newStubDedup() *stubDedup { return &stubDedup{seen: make(map[string]bool)} }

func dedupKey(entityID string, at time.Time) string {
	return entityID + "@" + at.Format(time.RFC3339Nano)
}

func (d *stubDedup) Claim(_ context.Context, entityID string, at time.Time) (bool, error) {
	if d.claimErr != nil {
		return false, d.claimErr
	}
	key := dedupKey(entityID, at)
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *stubDedup) Release(_ context.Context, entityID string, at time.Time) error {
	delete(d.seen, dedupKey(entityID, at))
	return nil
}

func validReport() ports.PositionReportInput {
	return ports.PositionReportInput{
		EntityID:   " job-1 ",
		Lat:        19.4326,
		Lng:        -99.1332,
		Address:    "Av. Reforma 222",
		ObservedAt: t0,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPositionService_Process_StoresAndPublishes(t *testing.T) {
	repo := &stubPositionRepo{}
	pub := &stubPublisher{}
	svc := NewPositionService(repo, pub, newStubDedup(), PositionServiceConfig{}, zerolog.Nop())

	if err := svc.Process(context.Background(), validReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(repo.inserted))
	}
	got := repo.inserted[0]
	if got.EntityID != "job-1" {
		t.Errorf("entity id not trimmed: %q", got.EntityID)
	}
	if got.Address != "Av. Reforma 222" || !got.ObservedAt.Equal(t0) {
		t.Errorf("unexpected record: %+v", got)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
}

func TestPositionService_Process_SkipsDuplicate(t *testing.T) {
	repo := &stubPositionRepo{}
	pub := &stubPublisher{}
	svc := NewPositionService(repo, pub, newStubDedup(), PositionServiceConfig{}, zerolog.Nop())

	_ = svc.Process(context.Background(), validReport())
	if err := svc.Process(context.Background(), validReport()); err != nil {
		t.Fatalf("duplicate must be silently skipped, got %v", err)
	}
	if len(repo.inserted) != 1 || len(pub.published) != 1 {
		t.Fatalf("duplicate processed: inserts=%d publishes=%d", len(repo.inserted), len(pub.published))
	}
}

func TestPositionService_Process_DedupFailureProcessesAnyway(t *testing.T) {
	repo := &stubPositionRepo{}
	dedup := newStubDedup()
	dedup.claimErr = errors.New("redis unavailable")
	svc := NewPositionService(repo, nil, dedup, PositionServiceConfig{}, zerolog.Nop())

	if err := svc.Process(context.Background(), validReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatal("report dropped on dedup failure")
	}
}

func TestPositionService_Process_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ports.PositionReportInput)
	}{
		{"missing entity", func(in *ports.PositionReportInput) { in.EntityID = "  " }},
		{"latitude out of range", func(in *ports.PositionReportInput) { in.Lat = 95 }},
		{"longitude out of range", func(in *ports.PositionReportInput) { in.Lng = -181 }},
		{"missing observed_at", func(in *ports.PositionReportInput) { in.ObservedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubPositionRepo{}
			svc := NewPositionService(repo, nil, newStubDedup(), PositionServiceConfig{}, zerolog.Nop())

			in := validReport()
			tt.mutate(&in)
			err := svc.Process(context.Background(), in)
			if !errors.Is(err, domain.ErrInvalidCoordinate) {
				t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
			}
			if len(repo.inserted) != 0 {
				t.Fatal("invalid report stored")
			}
		})
	}
}

func TestPositionService_Process_InsertErrorReleasesClaim(t *testing.T) {
	repo := &stubPositionRepo{insertErr: errors.New("mongo down")}
	dedup := newStubDedup()
	pub := &stubPublisher{}
	svc := NewPositionService(repo, pub, dedup, PositionServiceConfig{}, zerolog.Nop())

	if err := svc.Process(context.Background(), validReport()); err == nil {
		t.Fatal("expected insert error")
	}
	if len(dedup.seen) != 0 {
		t.Error("claim kept for a report that was not stored")
	}
	if len(pub.published) != 0 {
		t.Error("failed report published")
	}

	// The redelivery is processed once the store recovers.
	repo.insertErr = nil
	if err := svc.Process(context.Background(), validReport()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatal("retry skipped as a duplicate")
	}
}

func TestPositionService_Process_PublishErrorNonFatal(t *testing.T) {
	repo := &stubPositionRepo{}
	pub := &stubPublisher{err: errors.New("broker down")}
	svc := NewPositionService(repo, pub, newStubDedup(), PositionServiceConfig{}, zerolog.Nop())

	if err := svc.Process(context.Background(), validReport()); err != nil {
		t.Fatalf("publish failure must not fail the report: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatal("report not stored")
	}
}

func TestPositionService_Process_RejectsFutureObservation(t *testing.T) {
	repo := &stubPositionRepo{}
	cfg := PositionServiceConfig{MaxClockSkew: 30 * time.Second, Clock: func() time.Time { return t0 }}
	svc := NewPositionService(repo, nil, newStubDedup(), cfg, zerolog.Nop())

	ahead := validReport()
	ahead.ObservedAt = t0.Add(31 * time.Second)
	if err := svc.Process(context.Background(), ahead); !errors.Is(err, domain.ErrFutureObservation) {
		t.Fatalf("expected ErrFutureObservation, got %v", err)
	}
	if len(repo.inserted) != 0 {
		t.Fatal("future report stored")
	}

	within := validReport()
	within.ObservedAt = t0.Add(29 * time.Second)
	if err := svc.Process(context.Background(), within); err != nil {
		t.Fatalf("report within skew rejected: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatal("report within skew not stored")
	}
}

func TestPositionService_Process_TruncatesToMillisecond(t *testing.T) {
	repo := &stubPositionRepo{}
	pub := &stubPublisher{}
	svc := NewPositionService(repo, pub, newStubDedup(), PositionServiceConfig{}, zerolog.Nop())

	in := validReport()
	in.ObservedAt = t0.Add(1500 * time.Microsecond)
	if err := svc.Process(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := t0.Add(time.Millisecond)
	if got := repo.inserted[0].ObservedAt; !got.Equal(want) {
		t.Fatalf("stored observed_at %v, want %v", got, want)
	}
	if got := pub.published[0].ObservedAt; !got.Equal(want) {
		t.Fatalf("published observed_at %v, want %v", got, want)
	}

	// The same instant at a different sub-millisecond precision is the same report.
	in.ObservedAt = t0.Add(1900 * time.Microsecond)
	if err := svc.Process(context.Background(), in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("sub-millisecond variant stored twice: %d inserts", len(repo.inserted))
	}
}
