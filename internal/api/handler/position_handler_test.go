package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

type stubDispatcher struct {
	enqueued []ports.PositionReportInput
	batches  [][]ports.PositionReportInput
	err      error
}

func (d *stubDispatcher) Enqueue(_ context.Context, report ports.PositionReportInput) error {
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, report)
	return nil
}

func (d *stubDispatcher) EnqueueBatch(_ context.Context, reports []ports.PositionReportInput) error {
	if d.err != nil {
		return d.err
	}
	d.batches = append(d.batches, reports)
	return nil
}

const validPosition = `{"entity_id":"job-1","lat":19.4326,"lng":-99.1332,"address":"Av. Reforma 222","observed_at":"2026-05-04T10:00:00Z"}`

func TestPositionHandler_Receive_Success(t *testing.T) {
	stub := &stubDispatcher{}
	h := NewPositionHandler(stub)
	c, rec := newTestContext(http.MethodPost, "/v1/positions", validPosition, domain.RoleAgent, "job-1")

	if err := h.Receive(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(stub.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued report, got %d", len(stub.enqueued))
	}
	got := stub.enqueued[0]
	if got.EntityID != "job-1" || got.Lat != 19.4326 || got.Lng != -99.1332 || got.ObservedAt.IsZero() {
		t.Fatalf("unexpected report: %+v", got)
	}
}

func TestPositionHandler_Receive_ZeroCoordinateAccepted(t *testing.T) {
	stub := &stubDispatcher{}
	h := NewPositionHandler(stub)
	body := `{"entity_id":"job-1","lat":0,"lng":0,"observed_at":"2026-05-04T10:00:00Z"}`
	c, _ := newTestContext(http.MethodPost, "/v1/positions", body, domain.RoleAgent, "job-1")

	if err := h.Receive(c); err != nil {
		t.Fatalf("a 0,0 fix is a real coordinate: %v", err)
	}
}

func TestPositionHandler_Receive_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		role   string
		jobID  string
		status int
		err    error
	}{
		{"not json", "not-json", domain.RoleAgent, "job-1", http.StatusBadRequest, nil},
		{"missing lat", `{"entity_id":"job-1","lng":1,"observed_at":"2026-05-04T10:00:00Z"}`, domain.RoleAgent, "job-1", http.StatusUnprocessableEntity, nil},
		{"lat out of range", `{"entity_id":"job-1","lat":91,"lng":1,"observed_at":"2026-05-04T10:00:00Z"}`, domain.RoleAgent, "job-1", http.StatusUnprocessableEntity, nil},
		{"missing observed_at", `{"entity_id":"job-1","lat":1,"lng":1}`, domain.RoleAgent, "job-1", http.StatusUnprocessableEntity, nil},
		{"unauthenticated", validPosition, "", "", http.StatusUnauthorized, nil},
		{"other job", validPosition, domain.RoleAgent, "job-2", 0, domain.ErrForbidden},
		{"dispatcher cannot report", validPosition, domain.RoleDispatcher, "", 0, domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDispatcher{}
			h := NewPositionHandler(stub)
			c, _ := newTestContext(http.MethodPost, "/v1/positions", tt.body, tt.role, tt.jobID)

			err := h.Receive(c)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
			} else {
				expectHTTPError(t, err, tt.status)
			}
			if len(stub.enqueued) != 0 {
				t.Fatal("rejected report was enqueued")
			}
		})
	}
}

func TestPositionHandler_Receive_DispatcherError(t *testing.T) {
	stopped := errors.New("dispatcher stopped")
	h := NewPositionHandler(&stubDispatcher{err: stopped})
	c, _ := newTestContext(http.MethodPost, "/v1/positions", validPosition, domain.RoleAdmin, "")

	if err := h.Receive(c); !errors.Is(err, stopped) {
		t.Fatalf("expected dispatcher error to propagate, got %v", err)
	}
}

func TestPositionHandler_ReceiveBatch_Success(t *testing.T) {
	stub := &stubDispatcher{}
	h := NewPositionHandler(stub)
	body := "[" + validPosition + "," + strings.Replace(validPosition, "10:00:00Z", "10:00:05Z", 1) + "]"
	c, rec := newTestContext(http.MethodPost, "/v1/positions/batch", body, domain.RoleAgent, "job-1")

	if err := h.ReceiveBatch(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var resp acceptedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Count != 2 || len(stub.batches) != 1 || len(stub.batches[0]) != 2 {
		t.Fatalf("unexpected result: resp=%+v batches=%d", resp, len(stub.batches))
	}
}

func TestPositionHandler_ReceiveBatch_Rejects(t *testing.T) {
	oversized := "[" + strings.TrimSuffix(strings.Repeat(validPosition+",", maxBatchSize+1), ",") + "]"
	invalidSecond := "[" + validPosition + `,{"entity_id":"job-1","lat":1}` + "]"

	tests := []struct {
		name   string
		body   string
		status int
		substr string
	}{
		{"empty", "[]", http.StatusBadRequest, "empty"},
		{"too large", oversized, http.StatusBadRequest, fmt.Sprint(maxBatchSize)},
		{"invalid item", invalidSecond, http.StatusUnprocessableEntity, "position[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDispatcher{}
			h := NewPositionHandler(stub)
			c, _ := newTestContext(http.MethodPost, "/v1/positions/batch", tt.body, domain.RoleAgent, "job-1")

			err := h.ReceiveBatch(c)
			expectHTTPError(t, err, tt.status)
			if msg := fmt.Sprint(err); !strings.Contains(msg, tt.substr) {
				t.Fatalf("message %q does not mention %q", msg, tt.substr)
			}
			if len(stub.batches) != 0 {
				t.Fatal("rejected batch was enqueued")
			}
		})
	}
}

func TestPositionHandler_ReceiveBatch_ForeignEntity(t *testing.T) {
	stub := &stubDispatcher{}
	h := NewPositionHandler(stub)
	body := "[" + validPosition + "," + strings.Replace(validPosition, "job-1", "job-2", 1) + "]"
	c, _ := newTestContext(http.MethodPost, "/v1/positions/batch", body, domain.RoleAgent, "job-1")

	if err := h.ReceiveBatch(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(stub.batches) != 0 {
		t.Fatal("batch with a foreign entity was enqueued")
	}
}
