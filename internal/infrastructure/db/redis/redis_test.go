package redis

import (
	"testing"
	"time"
)

func TestDedupKey(t *testing.T) {
	d := &DedupChecker{}
	at := time.Date(2026, 5, 4, 10, 0, 0, 1500, time.UTC)

	got := d.key("job-1", at)
	want := "dedup:job-1:1777888800000001500"
	if got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}

	// The same instant in another zone maps to the same key.
	if other := d.key("job-1", at.In(time.FixedZone("CST", -6*3600))); other != got {
		t.Fatalf("zone changed the key: %q", other)
	}
}

func TestPositionChannelName(t *testing.T) {
	if got := PositionChannelName("job-1"); got != "positions:job-1" {
		t.Fatalf("unexpected channel %q", got)
	}
}
