package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/938134/check-hosts/internal/model"
)

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.ProbeStarted("192.0.2.1")
	c.ProbeStarted("2001:db8::1")
	if got := testutil.ToFloat64(c.inFlight); got != 2 {
		t.Fatalf("in flight = %v, want 2", got)
	}
	c.ProbeFinished(model.Reachable("192.0.2.1", 20*time.Millisecond, "http"))
	c.ProbeFinished(model.Unreachable("2001:db8::1", errors.New("timeout")))
	c.Selected(model.IPv4, model.Outcome{Found: true, Winner: "192.0.2.1"})
	c.Selected(model.IPv6, model.Outcome{})

	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.probes.WithLabelValues("IPv4", "reachable")); got != 1 {
		t.Fatalf("reachable IPv4 probes = %v", got)
	}
	if got := testutil.ToFloat64(c.probes.WithLabelValues("IPv6", "unreachable")); got != 1 {
		t.Fatalf("unreachable IPv6 probes = %v", got)
	}
	if got := testutil.ToFloat64(c.selections.WithLabelValues("IPv6", "false")); got != 1 {
		t.Fatalf("IPv6 misses = %v", got)
	}
	if n := testutil.CollectAndCount(c.latency); n != 1 {
		t.Fatalf("expected one latency series, got %d", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.Selected(model.IPv4, model.Outcome{Found: true})

	path := filepath.Join(t.TempDir(), "checkhosts.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `checkhosts_selections_total{family="IPv4",found="true"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", b)
	}
}
