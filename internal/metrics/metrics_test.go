package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveProbe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveProbe(0, errors.New("timeout"))
	m.ObserveProbe(1, errors.New("timeout"))
	m.ObserveProbe(42, nil)

	if got := testutil.ToFloat64(m.Probes.WithLabelValues("no_answer")); got != 2 {
		t.Fatalf("no_answer probes: got %v", got)
	}
	if got := testutil.ToFloat64(m.Probes.WithLabelValues("found")); got != 1 {
		t.Fatalf("found probes: got %v", got)
	}
	if got := testutil.ToFloat64(m.DeviceAddress); got != 42 {
		t.Fatalf("device address: got %v", got)
	}
}

func TestObservePoll(t *testing.T) {
	m := New(prometheus.NewRegistry())
	at := time.Unix(1700000000, 0)

	m.ObservePoll("ok", true, 0, 20*time.Millisecond, at)
	m.ObservePoll("retryable", true, 1, time.Second, at.Add(time.Minute))

	if got := testutil.ToFloat64(m.Polls.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok polls: got %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorCount); got != 1 {
		t.Fatalf("error count: got %v", got)
	}
	if got := testutil.ToFloat64(m.LastSuccessful); got != 1700000000 {
		t.Fatalf("last successful must only move on ok polls: got %v", got)
	}

	m.ObservePoll("fatal", false, 6, time.Second, at)
	if got := testutil.ToFloat64(m.Connected); got != 0 {
		t.Fatalf("connected: got %v", got)
	}
}
