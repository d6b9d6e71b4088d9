package discovery

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"renogy-dcc/internal/renogy"
)

type fakeReader struct {
	answerAt map[uint8]bool
	calls    []uint8
}

func (f *fakeReader) Read(ctx context.Context, connection string, address uint8) (*renogy.Snapshot, error) {
	f.calls = append(f.calls, address)
	if f.answerAt[address] {
		return &renogy.Snapshot{ProductModel: "DCC50S", SerialNumber: string(rune('A' + address%26))}, nil
	}
	return nil, errors.New("timeout")
}

type countingObserver struct {
	probes   int
	failures int
}

func (o *countingObserver) ObserveProbe(address uint8, err error) {
	o.probes++
	if err != nil {
		o.failures++
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestResolve_FindsOnlyAnsweringAddress(t *testing.T) {
	reader := &fakeReader{answerAt: map[uint8]bool{42: true}}
	obs := &countingObserver{}
	r := NewResolver(reader, Config{}, quietLogger(), obs)

	addr, snap, err := r.Resolve(context.Background(), "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Resolve err=%v", err)
	}
	if addr != 42 {
		t.Fatalf("expected address 42, got %d", addr)
	}
	if snap == nil || snap.ProductModel != "DCC50S" {
		t.Fatalf("expected snapshot from address 42, got %+v", snap)
	}

	// one attempt per address, ascending from zero
	if len(reader.calls) != 43 {
		t.Fatalf("expected 43 probes, got %d", len(reader.calls))
	}
	for i, a := range reader.calls {
		if int(a) != i {
			t.Fatalf("probe %d went to address %d", i, a)
		}
	}
	if obs.probes != 43 || obs.failures != 42 {
		t.Fatalf("observer saw probes=%d failures=%d", obs.probes, obs.failures)
	}
}

func TestResolve_FirstAnswerWins(t *testing.T) {
	reader := &fakeReader{answerAt: map[uint8]bool{7: true, 96: true}}
	r := NewResolver(reader, Config{}, quietLogger(), nil)

	addr, _, err := r.Resolve(context.Background(), "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Resolve err=%v", err)
	}
	if addr != 7 {
		t.Fatalf("expected address 7, got %d", addr)
	}
}

func TestResolve_NoDevice(t *testing.T) {
	reader := &fakeReader{}
	r := NewResolver(reader, Config{}, quietLogger(), nil)

	_, snap, err := r.Resolve(context.Background(), "/dev/ttyUSB0")
	if !errors.Is(err, ErrNoDeviceFound) {
		t.Fatalf("expected ErrNoDeviceFound, got %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot")
	}
	if len(reader.calls) != MaxAddress {
		t.Fatalf("expected %d probes, got %d", MaxAddress, len(reader.calls))
	}
	if reader.calls[len(reader.calls)-1] != 254 {
		t.Fatalf("last probe should be 254, got %d", reader.calls[len(reader.calls)-1])
	}
}

func TestResolve_ConfiguredCandidate(t *testing.T) {
	reader := &fakeReader{answerAt: map[uint8]bool{96: true}}
	r := NewResolver(reader, Config{Candidates: []uint8{96}}, quietLogger(), nil)

	addr, _, err := r.Resolve(context.Background(), "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Resolve err=%v", err)
	}
	if addr != 96 || len(reader.calls) != 1 {
		t.Fatalf("expected single probe at 96, got addr=%d calls=%v", addr, reader.calls)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	reader := &fakeReader{answerAt: map[uint8]bool{42: true}}
	r := NewResolver(reader, Config{}, quietLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := r.Resolve(ctx, "/dev/ttyUSB0"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(reader.calls) != 0 {
		t.Fatalf("expected no probes, got %d", len(reader.calls))
	}
}
