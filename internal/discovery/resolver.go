// Package discovery finds the bus address of a charge controller whose
// address is not known in advance.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"renogy-dcc/internal/renogy"
)

// MaxAddress bounds the scan: candidates are [0, MaxAddress).
const MaxAddress = 255

var ErrNoDeviceFound = errors.New("no device found")

// Reader performs one read transaction at a bus address.
type Reader interface {
	Read(ctx context.Context, connection string, address uint8) (*renogy.Snapshot, error)
}

// ProbeObserver is notified of every probe result.
type ProbeObserver interface {
	ObserveProbe(address uint8, err error)
}

type Config struct {
	// Candidates overrides the scan range when non-empty.
	Candidates []uint8
	// ProbeTimeout bounds each attempt. Zero leaves it to the reader.
	ProbeTimeout time.Duration
}

type Resolver struct {
	reader     Reader
	candidates []uint8
	timeout    time.Duration
	log        logrus.FieldLogger
	observer   ProbeObserver
}

func NewResolver(reader Reader, cfg Config, log logrus.FieldLogger, observer ProbeObserver) *Resolver {
	candidates := cfg.Candidates
	if len(candidates) == 0 {
		candidates = AllAddresses()
	}
	return &Resolver{
		reader:     reader,
		candidates: candidates,
		timeout:    cfg.ProbeTimeout,
		log:        log,
		observer:   observer,
	}
}

// AllAddresses returns every candidate in ascending order.
func AllAddresses() []uint8 {
	out := make([]uint8, 0, MaxAddress)
	for a := 0; a < MaxAddress; a++ {
		out = append(out, uint8(a))
	}
	return out
}

// Resolve probes each candidate once, in order, and returns the first address
// that yields a snapshot together with that snapshot.
func (r *Resolver) Resolve(ctx context.Context, connection string) (uint8, *renogy.Snapshot, error) {
	for _, address := range r.candidates {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		r.log.WithField("address", address).Debug("probing address")

		snap, err := r.probe(ctx, connection, address)
		if r.observer != nil {
			r.observer.ObserveProbe(address, err)
		}
		if err != nil {
			r.log.WithField("address", address).WithError(err).Debug("no answer")
			continue
		}

		r.log.WithFields(logrus.Fields{
			"address": address,
			"model":   snap.ProductModel,
		}).Info("device found")
		return address, snap, nil
	}

	return 0, nil, fmt.Errorf("%w on %s after %d candidates", ErrNoDeviceFound, connection, len(r.candidates))
}

func (r *Resolver) probe(ctx context.Context, connection string, address uint8) (*renogy.Snapshot, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.reader.Read(ctx, connection, address)
}
