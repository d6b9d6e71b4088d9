package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"renogy-dcc/internal/link"
	"renogy-dcc/internal/renogy"
	"renogy-dcc/internal/telemetry"
)

var errEmptyRead = errors.New("read returned no data")

// Reader performs one read transaction at a bus address.
type Reader interface {
	Read(ctx context.Context, connection string, address uint8) (*renogy.Snapshot, error)
}

// Sink receives the published values.
type Sink interface {
	Set(path string, value any) error
}

// Observer is notified after every poll cycle.
type Observer interface {
	ObservePoll(outcome string, connected bool, errorCount int, took time.Duration, at time.Time)
	ObserveMapError()
}

type Collector struct {
	reader      Reader
	sink        Sink
	observer    Observer
	log         logrus.FieldLogger
	connection  string
	address     uint8
	interval    time.Duration
	readTimeout time.Duration
	retries     int

	mu         sync.RWMutex
	state      link.State
	latestData *renogy.Snapshot
	lastPoll   time.Time
	collecting bool
}

type CollectorConfig struct {
	Reader      Reader
	Sink        Sink
	Observer    Observer
	Log         logrus.FieldLogger
	Connection  string
	Address     uint8
	Interval    time.Duration
	ReadTimeout time.Duration
	Retries     int
	// Initial is the snapshot read during discovery, if any.
	Initial *renogy.Snapshot
}

// Status is a point-in-time view of the collector for the API.
type Status struct {
	Connection string    `json:"connection"`
	Address    uint8     `json:"address"`
	Connected  bool      `json:"connected"`
	ErrorCount int       `json:"error_count"`
	Collecting bool      `json:"collecting"`
	LastPoll   time.Time `json:"last_poll"`
}

// NewCollector starts in the connected state: the discovery read counts as
// the first successful read.
func NewCollector(cfg CollectorConfig) *Collector {
	return &Collector{
		reader:      cfg.Reader,
		sink:        cfg.Sink,
		observer:    cfg.Observer,
		log:         cfg.Log,
		connection:  cfg.Connection,
		address:     cfg.Address,
		interval:    cfg.Interval,
		readTimeout: cfg.ReadTimeout,
		retries:     cfg.Retries,
		state:       link.Connected(),
		latestData:  cfg.Initial,
	}
}

// Start publishes the discovery snapshot, if any, then polls once immediately
// and on every tick until ctx is done or the device is declared lost. A lost
// device is returned as an error wrapping link.ErrDeviceLost.
func (c *Collector) Start(ctx context.Context) error {
	c.setCollecting(true)
	defer c.setCollecting(false)

	c.log.WithFields(logrus.Fields{
		"address":  c.address,
		"interval": c.interval,
	}).Info("starting collector")

	if initial := c.GetLatestData(); initial != nil {
		c.publish(initial)
	}

	if _, err := c.PollOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("collector stopped")
			return nil
		case <-ticker.C:
			if _, err := c.PollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// PollOnce runs one full cycle. It returns true to keep running; false
// together with the escalated error when the device is lost.
func (c *Collector) PollOnce(ctx context.Context) (bool, error) {
	readCtx := ctx
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}

	started := time.Now()
	data, readErr := c.reader.Read(readCtx, c.connection, c.address)
	took := time.Since(started)
	if ctx.Err() != nil {
		// Shutting down: an interrupted read says nothing about the device.
		return true, nil
	}
	if readErr == nil && data == nil {
		readErr = errEmptyRead
	}

	c.mu.Lock()
	next, out := c.state.Observe(readErr, c.retries)
	c.state = next
	c.lastPoll = started
	if out.Kind == link.OK {
		c.latestData = data
	}
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ObservePoll(out.Kind.String(), next.Connected, next.ErrorCount, took, started)
	}

	switch out.Kind {
	case link.Retryable:
		c.log.WithError(out.Err).WithField("errors", next.ErrorCount).Warn("device unresponsive, retrying")
		return true, nil

	case link.Fatal:
		c.log.WithError(out.Err).WithField("errors", next.ErrorCount).Error("device lost")
		c.set(telemetry.PathConnected, 0)
		return false, out.Err
	}

	if out.Restored {
		c.log.Info("device reconnected")
		c.set(telemetry.PathConnected, 1)
	}

	c.log.WithField("data", data).Debug("device data")
	c.publish(data)
	return true, nil
}

func (c *Collector) publish(data *renogy.Snapshot) {
	values, err := telemetry.Map(data)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveMapError()
		}
		if errors.Is(err, telemetry.ErrDivisionByZero) {
			c.log.WithError(err).Warnf("skipping %s this cycle", telemetry.PathDcCurrent)
		} else {
			c.log.WithError(err).Error("failed to map device data")
		}
	}

	for _, v := range values.Values() {
		c.set(v.Path, v.Value)
	}
}

func (c *Collector) set(path string, value any) {
	if err := c.sink.Set(path, value); err != nil {
		c.log.WithError(err).WithField("path", path).Error("failed to set value")
	}
}

func (c *Collector) setCollecting(v bool) {
	c.mu.Lock()
	c.collecting = v
	c.mu.Unlock()
}

func (c *Collector) GetLatestData() *renogy.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestData
}

func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Connection: c.connection,
		Address:    c.address,
		Connected:  c.state.Connected,
		ErrorCount: c.state.ErrorCount,
		Collecting: c.collecting,
		LastPoll:   c.lastPoll,
	}
}
