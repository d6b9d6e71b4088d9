package renogy

import (
	"context"
	"fmt"
	"time"

	"renogy-dcc/internal/modbus"
)

type SourceConfig struct {
	Serial  modbus.SerialConfig
	Timeout time.Duration
}

// Source reads DCC snapshots over Modbus. Every Read opens its own client
// for the requested address and closes it afterwards, so a wrong address or
// a hung line never leaks into the next transaction.
type Source struct {
	serial  modbus.SerialConfig
	timeout time.Duration
	now     func() time.Time
}

func NewSource(cfg SourceConfig) *Source {
	return &Source{
		serial:  cfg.Serial,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
}

// Read performs one read transaction against the device at address.
// The transport timeout is capped by the context deadline.
func (s *Source) Read(ctx context.Context, connection string, address uint8) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	client := modbus.NewClient(connection, s.serial, address, timeout)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	defer client.Close()

	info, err := client.ReadHoldingRegisters(infoStart, infoCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read product info: %w", err)
	}

	data, err := client.ReadHoldingRegisters(dataStart, dataCount)
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic data: %w", err)
	}

	return Decode(info, data, s.now())
}
