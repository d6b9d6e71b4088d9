package modbus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// SerialConfig holds the line settings used for rtu:// connections.
type SerialConfig struct {
	BaudRate uint
	DataBits uint
	Parity   string
	StopBits uint
}

type Client struct {
	client  *modbus.ModbusClient
	mu      sync.Mutex
	url     string
	serial  SerialConfig
	unitID  uint8
	timeout time.Duration
}

func NewClient(connection string, serial SerialConfig, unitID uint8, timeout time.Duration) *Client {
	return &Client{
		url:     ConnectionURL(connection),
		serial:  serial,
		unitID:  unitID,
		timeout: timeout,
	}
}

// ConnectionURL turns a bare serial device path into an rtu:// URL.
// Anything that already carries a scheme (tcp://, rtuovertcp://) is used as is.
func ConnectionURL(connection string) string {
	if strings.Contains(connection, "://") {
		return connection
	}
	return "rtu://" + connection
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      c.url,
		Speed:    c.serial.BaudRate,
		DataBits: c.serial.DataBits,
		Parity:   parity(c.serial.Parity),
		StopBits: c.serial.StopBits,
		Timeout:  c.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create modbus client: %w", err)
	}

	if err := client.Open(); err != nil {
		return fmt.Errorf("failed to open %s: %w", c.url, err)
	}

	if err := client.SetUnitId(c.unitID); err != nil {
		client.Close()
		return fmt.Errorf("failed to set unit id %d: %w", c.unitID, err)
	}
	c.client = client

	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	return err
}

func (c *Client) ReadHoldingRegisters(address uint16, quantity uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	regs, err := c.client.ReadRegisters(address, quantity, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, fmt.Errorf("failed to read holding registers at 0x%04x: %w", address, err)
	}
	if len(regs) != int(quantity) {
		return nil, fmt.Errorf("short read at 0x%04x: got %d registers, want %d", address, len(regs), quantity)
	}

	return regs, nil
}

func parity(p string) uint {
	switch strings.ToUpper(p) {
	case "E", "EVEN":
		return modbus.PARITY_EVEN
	case "O", "ODD":
		return modbus.PARITY_ODD
	default:
		return modbus.PARITY_NONE
	}
}
