package renogy

import (
	"fmt"
	"strings"
	"time"
)

// ChargeState carries the regulator flags derived from the charging state
// register. The mapper must not assume they are mutually exclusive.
type ChargeState struct {
	NoCharging     bool `json:"no_charging"`
	CurrentLimited bool `json:"current_limited"`
	MPPTCharging   bool `json:"mppt_charging"`
	Boost          bool `json:"boost"`
	Float          bool `json:"float"`
	Equalization   bool `json:"equalization"`
}

// Snapshot is the result of one read transaction. It is never modified
// after Decode returns it.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	// Device Info
	ProductModel    string `json:"product_model"`
	HardwareVersion string `json:"product_hardware_version"`
	SoftwareVersion string `json:"product_software_version"`
	SerialNumber    string `json:"product_serial_number"`

	// Inputs
	VoltageSolar      float64 `json:"voltage_solar"`
	CurrentSolar      float64 `json:"current_solar"`
	VoltageAlternator float64 `json:"voltage_alternator"`
	CurrentAlternator float64 `json:"current_alternator"`

	// Battery
	BatteryVoltage float64 `json:"battery_voltage"`

	// Energy, Wh
	PowerDaily float64 `json:"power_daily"`
	PowerTotal float64 `json:"power_total"`

	ChargingState uint8       `json:"charging_state"`
	ChargeState   ChargeState `json:"charge_state"`
}

// Decode builds a Snapshot from the product information block (starting at
// RegProductModel) and the dynamic data block (starting at RegBatterySOC).
func Decode(info, data []uint16, at time.Time) (*Snapshot, error) {
	if len(info) < infoCount {
		return nil, fmt.Errorf("info block too short: got %d registers, want %d", len(info), infoCount)
	}
	if len(data) < dataCount {
		return nil, fmt.Errorf("data block too short: got %d registers, want %d", len(data), dataCount)
	}

	in := func(reg int) uint16 { return info[reg-infoStart] }
	dt := func(reg int) uint16 { return data[reg-dataStart] }

	state := uint8(dt(RegChargingState) & 0xFF)

	return &Snapshot{
		Timestamp:       at,
		ProductModel:    decodeString(info[RegProductModel-infoStart : RegProductModel-infoStart+8]),
		SoftwareVersion: decodeVersion(in(RegSoftwareVersion), in(RegSoftwareVersion+1)),
		HardwareVersion: decodeVersion(in(RegHardwareVersion), in(RegHardwareVersion+1)),
		SerialNumber:    fmt.Sprintf("%d", uint32(in(RegSerialNumber))<<16|uint32(in(RegSerialNumber+1))),

		VoltageSolar:      float64(dt(RegSolarVoltage)) / 10,
		CurrentSolar:      float64(dt(RegSolarCurrent)) / 100,
		VoltageAlternator: float64(dt(RegAlternatorVoltage)) / 10,
		CurrentAlternator: float64(dt(RegAlternatorCurrent)) / 100,
		BatteryVoltage:    float64(dt(RegBatteryVoltage)) / 10,

		PowerDaily: float64(dt(RegPowerDaily)),
		PowerTotal: float64(uint32(dt(RegPowerTotal))<<16 | uint32(dt(RegPowerTotal+1))),

		ChargingState: state,
		ChargeState:   decodeChargeState(state),
	}, nil
}

func decodeChargeState(state uint8) ChargeState {
	return ChargeState{
		NoCharging:     state == StateNotCharging,
		CurrentLimited: state == StateCurrentLimiting,
		MPPTCharging:   state == StateMPPT,
		Boost:          state == StateBoost,
		Float:          state == StateFloat,
		Equalization:   state == StateEqualizing,
	}
}

func decodeString(regs []uint16) string {
	bytes := make([]byte, 0, len(regs)*2)
	for _, reg := range regs {
		bytes = append(bytes, byte(reg>>8), byte(reg&0xFF))
	}
	return strings.TrimSpace(strings.TrimRight(string(bytes), "\x00"))
}

// decodeVersion renders the three low bytes of a two-register version field.
func decodeVersion(hi, lo uint16) string {
	return fmt.Sprintf("V%d.%d.%d", hi&0xFF, lo>>8, lo&0xFF)
}
