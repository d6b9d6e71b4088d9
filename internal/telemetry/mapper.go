// Package telemetry derives the published solarcharger values from a raw
// controller snapshot. Map has no state: the same snapshot always yields the
// same Output.
package telemetry

import (
	"errors"
	"strconv"

	"renogy-dcc/internal/renogy"
)

var ErrDivisionByZero = errors.New("battery voltage is zero")

// Value is one path and the value to set on it.
type Value struct {
	Path  string
	Value any
}

// Output is everything one cycle publishes. Nil pointers are not published
// and leave the previous value on the bus.
type Output struct {
	ProductName     string
	HardwareVersion string
	FirmwareVersion string
	Serial          string

	SolarVoltage      float64
	SolarPower        float64
	SolarMode         int
	AlternatorVoltage float64
	AlternatorPower   float64
	AlternatorMode    int

	BatteryVoltage float64
	BatteryCurrent *float64

	YieldPower       float64
	MppOperationMode int
	State            *int
	YieldUser        float64
	YieldSystem      float64
}

// Map converts a snapshot into telemetry. When the battery voltage is zero
// the battery current is left out and ErrDivisionByZero is returned together
// with the rest of the output.
func Map(s *renogy.Snapshot) (Output, error) {
	powerSolar := s.VoltageSolar * s.CurrentSolar
	powerAlternator := s.VoltageAlternator * s.CurrentAlternator
	powerTotal := powerSolar + powerAlternator

	out := Output{
		ProductName:     s.ProductModel,
		HardwareVersion: s.HardwareVersion,
		FirmwareVersion: s.SoftwareVersion,
		Serial:          s.SerialNumber,

		SolarVoltage: s.VoltageSolar,
		SolarPower:   powerSolar,
		// Input-level tracking state is not observable on this device family.
		SolarMode:         ModeTracking,
		AlternatorVoltage: s.VoltageAlternator,
		AlternatorPower:   powerAlternator,
		AlternatorMode:    ModeTracking,

		BatteryVoltage: s.BatteryVoltage,

		YieldPower:       Round(powerTotal, 1),
		MppOperationMode: operationMode(s.ChargeState),
		State:            chargeState(s.ChargeState),
		YieldUser:        Round(s.PowerDaily/1000, 3),
		YieldSystem:      Round(s.PowerTotal/1000, 2),
	}

	if s.BatteryVoltage == 0 {
		return out, ErrDivisionByZero
	}
	current := Round(powerTotal/s.BatteryVoltage, 2)
	out.BatteryCurrent = &current

	return out, nil
}

func operationMode(cs renogy.ChargeState) int {
	switch {
	case cs.NoCharging:
		return ModeOff
	case cs.CurrentLimited:
		return ModeLimited
	default:
		return ModeTracking
	}
}

// chargeState picks the first matching flag; nil when none is set.
func chargeState(cs renogy.ChargeState) *int {
	var state int
	switch {
	case cs.MPPTCharging:
		state = StateBulk
	case cs.Boost:
		state = StateAbsorption
	case cs.Float:
		state = StateFloat
	case cs.Equalization:
		state = StateEqualize
	default:
		return nil
	}
	return &state
}

// Values lists the output in publish order, skipping unset fields.
func (o Output) Values() []Value {
	values := []Value{
		{PathProductName, o.ProductName},
		{PathHardware, o.HardwareVersion},
		{PathFirmware, o.FirmwareVersion},
		{PathSerial, o.Serial},
		{PathMppOperationMode, o.MppOperationMode},
		{PathPv0Voltage, o.SolarVoltage},
		{PathPv0Power, o.SolarPower},
		{PathPv0Mode, o.SolarMode},
		{PathPv1Voltage, o.AlternatorVoltage},
		{PathPv1Power, o.AlternatorPower},
		{PathPv1Mode, o.AlternatorMode},
		{PathYieldPower, o.YieldPower},
		{PathDcVoltage, o.BatteryVoltage},
	}
	if o.BatteryCurrent != nil {
		values = append(values, Value{PathDcCurrent, *o.BatteryCurrent})
	}
	if o.State != nil {
		values = append(values, Value{PathState, *o.State})
	}
	return append(values,
		Value{PathYieldUser, o.YieldUser},
		Value{PathYieldSystem, o.YieldSystem},
	)
}

// Round rounds x to the given number of decimals, half to even on the exact
// binary value.
func Round(x float64, decimals int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', decimals, 64), 64)
	if err != nil {
		return x
	}
	return r
}
