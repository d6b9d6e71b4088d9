package telemetry

import (
	"errors"
	"reflect"
	"testing"

	"renogy-dcc/internal/renogy"
)

func sampleSnapshot() *renogy.Snapshot {
	return &renogy.Snapshot{
		ProductModel:      "DCC50S",
		HardwareVersion:   "V1.0.0",
		SoftwareVersion:   "V1.0.4",
		SerialNumber:      "12345678",
		VoltageSolar:      20.0,
		CurrentSolar:      2.0,
		VoltageAlternator: 14.0,
		CurrentAlternator: 1.0,
		BatteryVoltage:    13.0,
		PowerDaily:        1234,
		PowerTotal:        98764,
		ChargeState:       renogy.ChargeState{MPPTCharging: true},
	}
}

func valueMap(o Output) map[string]any {
	m := make(map[string]any)
	for _, v := range o.Values() {
		m[v.Path] = v.Value
	}
	return m
}

func TestMap_NumericExample(t *testing.T) {
	out, err := Map(sampleSnapshot())
	if err != nil {
		t.Fatalf("Map err=%v", err)
	}

	if out.SolarPower != 40.0 {
		t.Fatalf("solar power: got %v", out.SolarPower)
	}
	if out.AlternatorPower != 14.0 {
		t.Fatalf("alternator power: got %v", out.AlternatorPower)
	}
	if out.YieldPower != 54.0 {
		t.Fatalf("yield power: got %v", out.YieldPower)
	}
	if out.BatteryCurrent == nil || *out.BatteryCurrent != 4.15 {
		t.Fatalf("battery current: got %v", out.BatteryCurrent)
	}
	if out.YieldUser != 1.234 {
		t.Fatalf("yield user: got %v", out.YieldUser)
	}
	if out.YieldSystem != 98.76 {
		t.Fatalf("yield system: got %v", out.YieldSystem)
	}

	values := valueMap(out)
	if values[PathYieldPower] != 54.0 || values[PathDcCurrent] != 4.15 {
		t.Fatalf("published values: %v", values)
	}
	if values[PathProductName] != "DCC50S" || values[PathFirmware] != "V1.0.4" {
		t.Fatalf("identity values: %v", values)
	}
}

func TestMap_Deterministic(t *testing.T) {
	s := sampleSnapshot()

	a, errA := Map(s)
	b, errB := Map(s)
	if errA != nil || errB != nil {
		t.Fatalf("Map errs=%v %v", errA, errB)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("outputs differ:\n%+v\n%+v", a, b)
	}
	if !reflect.DeepEqual(a.Values(), b.Values()) {
		t.Fatalf("values differ")
	}
}

func TestMap_StatePriority(t *testing.T) {
	cases := []struct {
		name  string
		flags renogy.ChargeState
		want  *int
	}{
		{"mppt beats boost", renogy.ChargeState{MPPTCharging: true, Boost: true}, intPtr(StateBulk)},
		{"boost beats float", renogy.ChargeState{Boost: true, Float: true}, intPtr(StateAbsorption)},
		{"float beats equalization", renogy.ChargeState{Float: true, Equalization: true}, intPtr(StateFloat)},
		{"equalization", renogy.ChargeState{Equalization: true}, intPtr(StateEqualize)},
		{"none", renogy.ChargeState{}, nil},
		{"only no_charging", renogy.ChargeState{NoCharging: true}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := sampleSnapshot()
			s.ChargeState = tc.flags

			out, err := Map(s)
			if err != nil {
				t.Fatalf("Map err=%v", err)
			}
			if !reflect.DeepEqual(out.State, tc.want) {
				t.Fatalf("state: got %v want %v", deref(out.State), deref(tc.want))
			}

			_, published := valueMap(out)[PathState]
			if published != (tc.want != nil) {
				t.Fatalf("state published=%v, want %v", published, tc.want != nil)
			}
		})
	}
}

func TestMap_OperationMode(t *testing.T) {
	cases := []struct {
		flags renogy.ChargeState
		want  int
	}{
		{renogy.ChargeState{NoCharging: true, CurrentLimited: true}, ModeOff},
		{renogy.ChargeState{CurrentLimited: true, MPPTCharging: true}, ModeLimited},
		{renogy.ChargeState{Boost: true}, ModeTracking},
		{renogy.ChargeState{}, ModeTracking},
	}

	for _, tc := range cases {
		s := sampleSnapshot()
		s.ChargeState = tc.flags

		out, _ := Map(s)
		if out.MppOperationMode != tc.want {
			t.Fatalf("flags %+v: got mode %d want %d", tc.flags, out.MppOperationMode, tc.want)
		}
		if out.SolarMode != ModeTracking || out.AlternatorMode != ModeTracking {
			t.Fatalf("per-input modes must stay at tracking, got %d/%d", out.SolarMode, out.AlternatorMode)
		}
	}
}

func TestMap_ZeroBatteryVoltage(t *testing.T) {
	s := sampleSnapshot()
	s.BatteryVoltage = 0

	out, err := Map(s)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
	if out.BatteryCurrent != nil {
		t.Fatalf("battery current must not be set, got %v", *out.BatteryCurrent)
	}

	values := valueMap(out)
	if _, ok := values[PathDcCurrent]; ok {
		t.Fatalf("%s must not be published", PathDcCurrent)
	}
	if values[PathDcVoltage] != 0.0 || values[PathYieldPower] != 54.0 {
		t.Fatalf("independent values still expected: %v", values)
	}
}

func TestRound(t *testing.T) {
	cases := []struct {
		x        float64
		decimals int
		want     float64
	}{
		{54.0 / 13.0, 2, 4.15},
		{2.675, 2, 2.67}, // 2.675 is stored just below the half
		{0.125, 2, 0.12}, // exact tie rounds to even
		{0.375, 2, 0.38},
		{1.5, 0, 2},
		{2.5, 0, 2},
		{-1.25, 1, -1.2},
		{53.96, 1, 54.0},
	}

	for _, tc := range cases {
		if got := Round(tc.x, tc.decimals); got != tc.want {
			t.Fatalf("Round(%v, %d) = %v, want %v", tc.x, tc.decimals, got, tc.want)
		}
	}
}

func TestDeclare_AllPaths(t *testing.T) {
	d := &recordingDeclarer{}
	err := Declare(d, Identity{
		ProcessName:    "/usr/bin/renogy-dcc",
		ProcessVersion: "1.0.0",
		Connection:     "/dev/ttyUSB0",
		DeviceInstance: 3,
	})
	if err != nil {
		t.Fatalf("Declare err=%v", err)
	}

	want := []string{
		"/Mgmt/ProcessName", "/Mgmt/ProcessVersion", "/Mgmt/Connection", "/DeviceInstance",
		"/ProductId", "/ProductName", "/Serial", "/FirmwareVersion", "/HardwareVersion",
		"/Connected", "/Pv/0/V", "/Pv/0/P", "/Pv/0/MppOperationMode", "/Pv/1/V", "/Pv/1/P",
		"/Pv/1/MppOperationMode", "/Dc/0/Voltage", "/Dc/0/Current", "/Yield/Power",
		"/MppOperationMode", "/State", "/Yield/User", "/Yield/System",
	}
	if !reflect.DeepEqual(d.paths, want) {
		t.Fatalf("declared paths:\n got %v\nwant %v", d.paths, want)
	}
	if d.values["/DeviceInstance"] != 3 || d.values["/Connected"] != 1 || d.values["/ProductName"] != nil {
		t.Fatalf("unexpected initial values: %v", d.values)
	}
}

func TestValues_OnlyDeclaredPaths(t *testing.T) {
	d := &recordingDeclarer{}
	_ = Declare(d, Identity{})

	out, _ := Map(sampleSnapshot())
	for _, v := range out.Values() {
		if _, ok := d.values[v.Path]; !ok {
			t.Fatalf("output path %s is not declared", v.Path)
		}
	}
}

type recordingDeclarer struct {
	paths  []string
	values map[string]any
}

func (r *recordingDeclarer) Declare(path string, initial any) error {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	r.paths = append(r.paths, path)
	r.values[path] = initial
	return nil
}

func intPtr(v int) *int { return &v }

func deref(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
