package telemetry

// Paths of the solarcharger service. The set and spelling are fixed by the
// consumers on the energy bus.
const (
	PathProcessName    = "/Mgmt/ProcessName"
	PathProcessVersion = "/Mgmt/ProcessVersion"
	PathConnection     = "/Mgmt/Connection"
	PathDeviceInstance = "/DeviceInstance"
	PathProductID      = "/ProductId"
	PathProductName    = "/ProductName"
	PathSerial         = "/Serial"
	PathFirmware       = "/FirmwareVersion"
	PathHardware       = "/HardwareVersion"
	PathConnected      = "/Connected"

	// Solar input
	PathPv0Voltage = "/Pv/0/V"
	PathPv0Power   = "/Pv/0/P"
	PathPv0Mode    = "/Pv/0/MppOperationMode"

	// Alternator input
	PathPv1Voltage = "/Pv/1/V"
	PathPv1Power   = "/Pv/1/P"
	PathPv1Mode    = "/Pv/1/MppOperationMode"

	// Battery
	PathDcVoltage = "/Dc/0/Voltage"
	PathDcCurrent = "/Dc/0/Current"

	PathYieldPower       = "/Yield/Power"
	PathMppOperationMode = "/MppOperationMode"
	PathState            = "/State"
	PathYieldUser        = "/Yield/User"
	PathYieldSystem      = "/Yield/System"
)

// MppOperationMode values
const (
	ModeOff      = 0
	ModeLimited  = 1
	ModeTracking = 2
)

// State values
const (
	StateOff        = 0
	StateFault      = 2
	StateBulk       = 3
	StateAbsorption = 4
	StateFloat      = 5
	StateStorage    = 6
	StateEqualize   = 7
)

// Identity describes this process instance for the management paths.
type Identity struct {
	ProcessName    string
	ProcessVersion string
	Connection     string
	DeviceInstance int
}

// Declarer registers a path with its initial value.
type Declarer interface {
	Declare(path string, initial any) error
}

// Declare registers every path of the service, in bus order.
func Declare(d Declarer, id Identity) error {
	initial := []Value{
		{PathProcessName, id.ProcessName},
		{PathProcessVersion, id.ProcessVersion},
		{PathConnection, id.Connection},
		{PathDeviceInstance, id.DeviceInstance},
		{PathProductID, 0},
		{PathProductName, nil},
		{PathSerial, 0},
		{PathFirmware, 0},
		{PathHardware, 0},
		{PathConnected, 1},
		{PathPv0Voltage, 0},
		{PathPv0Power, 0},
		{PathPv0Mode, 0},
		{PathPv1Voltage, 0},
		{PathPv1Power, 0},
		{PathPv1Mode, 0},
		{PathDcVoltage, 0},
		{PathDcCurrent, 0},
		{PathYieldPower, 0},
		{PathMppOperationMode, 0},
		{PathState, 0},
		{PathYieldUser, 0},
		{PathYieldSystem, 0},
	}

	for _, v := range initial {
		if err := d.Declare(v.Path, v.Value); err != nil {
			return err
		}
	}
	return nil
}
