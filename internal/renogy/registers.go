package renogy

// Renogy DCC holding register map.
// All values are big-endian; 32-bit values are high word first.

const (
	// Product information block
	RegProductModel    = 0x000C // 8 registers, ASCII, space padded
	RegSoftwareVersion = 0x0014 // 2 registers, bytes 1..3 = major.minor.patch
	RegHardwareVersion = 0x0016 // 2 registers, bytes 1..3 = major.minor.patch
	RegSerialNumber    = 0x0018 // 2 registers, U32

	infoStart = RegProductModel
	infoCount = RegSerialNumber + 2 - RegProductModel

	// Dynamic data block
	RegBatterySOC        = 0x0100 // %
	RegBatteryVoltage    = 0x0101 // 0.1V
	RegChargingCurrent   = 0x0102 // 0.01A
	RegAlternatorVoltage = 0x0104 // 0.1V
	RegAlternatorCurrent = 0x0105 // 0.01A
	RegAlternatorPower   = 0x0106 // W
	RegSolarVoltage      = 0x0107 // 0.1V
	RegSolarCurrent      = 0x0108 // 0.01A
	RegSolarPower        = 0x0109 // W
	RegPowerDaily        = 0x0113 // Wh, current day
	RegOperatingDays     = 0x0115
	RegPowerTotal        = 0x011C // 2 registers, U32, Wh
	RegChargingState     = 0x0120 // low byte

	dataStart = RegBatterySOC
	dataCount = RegChargingState + 1 - RegBatterySOC
)

// Charging states reported in the low byte of RegChargingState.
const (
	StateNotCharging     = 0x00
	StateActivated       = 0x01
	StateMPPT            = 0x02
	StateEqualizing      = 0x03
	StateBoost           = 0x04
	StateFloat           = 0x05
	StateCurrentLimiting = 0x06
	StateDirect          = 0x08
)

func GetChargingStateString(state uint8) string {
	switch state {
	case StateNotCharging:
		return "Not charging"
	case StateActivated:
		return "Activated"
	case StateMPPT:
		return "MPPT"
	case StateEqualizing:
		return "Equalizing"
	case StateBoost:
		return "Boost"
	case StateFloat:
		return "Float"
	case StateCurrentLimiting:
		return "Current limiting"
	case StateDirect:
		return "Direct"
	default:
		return "Unknown"
	}
}
