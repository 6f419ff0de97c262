package protocol

// spiAddress identifies an SPI-ROM region by its (top, bottom) address
// bytes, as used in subcommand 0x10's request payload.
type spiAddress struct {
	top    byte
	bottom byte
}

// stickParamBlock is the 18-byte factory stick-parameter block shared by
// the 0x6080 and 0x6098 regions; only the deadzone byte differs by kind.
func stickParamBlock(k Kind) []byte {
	return []byte{
		0x0F, 0x30, 0x61,
		k.spiStickDeadzone(), 0x30, 0xF3,
		0xD4, 0x14, 0x54,
		0x41, 0x15, 0x54,
		0xC7, 0x79, 0x9C,
		0x33, 0x36, 0x63,
	}
}

// sixAxisFactoryParams is the 6-byte six-axis factory parameter block
// preceding the stick parameters in SPI region (0x60, 0x80); it differs
// between the Pro Controller and each Joy-Con.
func sixAxisFactoryParams(k Kind) []byte {
	switch k {
	case JoyConL:
		return []byte{0x5E, 0x01, 0x00, 0x00, 0xF1, 0x0F}
	case JoyConR:
		return []byte{0x5E, 0x01, 0x00, 0x00, 0x0F, 0xF0}
	default:
		return []byte{0x50, 0xFD, 0x00, 0x00, 0xC6, 0x0F}
	}
}

// sixAxisCal is the factory six-axis (accelerometer + gyro) calibration
// block at SPI region (0x60, 0x20): acceleration origin, acceleration
// sensitivity coefficient, gyro origin at rest, and gyro sensitivity
// coefficient, in that order.
var sixAxisCal = [24]byte{
	0xD3, 0xFF, 0xD5, 0xFF, 0x55, 0x01,
	0x00, 0x40, 0x00, 0x40, 0x00, 0x40,
	0x19, 0x00, 0xDD, 0xFF, 0xDC, 0xFF,
	0x3B, 0x34, 0x3B, 0x34, 0x3B, 0x34,
}

// leftStickCal and rightStickCal are the factory analog-stick calibration
// blocks at SPI region (0x60, 0x3D): 3 packed 12-bit (X,Y) triplets each.
// The two sticks use different triplet orders (a real console quirk, not a
// bug here): left is [max deviation above centre, centre, max deviation
// below centre], right is [centre, max deviation above centre, max
// deviation below centre]. Each stick's centre triplet matches the stick
// bytes a paired, idle controller reports at rest.
var (
	leftStickCal = [9]byte{
		0xBA, 0xF5, 0x62,
		0x6F, 0xC8, 0x77,
		0xED, 0x95, 0x5B,
	}
	rightStickCal = [9]byte{
		0x16, 0xD8, 0x7D,
		0xF2, 0xB5, 0x5F,
		0x86, 0x65, 0x5E,
	}
)

func fill(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// readSPI returns the full emulated contents of one of the controller's
// SPI-ROM regions (nil for an unknown address); handleSPIFlashRead
// truncates the result to the requested length.
func readSPI(k Kind, identity Identity, addr spiAddress) []byte {
	switch addr {
	case spiAddress{0x60, 0x00}: // serial number -> "no serial"
		return fill(0xFF, 16)

	case spiAddress{0x60, 0x50}: // colours
		out := make([]byte, 0, 13)
		out = append(out, identity.BodyColour[:]...)
		out = append(out, identity.ButtonColour[:]...)
		out = append(out, fill(0xFF, 7)...)
		return out

	case spiAddress{0x60, 0x80}: // factory sensor/stick params
		out := make([]byte, 0, 24)
		out = append(out, sixAxisFactoryParams(k)...)
		out = append(out, stickParamBlock(k)...)
		return out

	case spiAddress{0x60, 0x98}: // stick params 2
		return stickParamBlock(k)

	case spiAddress{0x60, 0x3D}: // factory stick calibration
		out := make([]byte, 0, 25)
		if k.HasLeftStick() {
			out = append(out, leftStickCal[:]...)
		} else {
			out = append(out, fill(0xFF, 9)...)
		}
		if k.HasRightStick() {
			out = append(out, rightStickCal[:]...)
		} else {
			out = append(out, fill(0xFF, 9)...)
		}
		out = append(out, 0xFF) // spacer
		out = append(out, identity.BodyColour[:]...)
		out = append(out, identity.ButtonColour[:]...)
		return out

	case spiAddress{0x60, 0x20}: // six-axis calibration
		return sixAxisCal[:]

	case spiAddress{0x80, 0x10}: // user stick calibration (unset)
		return fill(0xFF, 24)

	default:
		return nil
	}
}
