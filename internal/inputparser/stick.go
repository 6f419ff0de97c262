package inputparser

import "math"

// StickCal holds the fixed calibration constants for one analog stick.
type StickCal struct {
	CenterX, CenterY int
	MinX, MaxX       int
	MinY, MaxY       int
}

var LeftStickCal = StickCal{
	CenterX: 2159, CenterY: 1916,
	MinX: -1466, MaxX: 1517,
	MinY: -1583, MaxY: 1465,
}

var RightStickCal = StickCal{
	CenterX: 2070, CenterY: 2013,
	MinX: -1522, MaxX: 1414,
	MinY: -1531, MaxY: 1510,
}

func calibrateAxis(ratio float64, min, max, center int) int {
	extreme := max
	if ratio < 0 {
		extreme = min
	}
	return int(math.Round(math.Abs(ratio)*float64(extreme) + float64(center)))
}

func clip12Bit(v int) int {
	if v < 0 {
		return 0
	}
	if v > 0xFFF {
		return 0xFFF
	}
	return v
}

// packStickBytes little-endian-packs a 12-bit (ux, uy) pair into the
// protocol's 3-byte stick encoding.
func packStickBytes(ux, uy int) [3]byte {
	ux, uy = clip12Bit(ux), clip12Bit(uy)
	return [3]byte{
		byte(ux & 0xFF),
		byte(((uy & 0x0F) << 4) | (ux >> 8)),
		byte(uy >> 4),
	}
}

// PackStick converts stick ratios rx, ry in [-1, 1] into the calibrated,
// packed 3-byte stick encoding.
func PackStick(rx, ry float64, cal StickCal) [3]byte {
	ux := calibrateAxis(rx, cal.MinX, cal.MaxX, cal.CenterX)
	uy := calibrateAxis(ry, cal.MinY, cal.MaxY, cal.CenterY)
	return packStickBytes(ux, uy)
}

// neutralStick is the packed encoding for a stick held at its calibrated
// centre (used when a hold line names buttons but no stick tilt).
func neutralStick(cal StickCal) [3]byte {
	return PackStick(0, 0, cal)
}
