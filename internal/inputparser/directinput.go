package inputparser

// StickInput is one stick's slice of a direct-input packet. X and Y are in
// [-100, 100]; the direction booleans are an alternate encoding used by
// discrete-keyboard sources that can't produce an analog value.
type StickInput struct {
	Pressed              bool
	X, Y                 int
	Up, Down, Left, Right bool
}

// InputPacket is the fixed-shape direct-input record written into a
// controller's shared direct-input slot.
type InputPacket struct {
	Buttons    map[Button]bool
	LeftStick  StickInput
	RightStick StickInput
}

// IdlePacket is the canonical "no direct input" packet: all booleans false,
// all integers zero.
func IdlePacket() InputPacket {
	return InputPacket{Buttons: make(map[Button]bool)}
}

// IsIdle reports whether p is equal to the canonical idle packet.
func (p InputPacket) IsIdle() bool {
	for _, down := range p.Buttons {
		if down {
			return false
		}
	}
	return p.LeftStick == StickInput{} && p.RightStick == StickInput{}
}

// resolveStickRatio converts a StickInput into calibration-ready ratios in
// [-1, 1], falling back to the direction booleans when no analog value was
// supplied (keyboard sources).
func resolveStickRatio(s StickInput) (float64, float64) {
	x := float64(s.X) / 100.0
	y := float64(s.Y) / 100.0
	if x == 0 && y == 0 {
		if s.Left {
			x = -1
		}
		if s.Right {
			x = 1
		}
		if s.Up {
			y = 1
		}
		if s.Down {
			y = -1
		}
	}
	return x, y
}
