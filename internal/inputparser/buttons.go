// Package inputparser implements macro text parsing with LOOP expansion,
// button-bit encoding, stick calibration math, and the direct-input-vs-
// macro scheduler that feeds protocol.InputFrame values into a Protocol
// each cycle.
package inputparser

// Button is one of the macro grammar's button tokens.
type Button string

const (
	ButtonY             Button = "Y"
	ButtonX             Button = "X"
	ButtonB             Button = "B"
	ButtonA             Button = "A"
	ButtonR             Button = "R"
	ButtonZR            Button = "ZR"
	ButtonL             Button = "L"
	ButtonZL            Button = "ZL"
	ButtonMinus         Button = "MINUS"
	ButtonPlus          Button = "PLUS"
	ButtonHome          Button = "HOME"
	ButtonCapture       Button = "CAPTURE"
	ButtonRStickPress   Button = "R_STICK_PRESS"
	ButtonLStickPress   Button = "L_STICK_PRESS"
	ButtonDPadUp        Button = "DPAD_UP"
	ButtonDPadDown      Button = "DPAD_DOWN"
	ButtonDPadLeft      Button = "DPAD_LEFT"
	ButtonDPadRight     Button = "DPAD_RIGHT"
	ButtonJCLSR         Button = "JCL_SR"
	ButtonJCLSL         Button = "JCL_SL"
	ButtonJCRSR         Button = "JCR_SR"
	ButtonJCRSL         Button = "JCR_SL"
)

type bitLocation struct {
	byteIndex int
	bit       uint
}

// buttonBits resolves each button token to its bit position in the
// protocol's three button bytes: upper byte bit 0=Y, 1=X, 2=B, 3=A,
// 4=JCL_SR, 5=JCL_SL, 6=R, 7=ZR.
var buttonBits = map[Button]bitLocation{
	ButtonY:     {0, 0},
	ButtonX:     {0, 1},
	ButtonB:     {0, 2},
	ButtonA:     {0, 3},
	ButtonJCLSR: {0, 4},
	ButtonJCLSL: {0, 5},
	ButtonR:     {0, 6},
	ButtonZR:    {0, 7},

	ButtonMinus:       {1, 0},
	ButtonPlus:        {1, 1},
	ButtonRStickPress: {1, 2},
	ButtonLStickPress: {1, 3},
	ButtonHome:        {1, 4},
	ButtonCapture:     {1, 5},

	ButtonDPadDown:  {2, 0},
	ButtonDPadUp:    {2, 1},
	ButtonDPadRight: {2, 2},
	ButtonDPadLeft:  {2, 3},
	ButtonJCRSR:     {2, 4},
	ButtonJCRSL:     {2, 5},
	ButtonL:         {2, 6},
	ButtonZL:        {2, 7},
}

// EncodeButtons packs a set of held buttons into the protocol's three
// button bytes.
func EncodeButtons(held map[Button]bool) [3]byte {
	var out [3]byte
	for b, down := range held {
		if !down {
			continue
		}
		loc, ok := buttonBits[b]
		if !ok {
			continue
		}
		out[loc.byteIndex] |= 1 << loc.bit
	}
	return out
}
