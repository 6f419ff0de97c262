package inputparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMacroHoldAndWait(t *testing.T) {
	frames, err := ParseMacro("A 0.5s\n0.5s")
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.True(t, frames[0].Buttons[ButtonA])
	assert.Equal(t, 500*time.Millisecond, frames[0].Duration)

	assert.Empty(t, frames[1].Buttons)
	assert.Equal(t, 500*time.Millisecond, frames[1].Duration)
}

func TestParseMacroComments(t *testing.T) {
	frames, err := ParseMacro("# a comment\n\nA 0.1s\n")
	require.NoError(t, err)
	require.Len(t, frames, 1)
}

func TestNestedLoopExpansion(t *testing.T) {
	macro := "LOOP 2\n\tLOOP 3\n\t\tB 0.1s\n\t\t0.1s\n"
	frames, err := ParseMacro(macro)
	require.NoError(t, err)
	require.Len(t, frames, 12)

	total := time.Duration(0)
	for _, f := range frames {
		total += f.Duration
	}
	assert.Equal(t, 1200*time.Millisecond, total)
}

func TestLoopWithoutIndentedBodyErrors(t *testing.T) {
	macro := "LOOP 3\nA 0.1s\n"
	_, err := ParseMacro(macro)
	require.Error(t, err)
}

func TestStickTiltToken(t *testing.T) {
	frames, err := ParseMacro("L_STICK@+100+000 0.1s\n0.1s")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.NotNil(t, frames[0].LeftStick)
	assert.InDelta(t, 1.0, frames[0].LeftStick.X, 1e-9)
	assert.InDelta(t, 0.0, frames[0].LeftStick.Y, 1e-9)

	packed := PackStick(frames[0].LeftStick.X, frames[0].LeftStick.Y, LeftStickCal)
	ux := LeftStickCal.CenterX + LeftStickCal.MaxX
	uy := LeftStickCal.CenterY
	assert.Equal(t, byte(ux&0xFF), packed[0])
	assert.Equal(t, byte(((uy&0x0F)<<4)|(ux>>8)), packed[1])
	assert.Equal(t, byte(uy>>4), packed[2])
}

func TestEmptyMacroFinishesInstantly(t *testing.T) {
	p := NewParser()
	p.QueueMacro("m1", "\n  \n")
	p.Tick(time.Now())
	assert.Contains(t, p.FinishedMacros(), "m1")
}

func TestStopUnknownMacroDoesNotPanic(t *testing.T) {
	p := NewParser()
	assert.NotPanics(t, func() { p.StopMacro("does-not-exist") })
	assert.Contains(t, p.FinishedMacros(), "does-not-exist")
}

func TestClearMacrosDoesNotSignalFinished(t *testing.T) {
	p := NewParser()
	p.QueueMacro("m1", "A 5s")
	p.Tick(time.Now())
	p.ClearMacros()
	assert.NotContains(t, p.FinishedMacros(), "m1")
}

func TestDirectInputOverridesMacroForOneCycle(t *testing.T) {
	p := NewParser()
	p.QueueMacro("m1", "A 1s")
	start := time.Now()
	p.Tick(start)

	direct := IdlePacket()
	direct.Buttons[ButtonB] = true
	p.SetDirectInput(direct)
	frame := p.Tick(start.Add(10 * time.Millisecond))
	assert.Equal(t, EncodeButtons(map[Button]bool{ButtonB: true}), frame.Buttons)

	p.SetDirectInput(IdlePacket())
	frame = p.Tick(start.Add(20 * time.Millisecond))
	assert.Equal(t, EncodeButtons(map[Button]bool{ButtonA: true}), frame.Buttons)
}

func TestDirectInputOverrideDoesNotBurnDownMacroHold(t *testing.T) {
	p := NewParser()
	p.QueueMacro("m1", "A 0.1s")
	start := time.Now()
	p.Tick(start)

	direct := IdlePacket()
	direct.Buttons[ButtonB] = true
	p.SetDirectInput(direct)
	// Held through direct input for far longer than the macro frame's own
	// duration; none of this should count against the frame's remaining
	// hold once direct input clears.
	p.Tick(start.Add(5 * time.Second))

	p.SetDirectInput(IdlePacket())
	frame := p.Tick(start.Add(5*time.Second + 10*time.Millisecond))
	assert.Equal(t, EncodeButtons(map[Button]bool{ButtonA: true}), frame.Buttons,
		"macro frame should still be held after a long direct-input override")
	assert.NotContains(t, p.FinishedMacros(), "m1")
}

func TestRoundTripStickCalibration(t *testing.T) {
	ratios := []float64{-1, -0.5, 0, 0.5, 1}
	for _, rx := range ratios {
		for _, ry := range ratios {
			packed := PackStick(rx, ry, LeftStickCal)
			ux := int(packed[0]) | (int(packed[1]&0x0F) << 8)
			uy := (int(packed[1]) >> 4) | (int(packed[2]) << 4)

			invX := inverseCalibrate(ux, LeftStickCal.MinX, LeftStickCal.MaxX, LeftStickCal.CenterX)
			invY := inverseCalibrate(uy, LeftStickCal.MinY, LeftStickCal.MaxY, LeftStickCal.CenterY)
			assert.InDelta(t, rx, invX, 0.02)
			assert.InDelta(t, ry, invY, 0.02)
		}
	}
}

func TestIdleTickReturnsCentredSticksNotZero(t *testing.T) {
	p := NewParser()
	frame := p.Tick(time.Now())

	assert.Equal(t, neutralStick(LeftStickCal), frame.LeftStick)
	assert.Equal(t, neutralStick(RightStickCal), frame.RightStick)
	assert.NotEqual(t, [3]byte{}, frame.LeftStick, "zero bytes decode as a hard corner, not centre")
}

func inverseCalibrate(u, min, max, center int) float64 {
	delta := float64(u - center)
	if delta < 0 {
		return -delta / float64(min)
	}
	if delta > 0 {
		return delta / float64(max)
	}
	return 0
}
