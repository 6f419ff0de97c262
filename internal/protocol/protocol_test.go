package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity() Identity {
	return NewIdentity(ProController, [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
}

func outputReportWithSubcommand(subcmd byte, args ...byte) []byte {
	report := make([]byte, 50)
	report[0] = 0xA2
	report[1] = 0x01
	report[11] = subcmd
	copy(report[12:], args)
	return report
}

func TestUniversalReportInvariants(t *testing.T) {
	p := New(testIdentity(), nil)
	r := p.BuildReport()
	require.Len(t, r, 50)
	assert.Equal(t, byte(0xA1), r[0])
	assert.Contains(t, []byte{0x21, 0x30}, r[1])
}

func TestDeviceInfoReply(t *testing.T) {
	p := New(testIdentity(), nil)

	report := outputReportWithSubcommand(0x02)
	require.NoError(t, p.ProcessOutputReport(report))

	r := p.BuildReport()
	assert.Equal(t, byte(0x21), r[1])
	assert.Equal(t, byte(0x82), r[14])
	assert.Equal(t, byte(0x02), r[15])
	assert.Equal(t, byte(0x03), r[16])
	assert.Equal(t, byte(0x8B), r[17])
	assert.Equal(t, byte(0x03), r[18]) // Pro Controller identity byte
	assert.Equal(t, byte(0x02), r[19])
	assert.Equal(t, [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, [6]byte(r[20:26]))
	assert.Equal(t, byte(0x01), r[26])
	assert.Equal(t, byte(0x01), r[27])
	assert.True(t, p.State().DeviceInfoQueried)
}

func TestSPIColourRead(t *testing.T) {
	identity := testIdentity()
	identity.BodyColour = [3]byte{0x10, 0x20, 0x30}
	identity.ButtonColour = [3]byte{0x40, 0x50, 0x60}
	p := New(identity, nil)

	// address (0x60, 0x50), length 13: args = [addrLo, addrMid, addrHi2, addrHi3, length]
	report := outputReportWithSubcommand(0x10, 0x50, 0x60, 0x00, 0x00, 13)
	require.NoError(t, p.ProcessOutputReport(report))

	r := p.BuildReport()
	assert.Equal(t, byte(0x90), r[14])
	assert.Equal(t, byte(0x10), r[15])
	assert.Equal(t, identity.BodyColour[:], r[21:24])
	assert.Equal(t, identity.ButtonColour[:], r[24:27])
	for _, b := range r[27:34] {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestUnrecognizedSubcommandEmitsStandardReport(t *testing.T) {
	p := New(testIdentity(), nil)
	report := outputReportWithSubcommand(0xFE)
	require.NoError(t, p.ProcessOutputReport(report))

	r := p.BuildReport()
	assert.Equal(t, byte(0x30), r[1])
}

func TestMalformedReportIgnored(t *testing.T) {
	p := New(testIdentity(), nil)
	err := p.ProcessOutputReport([]byte{0xA2, 0x00})
	assert.ErrorIs(t, err, ErrMalformedReport)

	r := p.BuildReport()
	assert.Equal(t, byte(0x30), r[1])
}

func TestJoyConStickMaskingInvariant(t *testing.T) {
	pL := New(NewIdentity(JoyConL, [6]byte{}), nil)
	pR := New(NewIdentity(JoyConR, [6]byte{}), nil)

	pL.ApplyInput(InputFrame{LeftStick: [3]byte{1, 2, 3}, RightStick: [3]byte{4, 5, 6}})
	pR.ApplyInput(InputFrame{LeftStick: [3]byte{1, 2, 3}, RightStick: [3]byte{4, 5, 6}})

	// Force device-info queried so live bytes are emitted.
	pL.state.DeviceInfoQueried = true
	pR.state.DeviceInfoQueried = true

	rl := pL.BuildReport()
	rr := pR.BuildReport()

	assert.Equal(t, []byte{0, 0, 0}, rr[7:10], "JoyConR must always emit zero left-stick bytes")
	assert.Equal(t, []byte{0, 0, 0}, rl[10:13], "JoyConL must always emit zero right-stick bytes")
}

func TestPlayerLightsAndVibrationCompletePairing(t *testing.T) {
	p := New(testIdentity(), nil)
	assert.False(t, p.IsPaired())

	require.NoError(t, p.ProcessOutputReport(outputReportWithSubcommand(0x30, 0x01)))
	assert.False(t, p.IsPaired(), "player lights alone is not pairing complete")

	require.NoError(t, p.ProcessOutputReport(outputReportWithSubcommand(0x48)))
	assert.True(t, p.IsPaired())
}

func TestDeviceInfoGatesLiveBytes(t *testing.T) {
	p := New(testIdentity(), nil)
	p.ApplyInput(InputFrame{Buttons: [3]byte{0xFF, 0xFF, 0xFF}})

	r := p.BuildReport()
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0}, r[4:13])
}

func TestNewProtocolDefaultsSticksToCalibratedCentre(t *testing.T) {
	p := New(testIdentity(), nil)
	state := p.State()
	assert.Equal(t, [3]byte{0x6F, 0xC8, 0x77}, state.LeftStickBytes)
	assert.Equal(t, [3]byte{0x16, 0xD8, 0x7D}, state.RightStickBytes)
}

func TestSPIStickCalibrationUsesRealConstants(t *testing.T) {
	p := New(testIdentity(), nil)

	// address (0x60, 0x3D), length 25.
	report := outputReportWithSubcommand(0x10, 0x3D, 0x60, 0x00, 0x00, 25)
	require.NoError(t, p.ProcessOutputReport(report))

	r := p.BuildReport()
	assert.Equal(t, []byte{0xBA, 0xF5, 0x62, 0x6F, 0xC8, 0x77, 0xED, 0x95, 0x5B}, r[21:30])
	assert.Equal(t, []byte{0x16, 0xD8, 0x7D, 0xF2, 0xB5, 0x5F, 0x86, 0x65, 0x5E}, r[30:39])
}

func TestSixAxisFactoryParamsDifferByKind(t *testing.T) {
	assert.Equal(t, []byte{0x50, 0xFD, 0x00, 0x00, 0xC6, 0x0F}, sixAxisFactoryParams(ProController))
	assert.Equal(t, []byte{0x5E, 0x01, 0x00, 0x00, 0xF1, 0x0F}, sixAxisFactoryParams(JoyConL))
	assert.Equal(t, []byte{0x5E, 0x01, 0x00, 0x00, 0x0F, 0xF0}, sixAxisFactoryParams(JoyConR))
}
