// Package protocol implements the Switch HID protocol state machine:
// parsing Switch -> controller output reports, dispatching subcommands,
// emulating the SPI-ROM regions the Switch reads to identify a controller,
// and assembling the 50-byte controller -> Switch input reports.
package protocol

import (
	"time"

	"github.com/sirupsen/logrus"
)

const reportLength = 50

// InputFrame is the small value the input parser produces each cycle; the
// Protocol merges it into the live report fields. Keeping this a plain
// value (rather than handing the parser a back-reference into the
// Protocol's state) keeps ownership one-directional.
type InputFrame struct {
	Buttons    [3]byte
	LeftStick  [3]byte
	RightStick [3]byte
}

// IdleFrame is the all-zero frame: no buttons pressed and every stick byte
// zero. Zero stick bytes are not the calibrated centre encoding, so this
// frame does not describe sticks at rest; New seeds the centre bytes
// instead.
var IdleFrame = InputFrame{}

// State is the per-controller mutable protocol state.
type State struct {
	Mode              Mode
	PlayerNumber      int
	DeviceInfoQueried bool
	IMUEnabled        bool
	VibrationEnabled  bool

	BatteryLevel byte // high nibble, default 0x90 (full)

	ButtonBytes    [3]byte
	LeftStickBytes [3]byte
	RightStickBytes [3]byte
}

// pendingReply is the one-shot subcommand reply queued by ProcessOutputReport.
// BuildReport emits it until ConfirmSent clears it.
type pendingReply struct {
	ack     byte
	subcmd  byte
	payload []byte // copied starting at report offset 16
	// tail, when tailSet, is written at offset 49 (used by the NFC/IR
	// config reply, whose fixed blob leaves a trailing status byte).
	tail    byte
	tailSet bool
}

// Protocol is one emulated controller's HID state machine.
type Protocol struct {
	log *logrus.Entry

	identity Identity
	state    State

	handshake handshakeState
	pending   *pendingReply

	vibratorCycle [4]byte
	vibratorIdx   int

	startedAt time.Time
}

var defaultVibratorCycle = [4]byte{0xA0, 0xB0, 0xC0, 0x90}

// defaultLeftStickBytes and defaultRightStickBytes are the packed stick
// encodings for each stick resting at its calibrated centre (matching the
// calibration constants in the SPI stick-parameter regions). Every report
// carries these until ApplyInput first overwrites them, so a controller
// sitting idle never reads to the Switch as a stick pinned into a corner.
var (
	defaultLeftStickBytes  = [3]byte{0x6F, 0xC8, 0x77}
	defaultRightStickBytes = [3]byte{0x16, 0xD8, 0x7D}
)

// New constructs a Protocol for the given identity. The timer starts
// counting from this call.
func New(identity Identity, log *logrus.Entry) *Protocol {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Protocol{
		log:      log.WithField("controller", identity.Kind.String()),
		identity: identity,
		state: State{
			Mode:            ModeUnset,
			BatteryLevel:    0x90,
			LeftStickBytes:  defaultLeftStickBytes,
			RightStickBytes: defaultRightStickBytes,
		},
		handshake:     stateWaitingFirstByte,
		vibratorCycle: defaultVibratorCycle,
		startedAt:     time.Now(),
	}
}

// Identity returns the controller's fixed identity.
func (p *Protocol) Identity() Identity { return p.identity }

// State returns a copy of the current protocol state. It takes no lock, so
// it must be called from the goroutine that drives the Protocol.
func (p *Protocol) State() State { return p.state }

// IsPaired reports whether the "paired" transition has occurred: player
// lights set (non-zero player number) AND vibration enabled. This is the
// signal the Server's connect()/reconnect() handshake subloop waits on.
func (p *Protocol) IsPaired() bool {
	return p.state.PlayerNumber > 0 && p.state.VibrationEnabled
}

// ConfirmSent clears the pending subcommand reply after the caller has
// successfully written a BuildReport result to the wire. Call this only on
// a confirmed send; on ErrWouldBlock or any other send failure, leave the
// pending reply in place so the next BuildReport re-emits the same ack
// instead of silently dropping it.
func (p *Protocol) ConfirmSent() {
	p.pending = nil
}

// ApplyInput merges a frame produced by the input parser into the live
// report fields, respecting the per-kind stick masking invariant (JoyConR
// never emits left-stick bytes, JoyConL never emits right-stick bytes).
func (p *Protocol) ApplyInput(frame InputFrame) {
	p.state.ButtonBytes = frame.Buttons
	if p.identity.Kind.HasLeftStick() {
		p.state.LeftStickBytes = frame.LeftStick
	} else {
		p.state.LeftStickBytes = [3]byte{}
	}
	if p.identity.Kind.HasRightStick() {
		p.state.RightStickBytes = frame.RightStick
	} else {
		p.state.RightStickBytes = [3]byte{}
	}
}

// ProcessOutputReport parses one Switch -> controller report. Malformed
// reports (too short, or wrong leading byte) are ignored: the next
// BuildReport simply emits a plain standard report and state does not
// advance. Recognized subcommands queue a pendingReply that BuildReport
// emits until ConfirmSent clears it.
func (p *Protocol) ProcessOutputReport(report []byte) error {
	if len(report) < reportLength || report[0] != 0xA2 {
		p.log.WithField("len", len(report)).Debug("ignoring malformed output report")
		return ErrMalformedReport
	}

	if p.handshake == stateWaitingFirstByte {
		p.handshake = stateHandshake
	}

	subcmd := report[11]
	handler, ok := subcommandTable[subcmd]
	if !ok {
		p.log.WithField("subcommand", subcmd).Debug("unrecognized subcommand, ignoring (no NACK)")
		return nil
	}

	reply := handler(p, report)
	if reply != nil {
		p.pending = reply
		p.advanceVibratorCycle()
	}

	if p.IsPaired() && p.handshake != stateOperational {
		p.handshake = statePaired
	}

	return nil
}

func (p *Protocol) advanceVibratorCycle() {
	p.vibratorIdx = (p.vibratorIdx + 1) % len(p.vibratorCycle)
}

func (p *Protocol) currentVibratorByte() byte {
	return p.vibratorCycle[p.vibratorIdx]
}

// standardIMUPayload is the fixed 36-byte payload emitted at offsets 14..49
// of a full 0x30 report when IMU reporting is enabled. Real controllers put
// live accelerometer/gyro samples here; this emulation has no physical
// sensor to read, so it repeats a constant "controller at rest" sample
// across the three packed IMU frames — enough to satisfy the console
// without simulating motion.
var standardIMUPayload = func() [36]byte {
	var frame [12]byte // one IMU sample: accel xyz (2B each) + gyro xyz (2B each)
	// Accelerometer at rest on a Joy-Con reads roughly 0 on X/Y and ~4096
	// (1G) on Z in the real sensor's raw units; gyro at rest is ~0.
	frame[4] = 0x00
	frame[5] = 0x10 // Z accel high byte -> ~0x1000
	var payload [36]byte
	copy(payload[0:12], frame[:])
	copy(payload[12:24], frame[:])
	copy(payload[24:36], frame[:])
	return payload
}()

// BuildReport assembles the next controller -> Switch input report from any
// pending subcommand reply queued by ProcessOutputReport. It does NOT clear
// that pending reply — callers must call ConfirmSent once the report is
// actually written to the wire, so a transient send failure (e.g. a
// nonblocking socket momentarily full) doesn't silently drop an ack the
// Switch is waiting on; BuildReport simply re-emits the same pending reply
// on the next call until ConfirmSent is observed.
func (p *Protocol) BuildReport() []byte {
	var buf [reportLength]byte
	buf[0] = 0xA1

	elapsedMs := time.Since(p.startedAt).Milliseconds()
	buf[2] = byte((elapsedMs * 4) % 256)

	buf[3] = (p.state.BatteryLevel & 0xF0) | p.identity.Kind.connectionInfo()

	if p.state.DeviceInfoQueried {
		buf[4], buf[5], buf[6] = p.state.ButtonBytes[0], p.state.ButtonBytes[1], p.state.ButtonBytes[2]
		if p.identity.Kind.HasLeftStick() {
			buf[7], buf[8], buf[9] = p.state.LeftStickBytes[0], p.state.LeftStickBytes[1], p.state.LeftStickBytes[2]
		}
		if p.identity.Kind.HasRightStick() {
			buf[10], buf[11], buf[12] = p.state.RightStickBytes[0], p.state.RightStickBytes[1], p.state.RightStickBytes[2]
		}
	}

	buf[13] = p.currentVibratorByte()

	if p.pending != nil {
		buf[1] = 0x21
		buf[14] = p.pending.ack
		buf[15] = p.pending.subcmd
		copy(buf[16:], p.pending.payload)
		if p.pending.tailSet {
			buf[49] = p.pending.tail
		}
	} else {
		buf[1] = 0x30
		if p.state.IMUEnabled {
			copy(buf[14:50], standardIMUPayload[:])
		}
	}

	return buf[:]
}
