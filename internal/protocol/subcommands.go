package protocol

// subcommandTable dispatches a recognized Switch -> controller subcommand id
// (output report offset 11) to a handler that builds the pendingReply for
// the next input report.
var subcommandTable = map[byte]func(p *Protocol, report []byte) *pendingReply{
	0x02: handleRequestDeviceInfo,
	0x08: handleSetShipmentLowPower,
	0x10: handleSPIFlashRead,
	0x03: handleSetInputReportMode,
	0x04: handleTriggerButtonsElapsedTime,
	0x40: handleToggleIMU,
	0x48: handleEnableVibration,
	0x30: handleSetPlayerLights,
	0x22: handleSetNFCIRState,
	0x21: handleSetNFCIRConfig,
}

// subcommandArgs returns the subcommand's argument bytes, which start at
// output report offset 12 (offset 11 is the subcommand id itself).
func subcommandArgs(report []byte) []byte {
	if len(report) <= 12 {
		return nil
	}
	return report[12:]
}

func handleRequestDeviceInfo(p *Protocol, report []byte) *pendingReply {
	p.state.DeviceInfoQueried = true

	payload := make([]byte, 0, 12)
	payload = append(payload, 0x03, 0x8B) // firmware version 3.8.11-ish
	payload = append(payload, p.identity.Kind.identityByte())
	payload = append(payload, 0x02) // constant
	payload = append(payload, p.identity.MAC[:]...)
	payload = append(payload, 0x01) // colour-location flag: SPI
	payload = append(payload, 0x01)

	return &pendingReply{ack: 0x82, subcmd: 0x02, payload: payload}
}

func handleSetShipmentLowPower(p *Protocol, report []byte) *pendingReply {
	return &pendingReply{ack: 0x80, subcmd: 0x08}
}

func handleSPIFlashRead(p *Protocol, report []byte) *pendingReply {
	args := subcommandArgs(report)
	if len(args) < 5 {
		return &pendingReply{ack: 0x90, subcmd: 0x10}
	}

	addr := spiAddress{top: args[1], bottom: args[0]}
	length := args[4]

	data := readSPI(p.identity.Kind, p.identity, addr)
	if int(length) < len(data) {
		data = data[:length]
	}

	payload := make([]byte, 0, 5+len(data))
	payload = append(payload, args[0], args[1], args[2], args[3], length)
	payload = append(payload, data...)

	return &pendingReply{ack: 0x90, subcmd: 0x10, payload: payload}
}

func handleSetInputReportMode(p *Protocol, report []byte) *pendingReply {
	args := subcommandArgs(report)
	if len(args) > 0 {
		switch Mode(args[0]) {
		case ModeStandard, ModeNFCIR, ModeSimpleHID:
			p.state.Mode = Mode(args[0])
			if p.handshake == statePaired {
				p.handshake = stateOperational
			}
		}
	}
	return &pendingReply{ack: 0x80, subcmd: 0x03}
}

func handleTriggerButtonsElapsedTime(p *Protocol, report []byte) *pendingReply {
	return &pendingReply{ack: 0x83, subcmd: 0x04}
}

func handleToggleIMU(p *Protocol, report []byte) *pendingReply {
	args := subcommandArgs(report)
	if len(args) > 0 {
		p.state.IMUEnabled = args[0] != 0x00
	}
	return &pendingReply{ack: 0x80, subcmd: 0x40}
}

func handleEnableVibration(p *Protocol, report []byte) *pendingReply {
	p.state.VibrationEnabled = true
	return &pendingReply{ack: 0x82, subcmd: 0x48}
}

// decodePlayerLights maps the set-player-lights bitfield to a 1..4 player
// number.
func decodePlayerLights(bits byte) int {
	switch bits {
	case 0x01, 0x10:
		return 1
	case 0x03, 0x30:
		return 2
	case 0x07, 0x70:
		return 3
	case 0x0F, 0xF0:
		return 4
	default:
		return 0
	}
}

func handleSetPlayerLights(p *Protocol, report []byte) *pendingReply {
	args := subcommandArgs(report)
	if len(args) > 0 {
		if n := decodePlayerLights(args[0]); n > 0 {
			p.state.PlayerNumber = n
		}
	}
	return &pendingReply{ack: 0x80, subcmd: 0x30}
}

func handleSetNFCIRState(p *Protocol, report []byte) *pendingReply {
	return &pendingReply{ack: 0x80, subcmd: 0x22}
}

// nfcIRConfigBlob is the fixed 8-byte acknowledgement blob returned for
// subcommand 0x21; the Switch only needs a well-formed, stable reply to
// stop retrying NFC/IR configuration, which this emulation doesn't
// otherwise implement.
var nfcIRConfigBlob = [8]byte{0x01, 0x00, 0xFF, 0x00, 0x08, 0x00, 0x1B, 0x00}

func handleSetNFCIRConfig(p *Protocol, report []byte) *pendingReply {
	return &pendingReply{
		ack:     0xA0,
		subcmd:  0x21,
		payload: nfcIRConfigBlob[:],
		tail:    0xC8,
		tailSet: true,
	}
}
