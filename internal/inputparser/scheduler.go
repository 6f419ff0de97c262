package inputparser

import (
	"sync"
	"time"

	"github.com/Brikwerk/nxbt/internal/protocol"
)

type bufferedMacro struct {
	id   string
	text string
}

// Parser owns one controller's macro scheduling state plus the
// direct-input slot, and produces the InputFrame the Server merges into
// its Protocol each cycle via Tick. Macro text is fully expanded into
// HoldFrames once, when Tick takes the macro off the buffer to start it, so
// the runtime only ever tracks a cursor and a deadline — it never rescans
// text.
type Parser struct {
	mu sync.Mutex

	buffered []bufferedMacro

	currentID     string
	currentFrames []HoldFrame
	cursor        int
	frameElapsed  time.Duration
	lastTick      time.Time

	finishedOrder []string
	finishedSet   map[string]bool

	direct InputPacket
}

// NewParser builds an idle Parser.
func NewParser() *Parser {
	return &Parser{
		finishedSet: make(map[string]bool),
		direct:      IdlePacket(),
	}
}

// QueueMacro enqueues macro text under an orchestrator-assigned id. Ids are
// produced by the Orchestrator (see internal/orchestrator), not here, so
// that id generation stays a single concern.
func (p *Parser) QueueMacro(id, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffered = append(p.buffered, bufferedMacro{id: id, text: text})
}

// StopMacro aborts id if it is currently executing, or removes it from the
// buffer otherwise. Either way, id is recorded finished so a blocking
// caller wakes.
func (p *Parser) StopMacro(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentID == id {
		p.resetCurrent()
	} else {
		kept := p.buffered[:0]
		for _, m := range p.buffered {
			if m.id != id {
				kept = append(kept, m)
			}
		}
		p.buffered = kept
	}
	p.markFinished(id)
}

// ClearMacros drops the buffer and the in-flight macro without recording
// any ids as finished. A blocking waiter on one of those ids is stranded —
// clearing abandons a macro, it doesn't complete it.
func (p *Parser) ClearMacros() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffered = nil
	p.resetCurrent()
}

// SetDirectInput overwrites the live direct-input slot.
func (p *Parser) SetDirectInput(pkt InputPacket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.direct = pkt
}

// FinishedMacros returns the ids finished so far, in completion order.
func (p *Parser) FinishedMacros() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.finishedOrder))
	copy(out, p.finishedOrder)
	return out
}

// IsFinished reports whether id has completed or been stopped.
func (p *Parser) IsFinished(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finishedSet[id]
}

func (p *Parser) resetCurrent() {
	p.currentID = ""
	p.currentFrames = nil
	p.cursor = 0
	p.frameElapsed = 0
}

func (p *Parser) markFinished(id string) {
	if p.finishedSet[id] {
		return
	}
	p.finishedSet[id] = true
	p.finishedOrder = append(p.finishedOrder, id)
}

// Tick runs one server cycle of the scheduler and returns the InputFrame
// the Server should merge into its Protocol. Elapsed wall-clock time is
// tracked via lastTick regardless of which branch below runs, but it is
// only folded into frameElapsed on cycles that actually advance a macro
// frame — a direct-input override freezes the macro's remaining hold
// duration in place rather than burning it down while overridden.
func (p *Parser) Tick(now time.Time) protocol.InputFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	var dt time.Duration
	if !p.lastTick.IsZero() {
		dt = now.Sub(p.lastTick)
	}
	p.lastTick = now

	if !p.direct.IsIdle() {
		return frameFromDirectInput(p.direct)
	}

	if p.currentID == "" {
		if len(p.buffered) == 0 {
			return idleFrame()
		}
		next := p.buffered[0]
		p.buffered = p.buffered[1:]
		frames, err := ParseMacro(next.text)
		if err != nil {
			// A malformed macro finishes instantly rather than
			// wedging the scheduler; no bytes are ever applied.
			p.markFinished(next.id)
			return idleFrame()
		}
		p.currentID = next.id
		p.currentFrames = frames
		p.cursor = 0
		p.frameElapsed = 0
		dt = 0 // don't charge time accrued before this macro was queued
	}

	if p.cursor >= len(p.currentFrames) {
		id := p.currentID
		p.resetCurrent()
		p.markFinished(id)
		return idleFrame()
	}

	frame := p.currentFrames[p.cursor]
	result := frameToInputFrame(frame)

	p.frameElapsed += dt
	if p.frameElapsed > frame.Duration {
		p.cursor++
		p.frameElapsed = 0
		if p.cursor >= len(p.currentFrames) {
			id := p.currentID
			p.resetCurrent()
			p.markFinished(id)
		}
	}

	return result
}

// idleFrame is the frame emitted while no macro and no direct input are
// active: no buttons, both sticks resting at their calibrated centre. An
// all-zero InputFrame would instead read to the Switch as both sticks
// pinned into a hard corner, since {0,0,0} is not the centre encoding.
func idleFrame() protocol.InputFrame {
	return protocol.InputFrame{
		LeftStick:  neutralStick(LeftStickCal),
		RightStick: neutralStick(RightStickCal),
	}
}

func frameToInputFrame(f HoldFrame) protocol.InputFrame {
	left := neutralStick(LeftStickCal)
	if f.LeftStick != nil {
		left = PackStick(f.LeftStick.X, f.LeftStick.Y, LeftStickCal)
	}
	right := neutralStick(RightStickCal)
	if f.RightStick != nil {
		right = PackStick(f.RightStick.X, f.RightStick.Y, RightStickCal)
	}
	return protocol.InputFrame{
		Buttons:    EncodeButtons(f.Buttons),
		LeftStick:  left,
		RightStick: right,
	}
}

func frameFromDirectInput(pkt InputPacket) protocol.InputFrame {
	lx, ly := resolveStickRatio(pkt.LeftStick)
	rx, ry := resolveStickRatio(pkt.RightStick)

	held := make(map[Button]bool, len(pkt.Buttons)+2)
	for b, down := range pkt.Buttons {
		held[b] = down
	}
	if pkt.LeftStick.Pressed {
		held[ButtonLStickPress] = true
	}
	if pkt.RightStick.Pressed {
		held[ButtonRStickPress] = true
	}

	return protocol.InputFrame{
		Buttons:    EncodeButtons(held),
		LeftStick:  PackStick(lx, ly, LeftStickCal),
		RightStick: PackStick(rx, ry, RightStickCal),
	}
}
