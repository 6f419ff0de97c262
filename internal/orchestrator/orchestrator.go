// Package orchestrator creates, indexes, and terminates multiple
// controller servers, mediates the process-wide Bluetooth mutex between
// them, and exposes a blocking API surface for macros, direct input, and
// connection state.
package orchestrator

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Brikwerk/nxbt/internal/bluetransport"
	"github.com/Brikwerk/nxbt/internal/inputparser"
	"github.com/Brikwerk/nxbt/internal/nxbtlog"
	"github.com/Brikwerk/nxbt/internal/protocol"
	"github.com/Brikwerk/nxbt/internal/server"
)

// PollInterval is the spin-poll interval used by every blocking API call
// (CreateController, Macro(block=true), StopMacro(block=true),
// WaitForConnection). 1/120s matches the Pro Controller's fastest cadence.
const PollInterval = time.Second / 120

// CreateOptions configures a new controller.
type CreateOptions struct {
	Kind             protocol.Kind
	AdapterID        string // empty => first free adapter
	ColourBody       *[3]byte
	ColourButtons    *[3]byte
	ReconnectAddress string
	FrequencyHz      float64
}

// Orchestrator is the process-wide controller manager.
type Orchestrator struct {
	log *logrus.Entry

	mu           sync.Mutex // guards servers/adapterInUse/counter
	btMutex      sync.Mutex // process-wide BlueZ lock, shared across every Server
	servers      map[int]*server.Server
	adapterInUse map[string]int
	counter      int
}

// New builds an empty Orchestrator.
func New() *Orchestrator {
	return &Orchestrator{
		log:          nxbtlog.For("orchestrator"),
		servers:      make(map[int]*server.Server),
		adapterInUse: make(map[string]int),
	}
}

// GetAvailableAdapters lists adapter ids not currently bound to a
// controller.
func (o *Orchestrator) GetAvailableAdapters() ([]string, error) {
	adapters, err := bluetransport.ListAdapters()
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var free []string
	for _, a := range adapters {
		if _, used := o.adapterInUse[a.ID()]; !used {
			free = append(free, a.ID())
		}
	}
	return free, nil
}

// GetSwitchAddresses returns the MACs of known "Nintendo Switch"-aliased
// peers visible to index's adapter, for reconnect_address candidates.
func (o *Orchestrator) GetSwitchAddresses(index int) ([]string, error) {
	srv, ok := o.lookup(index)
	if !ok {
		return nil, fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	return srv.Adapter().FindPeersWithAlias("Nintendo Switch")
}

// CreateController creates and starts a new Controller Server, blocking
// until it reaches connecting, reconnecting, connected, or crashed — so the caller
// knows whether the adapter claim succeeded before returning.
func (o *Orchestrator) CreateController(opts CreateOptions) (int, error) {
	o.mu.Lock()

	adapterID := opts.AdapterID
	if adapterID == "" {
		adapters, err := bluetransport.ListAdapters()
		if err != nil {
			o.mu.Unlock()
			return 0, fmt.Errorf("orchestrator: list adapters: %w", err)
		}
		for _, a := range adapters {
			if _, used := o.adapterInUse[a.ID()]; !used {
				adapterID = a.ID()
				break
			}
		}
		if adapterID == "" {
			o.mu.Unlock()
			return 0, fmt.Errorf("orchestrator: no adapter available")
		}
	}
	if _, used := o.adapterInUse[adapterID]; used {
		o.mu.Unlock()
		return 0, fmt.Errorf("orchestrator: adapter %s is already in use", adapterID)
	}

	adapter, err := bluetransport.OpenAdapter(adapterID)
	if err != nil {
		o.mu.Unlock()
		return 0, fmt.Errorf("orchestrator: open adapter %s: %w", adapterID, err)
	}

	o.counter++
	index := o.counter
	o.adapterInUse[adapterID] = index

	mac, _ := adapter.Address()
	identity := protocol.NewIdentity(opts.Kind, macBytesBestEffort(mac))
	if opts.ColourBody != nil {
		identity.BodyColour = *opts.ColourBody
	}
	if opts.ColourButtons != nil {
		identity.ButtonColour = *opts.ColourButtons
	}

	cfg := server.Config{
		Identity:         identity,
		Adapter:          adapter,
		ReconnectAddress: opts.ReconnectAddress,
		FrequencyHz:      opts.FrequencyHz,
	}
	srv := server.New(cfg, &o.btMutex, o.log.WithField("controller_index", index))
	o.servers[index] = srv
	o.mu.Unlock()

	go srv.Run()

	for {
		switch srv.State().Status {
		case server.StatusConnecting, server.StatusReconnecting, server.StatusConnected, server.StatusCrashed:
			goto claimed
		}
		time.Sleep(PollInterval)
	}
claimed:
	if srv.State().Status == server.StatusCrashed {
		o.mu.Lock()
		delete(o.adapterInUse, adapterID)
		delete(o.servers, index)
		o.mu.Unlock()
		return 0, fmt.Errorf("orchestrator: controller %d crashed during setup: %s", index, srv.State().Errors)
	}
	return index, nil
}

// RemoveController stops index's Server and releases its adapter.
func (o *Orchestrator) RemoveController(index int) error {
	o.mu.Lock()
	srv, ok := o.servers[index]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	adapterID := srv.Adapter().ID()
	delete(o.servers, index)
	o.mu.Unlock()

	// Stop blocks until the Server's goroutine has fully returned and
	// released its sockets, so the adapter slot isn't freed for reuse
	// until the old Server is genuinely done with it.
	srv.Stop()
	srv.MarkRemoved()

	o.mu.Lock()
	delete(o.adapterInUse, adapterID)
	o.mu.Unlock()
	return nil
}

// Macro enqueues macro text for index and, if block, waits until it
// appears in finished_macros.
func (o *Orchestrator) Macro(index int, text string, block bool) (string, error) {
	srv, ok := o.lookup(index)
	if !ok {
		return "", fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	id := newMacroID()
	srv.Enqueue(server.Task{Kind: server.TaskQueueMacro, MacroID: id, MacroText: text})
	if block {
		if err := o.waitForMacro(srv, id); err != nil {
			return id, err
		}
	}
	return id, nil
}

// PressButtons is sugar for a 2-line macro: hold buttons for down seconds,
// then nothing for up seconds.
func (o *Orchestrator) PressButtons(index int, buttons []inputparser.Button, down, up float64, block bool) (string, error) {
	names := make([]string, len(buttons))
	for i, b := range buttons {
		names[i] = string(b)
	}
	text := fmt.Sprintf("%s %gs\n%gs", joinSpace(names), down, up)
	return o.Macro(index, text, block)
}

// TiltStick is sugar for a 2-line macro tilting stick to (x, y) for
// `tilted` seconds, then releasing (recentring) for `released` seconds.
// x and y are ratios in [-1, 1].
func (o *Orchestrator) TiltStick(index int, stick string, x, y, tilted, released float64, block bool) (string, error) {
	token := fmt.Sprintf("%s_STICK@%s%s", stick, signedMagnitude(x), signedMagnitude(y))
	text := fmt.Sprintf("%s %gs\n%gs", token, tilted, released)
	return o.Macro(index, text, block)
}

// StopMacro enqueues a stop for macroID and, if block, waits until it
// appears in finished_macros.
func (o *Orchestrator) StopMacro(index int, macroID string, block bool) error {
	srv, ok := o.lookup(index)
	if !ok {
		return fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	srv.Enqueue(server.Task{Kind: server.TaskStopMacro, MacroID: macroID})
	if block {
		return o.waitForMacro(srv, macroID)
	}
	return nil
}

// ClearMacros drops index's buffered and in-flight macros.
func (o *Orchestrator) ClearMacros(index int) error {
	srv, ok := o.lookup(index)
	if !ok {
		return fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	srv.Enqueue(server.Task{Kind: server.TaskClearMacros})
	return nil
}

// ClearAllMacros drops buffered/in-flight macros on every controller.
func (o *Orchestrator) ClearAllMacros() {
	o.mu.Lock()
	servers := make([]*server.Server, 0, len(o.servers))
	for _, s := range o.servers {
		servers = append(servers, s)
	}
	o.mu.Unlock()
	for _, s := range servers {
		s.Enqueue(server.Task{Kind: server.TaskClearMacros})
	}
}

// SetControllerInput overwrites index's shared direct_input slot.
func (o *Orchestrator) SetControllerInput(index int, packet inputparser.InputPacket) error {
	srv, ok := o.lookup(index)
	if !ok {
		return fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	srv.Enqueue(server.Task{Kind: server.TaskSetDirectInput, Packet: packet})
	return nil
}

// WaitForConnection blocks until index reaches connected, raising if it
// crashes first.
func (o *Orchestrator) WaitForConnection(index int) error {
	srv, ok := o.lookup(index)
	if !ok {
		return fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	for {
		st := srv.State()
		switch st.Status {
		case server.StatusConnected:
			return nil
		case server.StatusCrashed:
			return fmt.Errorf("orchestrator: controller %d crashed: %s", index, st.Errors)
		}
		time.Sleep(PollInterval)
	}
}

// State returns a read-only snapshot of index's observable state.
func (o *Orchestrator) State(index int) (server.State, error) {
	srv, ok := o.lookup(index)
	if !ok {
		return server.State{}, fmt.Errorf("orchestrator: unknown controller index %d", index)
	}
	return srv.State(), nil
}

func (o *Orchestrator) lookup(index int) (*server.Server, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	srv, ok := o.servers[index]
	return srv, ok
}

func (o *Orchestrator) waitForMacro(srv *server.Server, id string) error {
	for {
		st := srv.State()
		for _, finished := range st.FinishedMacros {
			if finished == id {
				return nil
			}
		}
		if st.Status == server.StatusCrashed {
			return fmt.Errorf("orchestrator: controller crashed while waiting for macro %s", id)
		}
		time.Sleep(PollInterval)
	}
}

// newMacroID produces a collision-infeasible macro id from a v4 UUID's hex
// digits.
func newMacroID() string {
	return uuidHex(uuid.New())
}

func uuidHex(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

func joinSpace(parts []string) string {
	return strings.Join(parts, " ")
}

// macBytesBestEffort parses a colon-hex Bluetooth address, falling back to
// the zero MAC if the adapter didn't report one yet (mirrors
// bluetransport.OpenServerSockets' own zero-MAC fallback).
func macBytesBestEffort(addr string) [6]byte {
	hw, err := net.ParseMAC(addr)
	if err != nil || len(hw) != 6 {
		return [6]byte{}
	}
	var out [6]byte
	copy(out[:], hw)
	return out
}

func signedMagnitude(ratio float64) string {
	sign := "+"
	if ratio < 0 {
		sign = "-"
	}
	mag := int(ratio * 100)
	if mag < 0 {
		mag = -mag
	}
	return fmt.Sprintf("%s%03d", sign, mag)
}
