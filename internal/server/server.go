// Package server implements one emulated controller's life cycle: pair,
// run the real-time mainloop, and recover from a dropped connection,
// ingesting tasks from an inbound queue as it goes.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brikwerk/nxbt/internal/bluetransport"
	"github.com/Brikwerk/nxbt/internal/controllerprofile"
	"github.com/Brikwerk/nxbt/internal/inputparser"
	"github.com/Brikwerk/nxbt/internal/protocol"
)

// keepAliveTicks is the coalesced-send interval: an unchanged report body
// is resent at most once every this many mainloop cycles, to avoid
// flooding the Switch's Grip/Order menu with redundant reports.
const keepAliveTicks = 132

// autoRepairMacro is preloaded after exhausting the two-retry recovery
// path and falling back to a fresh connect(), tapping the shoulder
// buttons so the Switch's own re-pairing flow kicks back in.
var autoRepairMacro = map[protocol.Kind]string{
	protocol.ProController: "L R 0.1s\n0.1s",
	protocol.JoyConL:        "JCL_SL JCL_SR 0.1s\n0.1s",
	protocol.JoyConR:        "JCR_SL JCR_SR 0.1s\n0.1s",
}

// Config configures one Server instance.
type Config struct {
	Identity         protocol.Identity
	Adapter          bluetransport.AdapterHandle
	ReconnectAddress string // empty => fresh connect()
	FrequencyHz      float64
}

func (c Config) frequency() float64 {
	if c.FrequencyHz > 0 {
		return c.FrequencyHz
	}
	return 66
}

// Server owns one emulated controller end to end.
type Server struct {
	log   *logrus.Entry
	cfg   Config
	proto *protocol.Protocol
	parser *inputparser.Parser

	tasks chan Task
	stop  chan struct{}
	wg    sync.WaitGroup

	btMutex *sync.Mutex // process-wide lock, shared across all Servers

	state stateBox

	// paired mirrors proto.IsPaired(), published by handshakeLoop so the
	// watchdog goroutine can read pairing status without touching the
	// Protocol, which only handshakeLoop's goroutine may mutate.
	paired atomic.Bool

	watchdogAttempts map[string]int
	watchdogMu       sync.Mutex
}

// New constructs a Server. btMutex is the Orchestrator's process-wide
// Bluetooth mutex, shared across every Server so only one goroutine at a
// time mutates BlueZ adapter state; log should already carry a
// "controller index" field.
func New(cfg Config, btMutex *sync.Mutex, log *logrus.Entry) *Server {
	s := &Server{
		log:              log,
		cfg:              cfg,
		proto:            protocol.New(cfg.Identity, log),
		parser:           inputparser.NewParser(),
		tasks:            make(chan Task, 64),
		stop:             make(chan struct{}),
		btMutex:          btMutex,
		watchdogAttempts: make(map[string]int),
	}
	s.state.state = State{Status: StatusInitializing, Kind: cfg.Identity.Kind, AdapterID: cfg.Adapter.ID()}
	return s
}

// Enqueue submits a task to the Server's inbound queue. Never blocks
// indefinitely on a healthy server: the queue is generously buffered, and a
// full queue indicates a crashed/stuck server the Orchestrator should be
// removing anyway.
func (s *Server) Enqueue(t Task) {
	select {
	case s.tasks <- t:
	default:
		s.log.Warn("task queue full, dropping task")
	}
}

// State returns a read-only snapshot of the observable controller state.
func (s *Server) State() State { return s.state.snapshot() }

// Adapter returns the Bluetooth adapter this Server is bound to, so the
// Orchestrator can release it on removal or query peers for reconnection.
func (s *Server) Adapter() bluetransport.AdapterHandle { return s.cfg.Adapter }

// Stop terminates the Server's run loop.
func (s *Server) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// MarkRemoved transitions the controller to removed; called by the
// Orchestrator once Stop has returned.
func (s *Server) MarkRemoved() {
	s.state.setStatus(StatusRemoved)
}

// Run is the Server's entire life cycle; it is meant to be called as
// `go srv.Run()` by the Orchestrator. A panic anywhere below transitions
// the controller to crashed instead of taking down the process.
func (s *Server) Run() {
	s.wg.Add(1)
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.state.setCrashed(fmt.Sprintf("panic: %v", r))
			s.log.WithField("panic", r).Error("controller server crashed")
		}
	}()

	s.btMutex.Lock()
	err := controllerprofile.Setup(s.cfg.Adapter, s.cfg.Identity.Kind)
	s.btMutex.Unlock()
	if err != nil {
		s.state.setCrashed(err.Error())
		return
	}

	// connect()/reconnect() lock btMutex themselves, only around the steps
	// that actually mutate BlueZ adapter state: holding it across their
	// unbounded accept/handshake wait would stall every other Server
	// sharing btMutex for as long as this one takes to pair.
	var ctrl, itr *bluetransport.Socket
	if s.cfg.ReconnectAddress != "" {
		s.state.setStatus(StatusReconnecting)
		ctrl, itr, err = s.reconnect([]string{s.cfg.ReconnectAddress})
	} else {
		s.state.setStatus(StatusConnecting)
		ctrl, itr, err = s.connect()
	}

	if err != nil {
		s.state.setCrashed(err.Error())
		return
	}

	s.state.setStatus(StatusConnected)
	s.mainloop(ctrl, itr)
}

// openAndAdvertise opens the listening server sockets and sets the adapter
// discoverable and gamepad-class, the only BlueZ-adapter-mutating steps
// connect() performs. These run under btMutex; the accept/handshake wait
// that follows in connect() is socket I/O only and must not hold the
// process-wide lock across its unbounded duration.
func (s *Server) openAndAdvertise() (listenCtrl, listenItr *bluetransport.Socket, err error) {
	s.btMutex.Lock()
	defer s.btMutex.Unlock()

	mac, err := adapterMACBytes(s.cfg.Adapter)
	if err != nil {
		return nil, nil, err
	}

	listenCtrl, listenItr, err = bluetransport.OpenServerSockets(mac)
	if err != nil {
		return nil, nil, err
	}

	if err := s.cfg.Adapter.SetDiscoverable(true); err != nil {
		listenCtrl.Close()
		listenItr.Close()
		return nil, nil, err
	}
	// The gamepad class must be written after discoverable is set: BlueZ
	// silently reverts a class written earlier.
	if err := s.cfg.Adapter.SetClass(controllerprofile.GamepadClass); err != nil {
		listenCtrl.Close()
		listenItr.Close()
		return nil, nil, err
	}

	return listenCtrl, listenItr, nil
}

// connect opens server sockets, sets the adapter discoverable, accepts the
// interrupt channel then the control channel, solicits the first Switch
// message, and runs the handshake subloop. Accepting is stop-aware so Stop()
// can unblock a Server waiting for a Switch that never connects.
func (s *Server) connect() (ctrl, itr *bluetransport.Socket, err error) {
	listenCtrl, listenItr, err := s.openAndAdvertise()
	if err != nil {
		return nil, nil, err
	}
	defer listenCtrl.Close()
	defer listenItr.Close()

	watchdogStop := make(chan struct{})
	go s.watchdog(watchdogStop)
	defer close(watchdogStop)

	if err := listenItr.SetNonblocking(true); err != nil {
		return nil, nil, err
	}
	if err := listenCtrl.SetNonblocking(true); err != nil {
		return nil, nil, err
	}

	itrConn, peer, err := s.acceptStoppable(listenItr)
	if err != nil {
		return nil, nil, fmt.Errorf("server: accept interrupt: %w", err)
	}
	ctrlConn, _, err := s.acceptStoppable(listenCtrl)
	if err != nil {
		itrConn.Close()
		return nil, nil, fmt.Errorf("server: accept control: %w", err)
	}

	if err := itrConn.Send(s.proto.BuildReport()); err != nil {
		itrConn.Close()
		ctrlConn.Close()
		return nil, nil, fmt.Errorf("server: initial report: %w", err)
	}
	s.proto.ConfirmSent()
	if err := itrConn.SetNonblocking(true); err != nil {
		itrConn.Close()
		ctrlConn.Close()
		return nil, nil, err
	}

	if err := s.handshakeLoop(itrConn); err != nil {
		itrConn.Close()
		ctrlConn.Close()
		return nil, nil, err
	}

	s.state.setLastConnection(macString(peer))
	return ctrlConn, itrConn, nil
}

// acceptStoppable polls a nonblocking listening socket for one inbound
// connection, checking s.stop between attempts so Stop() can unblock a
// Server parked waiting for a Switch to pair instead of hanging until one
// connects.
func (s *Server) acceptStoppable(listener *bluetransport.Socket) (*bluetransport.Socket, [6]byte, error) {
	for {
		select {
		case <-s.stop:
			return nil, [6]byte{}, errors.New("server: stopped while waiting for connection")
		default:
		}

		conn, peer, err := listener.Accept()
		if err == nil {
			return conn, peer, nil
		}
		if !errors.Is(err, bluetransport.ErrWouldBlock) {
			return nil, [6]byte{}, err
		}
		time.Sleep(time.Millisecond)
	}
}

// reconnect tries each candidate address in order; first success wins. The
// gamepad class is reasserted here too: connect() is not the only path
// that can start a session, and the class write needs repeating on every
// path that talks to the adapter, not just the discoverable one.
func (s *Server) reconnect(peers []string) (ctrl, itr *bluetransport.Socket, err error) {
	s.btMutex.Lock()
	classErr := s.cfg.Adapter.SetClass(controllerprofile.GamepadClass)
	s.btMutex.Unlock()
	if classErr != nil {
		return nil, nil, classErr
	}

	var lastErr error
	for _, addr := range peers {
		mac, perr := parseMAC(addr)
		if perr != nil {
			lastErr = perr
			continue
		}
		c, i, cerr := bluetransport.OpenClientSockets(mac)
		if cerr != nil {
			lastErr = cerr
			continue
		}
		if err := i.Send(s.proto.BuildReport()); err != nil {
			c.Close()
			i.Close()
			lastErr = err
			continue
		}
		s.proto.ConfirmSent()
		if err := i.SetNonblocking(true); err != nil {
			c.Close()
			i.Close()
			lastErr = err
			continue
		}
		s.state.setLastConnection(addr)
		return c, i, nil
	}
	if lastErr == nil {
		lastErr = errors.New("server: no reconnect candidates supplied")
	}
	return nil, nil, fmt.Errorf("server: reconnect exhausted: %w", lastErr)
}

// handshakeLoop sends assembled reports until the protocol reaches the
// "paired" transition (player lights set AND vibration enabled): every ~1s
// until the first Switch message arrives, then every 1/15s.
func (s *Server) handshakeLoop(itr *bluetransport.Socket) error {
	s.paired.Store(false)
	firstMessageSeen := false
	period := time.Second
	deadline := time.Now().Add(period)

	for !s.proto.IsPaired() {
		select {
		case <-s.stop:
			return errors.New("server: stopped during handshake")
		default:
		}

		report, err := itr.Recv(64)
		if err == nil {
			if !firstMessageSeen {
				firstMessageSeen = true
				period = time.Second / 15
			}
			_ = s.proto.ProcessOutputReport(report)
			s.paired.Store(s.proto.IsPaired())
			if err := itr.Send(s.proto.BuildReport()); err != nil {
				if !errors.Is(err, bluetransport.ErrWouldBlock) {
					return err
				}
			} else {
				s.proto.ConfirmSent()
			}
		} else if !errors.Is(err, bluetransport.ErrWouldBlock) {
			return err
		}

		if time.Now().After(deadline) {
			if err := itr.Send(s.proto.BuildReport()); err != nil {
				if !errors.Is(err, bluetransport.ErrWouldBlock) {
					return err
				}
			} else {
				s.proto.ConfirmSent()
			}
			deadline = time.Now().Add(period)
		}

		time.Sleep(time.Millisecond)
	}
	s.paired.Store(true)
	return nil
}

// shouldSend decides whether to resend an input report this cycle, as a
// pure function so it can be unit tested without a live socket.
func shouldSend(current, last []byte, ticksSinceSend int) bool {
	return !bytes.Equal(current, last) || ticksSinceSend >= keepAliveTicks
}

// mainloop drives the connected controller's steady-state read/apply/send
// cycle at the configured frequency.
func (s *Server) mainloop(ctrl, itr *bluetransport.Socket) {
	period := time.Duration(float64(time.Second) / s.cfg.frequency())
	deadline := time.Now().Add(period)

	var lastSent []byte
	ticksSinceSend := 0

	for {
		select {
		case <-s.stop:
			ctrl.Close()
			itr.Close()
			return
		default:
		}

		report, err := itr.Recv(64)
		switch {
		case err == nil:
			_ = s.proto.ProcessOutputReport(report)
		case errors.Is(err, bluetransport.ErrPeerClosed):
			ctrl.Close()
			itr.Close()
			s.recover(fmt.Errorf("mainloop recv: %w", err))
			return
		case errors.Is(err, bluetransport.ErrWouldBlock):
			// no data this cycle, nothing to do
		}

		s.drainTasks()

		frame := s.parser.Tick(time.Now())
		s.proto.ApplyInput(frame)
		s.state.setFinishedMacros(s.parser.FinishedMacros())

		msg := s.proto.BuildReport()
		if shouldSend(msg[3:], lastSent, ticksSinceSend) {
			if err := itr.Send(msg); err != nil {
				if errors.Is(err, bluetransport.ErrPeerClosed) {
					ctrl.Close()
					itr.Close()
					s.recover(fmt.Errorf("mainloop send: %w", err))
					return
				}
			} else {
				s.proto.ConfirmSent()
				lastSent = append(lastSent[:0], msg[3:]...)
				ticksSinceSend = 0
			}
		} else {
			ticksSinceSend++
		}

		sleepUntil(deadline)
		deadline = deadline.Add(period)
	}
}

// sleepUntil sleeps to an absolute deadline rather than for a fixed
// "remainder" duration, so skew from an overloaded cycle does not compound.
func sleepUntil(deadline time.Time) {
	d := time.Until(deadline)
	if d > 0 {
		time.Sleep(d)
	}
}

// drainTasks applies every currently-queued task in FIFO order.
func (s *Server) drainTasks() {
	for {
		select {
		case t := <-s.tasks:
			switch t.Kind {
			case TaskQueueMacro:
				s.parser.QueueMacro(t.MacroID, t.MacroText)
			case TaskStopMacro:
				s.parser.StopMacro(t.MacroID)
			case TaskClearMacros:
				s.parser.ClearMacros()
			case TaskSetDirectInput:
				s.parser.SetDirectInput(t.Packet)
			}
		default:
			return
		}
	}
}

// recover attempts two reconnects to the last known peer, each preceded by
// a fresh protocol reinitialization; on exhaustion, it falls back to a
// fresh connect() and preloads the auto-repair macro.
func (s *Server) recover(cause error) {
	s.log.WithError(cause).Warn("mainloop error, attempting recovery")
	s.state.setStatus(StatusReconnecting)

	last := s.state.snapshot().LastConnection
	for attempt := 0; attempt < 2; attempt++ {
		s.proto = protocol.New(s.cfg.Identity, s.log)
		// reconnect() locks btMutex itself, only around its SetClass
		// reassertion: locking it again here would deadlock on the same
		// goroutine, since btMutex is a plain non-reentrant sync.Mutex.
		ctrl, itr, err := s.reconnect([]string{last})
		if err != nil {
			s.log.WithError(err).WithField("attempt", attempt+1).Warn("reconnect attempt failed")
			continue
		}
		// handshakeLoop only does socket I/O and Protocol bookkeeping, not
		// BlueZ adapter mutation, so it runs outside btMutex: holding the
		// process-wide lock across its unbounded wait would stall every
		// other Server's pairing/recovery for as long as this one takes.
		if err := s.handshakeLoop(itr); err != nil {
			ctrl.Close()
			itr.Close()
			continue
		}
		s.state.setStatus(StatusConnected)
		s.mainloop(ctrl, itr)
		return
	}

	s.log.Warn("reconnect exhausted, falling back to fresh connect")
	// connect() locks btMutex itself only around its BlueZ-mutating prefix;
	// wrapping the whole call here would again stall every other Server
	// behind this one's unbounded accept/handshake wait.
	ctrl, itr, err := s.connect()
	if err != nil {
		s.state.setCrashed(fmt.Sprintf("recover: %v", err))
		return
	}
	s.parser.QueueMacro("auto-repair", autoRepairMacro[s.cfg.Identity.Kind])
	s.state.setStatus(StatusConnected)
	s.mainloop(ctrl, itr)
}

func adapterMACBytes(a bluetransport.AdapterHandle) ([6]byte, error) {
	addr, err := a.Address()
	if err != nil {
		return [6]byte{}, err
	}
	return parseMAC(addr)
}

func parseMAC(addr string) ([6]byte, error) {
	hw, err := net.ParseMAC(addr)
	if err != nil || len(hw) != 6 {
		return [6]byte{}, fmt.Errorf("server: invalid bluetooth address %q", addr)
	}
	var out [6]byte
	copy(out[:], hw)
	return out, nil
}

func macString(mac [6]byte) string {
	hw := net.HardwareAddr(mac[:])
	return hw.String()
}
