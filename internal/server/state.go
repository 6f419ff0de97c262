package server

import (
	"sync"

	"github.com/Brikwerk/nxbt/internal/inputparser"
	"github.com/Brikwerk/nxbt/internal/protocol"
)

// Status is a controller's lifecycle stage.
type Status int

const (
	StatusInitializing Status = iota
	StatusConnecting
	StatusReconnecting
	StatusConnected
	StatusCrashed
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusConnecting:
		return "connecting"
	case StatusReconnecting:
		return "reconnecting"
	case StatusConnected:
		return "connected"
	case StatusCrashed:
		return "crashed"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// State is the observable, read-only snapshot the Orchestrator and API
// callers poll.
type State struct {
	Status         Status
	FinishedMacros []string
	Errors         string
	DirectInput    *inputparser.InputPacket
	LastConnection string
	Kind           protocol.Kind
	AdapterID      string
}

// stateBox is the Server's single-writer, many-reader state holder.
type stateBox struct {
	mu    sync.RWMutex
	state State
}

func (b *stateBox) snapshot() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *stateBox) setStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Status = s
}

func (b *stateBox) setCrashed(errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Status = StatusCrashed
	b.state.Errors = errMsg
}

func (b *stateBox) setLastConnection(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.LastConnection = addr
}

func (b *stateBox) setFinishedMacros(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.FinishedMacros = ids
}
