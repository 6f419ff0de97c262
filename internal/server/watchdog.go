package server

import (
	"time"

	"github.com/Brikwerk/nxbt/internal/controllerprofile"
)

// watchdogInterval is the re-assertion cadence for the connection-reset
// watchdog, active only during connect().
const watchdogInterval = 100 * time.Millisecond

// watchdogDropThreshold is the number of connect-then-disconnect cycles
// (without completing pairing) that causes a cached peer to be forgotten.
const watchdogDropThreshold = 2

// watchdog re-asserts the adapter's advertising properties every 100ms and
// tracks Nintendo-Switch peers that connect then disconnect without
// completing pairing, removing them from the host stack's device cache
// after watchdogDropThreshold repeats. It runs as a sibling goroutine that
// only talks to the transport, never touching the Protocol or Parser: the
// pairing check reads s.paired, an atomic flag the handshake loop publishes,
// rather than calling into the Protocol directly.
func (s *Server) watchdog(stop <-chan struct{}) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	seen := make(map[string]bool)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = s.cfg.Adapter.SetPowered(true)
			_ = s.cfg.Adapter.SetPairable(true)
			_ = s.cfg.Adapter.SetPairableTimeout(0)
			_ = s.cfg.Adapter.SetDiscoverable(true)
			_ = s.cfg.Adapter.SetClass(controllerprofile.GamepadClass)

			peers, err := s.cfg.Adapter.FindPeersWithAlias("Nintendo Switch")
			if err != nil {
				continue
			}
			connected, err := s.cfg.Adapter.ConnectedPeers()
			if err != nil {
				continue
			}
			connectedSet := make(map[string]bool, len(connected))
			for _, addr := range connected {
				connectedSet[addr] = true
			}
			// BlueZ keeps a device object cached long after it disconnects, so
			// FindPeersWithAlias alone never reflects a connect-then-disconnect
			// transition. current tracks only Switch-aliased peers that are
			// presently connected, so losing connection actually drops them
			// out of this set on the next tick.
			current := make(map[string]bool, len(peers))
			for _, addr := range peers {
				if connectedSet[addr] {
					current[addr] = true
				}
			}

			paired := s.paired.Load()
			s.watchdogMu.Lock()
			for addr := range seen {
				if !current[addr] && !paired {
					s.watchdogAttempts[addr]++
					if s.watchdogAttempts[addr] >= watchdogDropThreshold {
						_ = s.cfg.Adapter.RemoveDevice(addr)
						delete(s.watchdogAttempts, addr)
					}
				}
			}
			s.watchdogMu.Unlock()

			seen = current
		}
	}
}
