package server

import "github.com/Brikwerk/nxbt/internal/inputparser"

// TaskKind enumerates the inbound operations the Orchestrator can enqueue
// for a Server.
type TaskKind int

const (
	TaskQueueMacro TaskKind = iota
	TaskStopMacro
	TaskClearMacros
	TaskSetDirectInput
)

// Task is one entry in a Server's inbound queue. Tasks are applied in FIFO
// order each mainloop cycle, after the current inbound Switch report is
// processed and before the outbound report is built.
type Task struct {
	Kind       TaskKind
	MacroID    string
	MacroText  string
	Packet     inputparser.InputPacket
}
