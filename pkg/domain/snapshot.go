package domain

import "time"

// Snapshot is the serializable form of one session: everything the
// distributed store persists and the in-memory variant keeps resident.
// Rehydrating a snapshot must reproduce identical callstack, history and
// per-node maps.
type Snapshot struct {
	// Callstack is the LIFO list of pending node names. The tail runs next.
	Callstack []string `json:"callstack"`

	// History is the append-only sequence of steps.
	History []Step `json:"history"`

	// Per-node maps, keyed by node name.
	NodeParams  map[string]any            `json:"node_params"`
	NodeResults map[string]any            `json:"node_results"`
	NodeData    map[string]map[string]any `json:"node_data"`
	NodeStatus  map[string]NodeStatus     `json:"node_status"`

	// Timestamp is the last-activity time, used for session-timeout
	// detection.
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Callstack:   []string{},
		History:     []Step{},
		NodeParams:  make(map[string]any),
		NodeResults: make(map[string]any),
		NodeData:    make(map[string]map[string]any),
		NodeStatus:  make(map[string]NodeStatus),
		Timestamp:   time.Now(),
	}
}
