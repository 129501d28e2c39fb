package domain

// NodeStatus is the closed set of node outcomes. Per node and session it
// forms a small state machine driven exclusively by the run loop: absent or
// ready before activation, begin on entry, and back to ready only after a
// done exit.
type NodeStatus string

const (
	// StatusReady means the node is not active (or previously completed).
	StatusReady NodeStatus = "ready"
	// StatusBegin means the node was entered this turn, before message handling.
	StatusBegin NodeStatus = "begin"
	// StatusWaiting means the node needs another inbound message to finish.
	// The turn ends here.
	StatusWaiting NodeStatus = "waiting"
	// StatusDone means the node finished and the loop may advance.
	StatusDone NodeStatus = "done"
	// StatusError marks an unrecoverable fault inside node logic.
	StatusError NodeStatus = "error"
	// StatusRestart aborts the session and clears all state.
	StatusRestart NodeStatus = "restart"
	// StatusEscape means an interrupting intent preempted the node; execution
	// is rerouted without counting as a normal completion.
	StatusEscape NodeStatus = "escape"
)

// NodeResult is what a node returns to the controller. Next is only
// meaningful in combination with Status; when empty the node is terminal for
// this branch.
type NodeResult struct {
	Status NodeStatus

	// Next lists the nodes to push onto the callstack, first listed runs next.
	Next []string
}

// Done builds a completed result, optionally chaining next nodes.
func Done(next ...string) NodeResult {
	return NodeResult{Status: StatusDone, Next: next}
}

// Waiting builds a result that suspends the turn until the next message.
// Nodes normally pass their own name so they resume on the next turn.
func Waiting(next ...string) NodeResult {
	return NodeResult{Status: StatusWaiting, Next: next}
}

// Restart builds a result that resets the whole session.
func Restart() NodeResult {
	return NodeResult{Status: StatusRestart}
}

// Escape builds an interruption result routing to the given nodes.
func Escape(next ...string) NodeResult {
	return NodeResult{Status: StatusEscape, Next: next}
}

// Errored builds a non-fatal failure result.
func Errored(next ...string) NodeResult {
	return NodeResult{Status: StatusError, Next: next}
}
