package dialog

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Node is a named unit of conversation logic. OnMessage runs on every turn
// the node is active; the optional enter/exit hooks are detected by interface
// assertion, like capability interfaces elsewhere in the codebase.
type Node interface {
	Name() string

	// OnMessage handles the current inbound message. A returned error is
	// resolved to an ERROR result by the driver; it never crosses the loop
	// boundary.
	OnMessage(ctx context.Context, sess Session) (domain.NodeResult, error)
}

// EnterHandler is invoked exactly once per activation, before message
// handling. Returning a non-nil result short-circuits the activation:
// OnMessage is skipped and the result stands for this turn.
type EnterHandler interface {
	OnEnter(ctx context.Context, sess Session) (*domain.NodeResult, error)
}

// ExitHandler is invoked once, right after OnMessage returns DONE. A non-nil
// result overrides the OnMessage result.
type ExitHandler interface {
	OnExit(ctx context.Context, sess Session) (*domain.NodeResult, error)
}

// NodeCore carries the fields every node shares: its unique name and the
// statically configured next nodes. Embed it and implement OnMessage.
type NodeCore struct {
	name string

	// NextNodes is the static continuation used by nodes that always advance
	// the same way.
	NextNodes []string
}

// NewNodeCore creates the shared node base.
func NewNodeCore(name string, next ...string) NodeCore {
	return NodeCore{name: name, NextNodes: next}
}

func (c NodeCore) Name() string { return c.name }

// References lists the node names this node may route to. Builders validate
// them at flow-load time; nodes with extra routes override this.
func (c NodeCore) References() []string { return c.NextNodes }

// Run drives one node activation through the fixed lifecycle:
//
//  1. If the stored status is absent or ready, mark begin and invoke the
//     enter hook; a hook result short-circuits the activation.
//  2. Invoke OnMessage.
//  3. On DONE, invoke the exit hook and reset the status to ready; a hook
//     result overrides the OnMessage result.
//  4. Record a history step with the final status.
//
// Errors and panics from node logic resolve to an ERROR result.
func Run(ctx context.Context, n Node, sess Session) (result domain.NodeResult) {
	name := n.Name()

	defer func() {
		if r := recover(); r != nil {
			result = domain.Errored()
			sess.AddStep(domain.NewActionStep(name, domain.StatusError))
		}
	}()

	if status := sess.Status(name); status == "" || status == domain.StatusReady {
		sess.SetStatus(name, domain.StatusBegin)
		if h, ok := n.(EnterHandler); ok {
			enterResult, err := h.OnEnter(ctx, sess)
			if err != nil {
				sess.AddStep(domain.NewActionStep(name, domain.StatusError))
				return domain.Errored()
			}
			if enterResult != nil {
				sess.AddStep(domain.NewActionStep(name, enterResult.Status))
				return *enterResult
			}
		}
	}

	result, err := n.OnMessage(ctx, sess)
	if err != nil {
		result = domain.Errored()
	}

	if result.Status == domain.StatusDone {
		var exitResult *domain.NodeResult
		if h, ok := n.(ExitHandler); ok {
			exitResult, err = h.OnExit(ctx, sess)
			if err != nil {
				exitResult = nil
				result = domain.Errored()
			}
		}
		sess.SetStatus(name, domain.StatusReady)
		if exitResult != nil {
			sess.AddStep(domain.NewActionStep(name, exitResult.Status))
			return *exitResult
		}
	}

	// Interruptions are rerouted, not completed. Whether they count as an
	// activation is the interrupted node's call, so the step is its to record.
	if result.Status != domain.StatusEscape {
		sess.AddStep(domain.NewActionStep(name, result.Status))
	}
	return result
}
