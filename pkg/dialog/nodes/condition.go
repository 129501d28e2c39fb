package nodes

import (
	"context"
	"fmt"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// TextCondition branches on the raw text of the current message.
type TextCondition struct {
	dialog.NodeCore

	// Conditions maps message text to the next node.
	Conditions map[string]string
}

// NewTextCondition creates a text-routing node. The static next nodes act as
// the default branch.
func NewTextCondition(name string, conditions map[string]string, next ...string) *TextCondition {
	return &TextCondition{
		NodeCore:   dialog.NewNodeCore(name, next...),
		Conditions: conditions,
	}
}

// References includes every conditional branch target.
func (n *TextCondition) References() []string {
	return appendRoutes(n.NodeCore.References(), n.Conditions)
}

func (n *TextCondition) OnMessage(ctx context.Context, sess dialog.Session) (domain.NodeResult, error) {
	if next, ok := n.Conditions[sess.Turn().Message.Text]; ok {
		return domain.Done(next), nil
	}
	return domain.Done(n.NextNodes...), nil
}

// ResultCondition branches on the result of the previous node, read through
// the explicit peek-then-clear pair so the consuming side effect is visible.
type ResultCondition struct {
	dialog.NodeCore

	// Conditions maps the stringified previous result to the next node.
	Conditions map[string]string

	// Consume clears the previous node's result after reading it.
	Consume bool
}

// NewResultCondition creates a result-routing node that consumes the result
// it branches on.
func NewResultCondition(name string, conditions map[string]string, next ...string) *ResultCondition {
	return &ResultCondition{
		NodeCore:   dialog.NewNodeCore(name, next...),
		Conditions: conditions,
		Consume:    true,
	}
}

// References includes every conditional branch target.
func (n *ResultCondition) References() []string {
	return appendRoutes(n.NodeCore.References(), n.Conditions)
}

func (n *ResultCondition) OnMessage(ctx context.Context, sess dialog.Session) (domain.NodeResult, error) {
	node, value, ok := sess.LastActionResult()
	if ok && n.Consume {
		sess.ClearNodeResult(node)
	}

	if next, found := n.Conditions[fmt.Sprint(value)]; found {
		return domain.Done(next), nil
	}
	return domain.Done(n.NextNodes...), nil
}

func appendRoutes(refs []string, routes map[string]string) []string {
	for _, target := range routes {
		refs = append(refs, target)
	}
	return refs
}
