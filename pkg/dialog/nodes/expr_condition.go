package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// ExprCondition branches on an expr-lang expression evaluated against the
// current turn. The environment exposes:
//
//	text    the raw message text
//	intent  the resolved intent ("" when absent)
//	result  the previous node's result (nil when absent)
//	data    the turn-scoped data map
//	user    the user-level data bucket
//
// The stringified expression output selects a route; booleans therefore route
// via "true"/"false". Unlike ResultCondition this node only peeks at the
// previous result and never clears it.
type ExprCondition struct {
	dialog.NodeCore

	// Expression is the expr-lang source, compiled once and cached.
	Expression string

	// Routes maps the stringified evaluation output to the next node.
	Routes map[string]string

	mu      sync.Mutex
	program *vm.Program
}

// NewExprCondition creates an expression-routing node. The static next nodes
// act as the default branch.
func NewExprCondition(name, expression string, routes map[string]string, next ...string) *ExprCondition {
	return &ExprCondition{
		NodeCore:   dialog.NewNodeCore(name, next...),
		Expression: expression,
		Routes:     routes,
	}
}

// References includes every route target.
func (n *ExprCondition) References() []string {
	return appendRoutes(n.NodeCore.References(), n.Routes)
}

func (n *ExprCondition) OnMessage(ctx context.Context, sess dialog.Session) (domain.NodeResult, error) {
	msg := sess.Turn().Message
	_, prev, _ := sess.LastActionResult()

	env := map[string]any{
		"text":   msg.Text,
		"intent": msg.Intent,
		"result": prev,
		"data":   sess.Turn().Data,
		"user":   sess.UserData(),
	}

	program, err := n.compile(env)
	if err != nil {
		return domain.NodeResult{}, err
	}

	out, err := vm.Run(program, env)
	if err != nil {
		return domain.NodeResult{}, fmt.Errorf("evaluate %q: %w", n.Expression, err)
	}

	if next, ok := n.Routes[fmt.Sprint(out)]; ok {
		return domain.Done(next), nil
	}
	return domain.Done(n.NextNodes...), nil
}

// compile builds the program on first use and caches it for reuse across
// turns and sessions.
func (n *ExprCondition) compile(env map[string]any) (*vm.Program, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.program != nil {
		return n.program, nil
	}

	program, err := expr.Compile(n.Expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", n.Expression, err)
	}
	n.program = program
	return program, nil
}
