package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
)

// stubNode is a fully scriptable node for lifecycle tests.
type stubNode struct {
	NodeCore

	enterResult *domain.NodeResult
	enterErr    error
	enterCalls  int

	result  domain.NodeResult
	err     error
	panics  bool
	onCalls int

	exitResult *domain.NodeResult
	exitErr    error
	exitCalls  int
}

func (n *stubNode) OnEnter(ctx context.Context, sess Session) (*domain.NodeResult, error) {
	n.enterCalls++
	return n.enterResult, n.enterErr
}

func (n *stubNode) OnMessage(ctx context.Context, sess Session) (domain.NodeResult, error) {
	n.onCalls++
	if n.panics {
		panic("node blew up")
	}
	return n.result, n.err
}

func (n *stubNode) OnExit(ctx context.Context, sess Session) (*domain.NodeResult, error) {
	n.exitCalls++
	return n.exitResult, n.exitErr
}

func newTurnSession(t *testing.T) *MemorySession {
	t.Helper()
	sess := NewMemorySession("u1", "c1", nil)
	sess.BeginTurn(&domain.Message{ID: "m1", Text: "hi"}, nil)
	return sess
}

func TestRunLifecycleDone(t *testing.T) {
	sess := newTurnSession(t)
	node := &stubNode{NodeCore: NewNodeCore("n"), result: domain.Done("next")}

	result := Run(context.Background(), node, sess)

	assert.Equal(t, domain.StatusDone, result.Status)
	assert.Equal(t, []string{"next"}, result.Next)
	assert.Equal(t, 1, node.enterCalls)
	assert.Equal(t, 1, node.onCalls)
	assert.Equal(t, 1, node.exitCalls)

	// Completed nodes are re-enterable.
	assert.Equal(t, domain.StatusReady, sess.Status("n"))

	steps := sess.History()
	require.Len(t, steps, 1)
	assert.Equal(t, "action__n", steps[0].Hash())
	assert.Equal(t, domain.StatusDone, steps[0].Status)
}

func TestRunEnterSkippedWhileWaiting(t *testing.T) {
	sess := newTurnSession(t)
	node := &stubNode{NodeCore: NewNodeCore("n"), result: domain.Waiting("n")}

	Run(context.Background(), node, sess)
	assert.Equal(t, 1, node.enterCalls)
	assert.Equal(t, domain.StatusBegin, sess.Status("n"))

	// Next activation resumes without re-entering.
	Run(context.Background(), node, sess)
	assert.Equal(t, 1, node.enterCalls)
	assert.Equal(t, 2, node.onCalls)
	assert.Equal(t, 0, node.exitCalls)
}

func TestRunEnterShortCircuits(t *testing.T) {
	sess := newTurnSession(t)
	enter := domain.Done("elsewhere")
	node := &stubNode{NodeCore: NewNodeCore("n"), enterResult: &enter, result: domain.Waiting("n")}

	result := Run(context.Background(), node, sess)

	assert.Equal(t, domain.StatusDone, result.Status)
	assert.Equal(t, []string{"elsewhere"}, result.Next)
	assert.Equal(t, 0, node.onCalls)
}

func TestRunExitOverridesResult(t *testing.T) {
	sess := newTurnSession(t)
	exit := domain.Done("override")
	node := &stubNode{NodeCore: NewNodeCore("n"), result: domain.Done("original"), exitResult: &exit}

	result := Run(context.Background(), node, sess)

	assert.Equal(t, []string{"override"}, result.Next)
	assert.Equal(t, domain.StatusReady, sess.Status("n"))
}

func TestRunErrorsResolveToErrorStatus(t *testing.T) {
	t.Run("message error", func(t *testing.T) {
		sess := newTurnSession(t)
		node := &stubNode{NodeCore: NewNodeCore("n"), err: errors.New("backend down")}

		result := Run(context.Background(), node, sess)
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Empty(t, result.Next)
	})

	t.Run("enter error", func(t *testing.T) {
		sess := newTurnSession(t)
		node := &stubNode{NodeCore: NewNodeCore("n"), enterErr: errors.New("bad params")}

		result := Run(context.Background(), node, sess)
		assert.Equal(t, domain.StatusError, result.Status)
		assert.Equal(t, 0, node.onCalls)
	})

	t.Run("panic", func(t *testing.T) {
		sess := newTurnSession(t)
		node := &stubNode{NodeCore: NewNodeCore("n"), panics: true}

		result := Run(context.Background(), node, sess)
		assert.Equal(t, domain.StatusError, result.Status)

		steps := sess.History()
		require.NotEmpty(t, steps)
		assert.Equal(t, domain.StatusError, steps[len(steps)-1].Status)
	})

	t.Run("exit error", func(t *testing.T) {
		sess := newTurnSession(t)
		node := &stubNode{NodeCore: NewNodeCore("n"), result: domain.Done(), exitErr: errors.New("cleanup failed")}

		result := Run(context.Background(), node, sess)
		assert.Equal(t, domain.StatusError, result.Status)
	})
}

func TestNodeCoreReferences(t *testing.T) {
	core := NewNodeCore("n", "a", "b")
	assert.Equal(t, "n", core.Name())
	assert.Equal(t, []string{"a", "b"}, core.References())
}
