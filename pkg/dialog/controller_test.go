package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
)

// echoNode replies with its name and completes.
type echoNode struct {
	NodeCore
}

func (n *echoNode) OnMessage(ctx context.Context, sess Session) (domain.NodeResult, error) {
	sess.AddResponse(domain.NewTextResponse(n.Name()))
	return domain.Done(n.NextNodes...), nil
}

// waitNode replies once and suspends until the next message.
type waitNode struct {
	NodeCore
}

func (n *waitNode) OnMessage(ctx context.Context, sess Session) (domain.NodeResult, error) {
	if sess.Turn().Message.Intent == "answer" {
		return domain.Done(n.NextNodes...), nil
	}
	sess.AddResponse(domain.NewTextResponse("waiting for you"))
	return domain.Waiting(n.Name()), nil
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *MemoryProvider) {
	t.Helper()
	provider := NewMemoryProvider()
	return NewController(provider, opts...), provider
}

func handle(t *testing.T, c *Controller, intent, text string) *TurnContext {
	t.Helper()
	msg := domain.NewMessage(text)
	msg.Intent = intent
	turn, err := c.HandleMessage(context.Background(), msg, "u1", "c1", nil)
	require.NoError(t, err)
	return turn
}

func TestHandleMessageTriggeredFlow(t *testing.T) {
	c, provider := newTestController(t)
	c.AddNode(&echoNode{NodeCore: NewNodeCore("welcome", "menu")})
	c.AddNode(&echoNode{NodeCore: NewNodeCore("menu")})
	require.NoError(t, c.AddIntentTrigger("greet", "welcome"))

	turn := handle(t, c, "greet", "hello")

	resps := turn.Responses()
	require.Len(t, resps, 2)
	assert.Equal(t, "welcome", resps[0].Content)
	assert.Equal(t, "menu", resps[1].Content)
	assert.Equal(t, turn.Message.ID+".0", resps[0].Watermark)
	assert.Equal(t, turn.Message.ID+".1", resps[1].Watermark)

	sess, err := provider.Session(context.Background(), "u1", "c1", nil)
	require.NoError(t, err)
	assert.True(t, sess.IsDone())

	// First history entry is the inbound intent.
	steps := sess.History()
	require.NotEmpty(t, steps)
	assert.Equal(t, "intent__greet", steps[0].Hash())
}

func TestHandleMessageFallback(t *testing.T) {
	c, _ := newTestController(t)
	c.AddNode(&echoNode{NodeCore: NewNodeCore("pardon")})
	require.NoError(t, c.SetFallbackNode("pardon"))

	turn := handle(t, c, "gibberish", "ehh")
	require.Len(t, turn.Responses(), 1)
	assert.Equal(t, "pardon", turn.Responses()[0].Content)
}

func TestHandleMessageNoEntryNode(t *testing.T) {
	c, _ := newTestController(t)
	c.AddNode(&echoNode{NodeCore: NewNodeCore("welcome")})
	require.NoError(t, c.AddIntentTrigger("greet", "welcome"))

	turn := handle(t, c, "unmatched", "hm")
	assert.Empty(t, turn.Responses())
}

func TestHandleMessageWaitingResumes(t *testing.T) {
	c, _ := newTestController(t)
	c.AddNode(&waitNode{NodeCore: NewNodeCore("ask", "thanks")})
	c.AddNode(&echoNode{NodeCore: NewNodeCore("thanks")})
	require.NoError(t, c.AddIntentTrigger("order", "ask"))

	turn := handle(t, c, "order", "I want pizza")
	require.Len(t, turn.Responses(), 1)
	assert.Equal(t, "waiting for you", turn.Responses()[0].Content)

	// The waiting node resumes without a trigger.
	turn = handle(t, c, "answer", "large")
	require.Len(t, turn.Responses(), 1)
	assert.Equal(t, "thanks", turn.Responses()[0].Content)
}

func TestUnknownIntentTriggerRejected(t *testing.T) {
	c, _ := newTestController(t)
	err := c.AddIntentTrigger("greet", "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownNode)

	err = c.SetFallbackNode("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownNode)
}

func TestUnknownCallstackNodeFailsTurn(t *testing.T) {
	c, _ := newTestController(t)
	c.AddNode(&echoNode{NodeCore: NewNodeCore("start", "nowhere")})
	require.NoError(t, c.AddIntentTrigger("go", "start"))

	msg := domain.NewMessage("x")
	msg.Intent = "go"
	_, err := c.HandleMessage(context.Background(), msg, "u1", "c1", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownNode)
}

func TestShortCircuitRestartsSession(t *testing.T) {
	c, provider := newTestController(t, WithShortCircuit(5))
	c.AddNode(&echoNode{NodeCore: NewNodeCore("ping", "pong")})
	c.AddNode(&echoNode{NodeCore: NewNodeCore("pong", "ping")})
	require.NoError(t, c.AddIntentTrigger("go", "ping"))

	turn := handle(t, c, "go", "start")

	resps := turn.Responses()
	require.Len(t, resps, 6)
	assert.Contains(t, resps[5].Content, "Short circuit")

	sess, err := provider.Session(context.Background(), "u1", "c1", nil)
	require.NoError(t, err)
	assert.True(t, sess.IsDone())
	assert.Empty(t, sess.History())
}

func TestSessionTimeoutRestarts(t *testing.T) {
	c, provider := newTestController(t, WithSessionTimeout(time.Minute))
	c.AddNode(&waitNode{NodeCore: NewNodeCore("ask")})
	require.NoError(t, c.AddIntentTrigger("order", "ask"))

	handle(t, c, "order", "hi")

	sess, err := provider.Session(context.Background(), "u1", "c1", nil)
	require.NoError(t, err)
	assert.False(t, sess.IsDone())

	// Simulate a long silence: the waiting state is discarded.
	sess.Touch(time.Now().Add(-2 * time.Minute))
	turn := handle(t, c, "", "still there?")

	assert.Empty(t, turn.Responses())
	assert.True(t, sess.IsDone())
}

func TestErrorStatusKeepsDraining(t *testing.T) {
	c, _ := newTestController(t)
	c.AddNode(&stubNode{NodeCore: NewNodeCore("broken", "after"), err: assert.AnError})
	c.AddNode(&echoNode{NodeCore: NewNodeCore("after")})
	require.NoError(t, c.AddIntentTrigger("go", "broken"))

	// The node fault resolves to an ERROR result inside the loop; the turn
	// itself completes without an error.
	turn := handle(t, c, "go", "x")
	assert.Empty(t, turn.Responses())
}

func TestLifecycleHooksFire(t *testing.T) {
	var turnStart, turnEnd int
	var nodeEvents []string

	hooks := domain.LifecycleHooks{
		OnTurnStart: func(_ context.Context, ev *domain.TurnEvent) { turnStart++ },
		OnTurnEnd: func(_ context.Context, ev *domain.TurnEvent) {
			turnEnd++
			assert.Equal(t, 1, ev.Responses)
		},
		OnNodeEnter: func(_ context.Context, ev *domain.NodeEvent) {
			nodeEvents = append(nodeEvents, "enter:"+ev.Node)
		},
		OnNodeLeave: func(_ context.Context, ev *domain.NodeEvent) {
			nodeEvents = append(nodeEvents, "leave:"+ev.Node+":"+string(ev.Status))
		},
	}

	c, _ := newTestController(t, WithLifecycleHooks(hooks))
	c.AddNode(&echoNode{NodeCore: NewNodeCore("welcome")})
	require.NoError(t, c.AddIntentTrigger("greet", "welcome"))

	handle(t, c, "greet", "hello")

	assert.Equal(t, 1, turnStart)
	assert.Equal(t, 1, turnEnd)
	assert.Equal(t, []string{"enter:welcome", "leave:welcome:done"}, nodeEvents)
}

func TestInjectUserData(t *testing.T) {
	c, provider := newTestController(t)

	require.NoError(t, c.InjectUserData(context.Background(), "u1", "crm_id", "42"))

	sess, err := provider.Session(context.Background(), "u1", "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", sess.UserData()["crm_id"])
}
