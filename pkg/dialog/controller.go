package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

const (
	// DefaultShortCircuit bounds node activations per turn. Flows that
	// re-push each other without ever waiting for input hit this guard.
	DefaultShortCircuit = 20

	// DefaultSessionTimeout is the conversational inactivity window after
	// which a session restarts on the next contact.
	DefaultSessionTimeout = time.Hour
)

// Controller owns the node registry, the intent-trigger table and the turn
// execution loop. It mediates between inbound messages and sessions.
type Controller struct {
	sessions Provider

	nodes    map[string]Node
	triggers map[string]string
	fallback string

	policy         ActionPolicy
	sessionTimeout time.Duration
	shortCircuit   int
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithActionPolicy installs the strategy consulted when no trigger matches.
func WithActionPolicy(policy ActionPolicy) Option {
	return func(c *Controller) { c.policy = policy }
}

// WithSessionTimeout sets the inactivity window; zero disables the check.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Controller) { c.sessionTimeout = d }
}

// WithShortCircuit overrides the per-turn step bound.
func WithShortCircuit(limit int) Option {
	return func(c *Controller) {
		if limit > 0 {
			c.shortCircuit = limit
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) { c.hooks = hooks }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a controller bound to an explicit session provider.
// There is no ambient default provider.
func NewController(sessions Provider, opts ...Option) *Controller {
	c := &Controller{
		sessions:       sessions,
		nodes:          make(map[string]Node),
		triggers:       make(map[string]string),
		sessionTimeout: DefaultSessionTimeout,
		shortCircuit:   DefaultShortCircuit,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddNode registers a node under its name. Later registrations win.
func (c *Controller) AddNode(node Node) {
	c.nodes[node.Name()] = node
}

// Node returns a registered node by name.
func (c *Controller) Node(name string) (Node, bool) {
	node, ok := c.nodes[name]
	return node, ok
}

// AddIntentTrigger maps an intent to an entry node. The node must already be
// registered; unknown names are a wiring mistake and fail outright.
func (c *Controller) AddIntentTrigger(intent, node string) error {
	if _, ok := c.nodes[node]; !ok {
		return fmt.Errorf("intent trigger %q: %w: %s", intent, domain.ErrUnknownNode, node)
	}
	c.triggers[intent] = node
	return nil
}

// SetFallbackNode sets the node run when the callstack is empty and no
// trigger or policy produced an entry node.
func (c *Controller) SetFallbackNode(node string) error {
	if _, ok := c.nodes[node]; !ok {
		return fmt.Errorf("fallback: %w: %s", domain.ErrUnknownNode, node)
	}
	c.fallback = node
	return nil
}

// InjectUserData writes a value into the user-level bucket shared across the
// user's conversations.
func (c *Controller) InjectUserData(ctx context.Context, userID, key string, value any) error {
	sess, err := c.sessions.Session(ctx, userID, "", map[string]any{key: value})
	if err != nil {
		return err
	}
	sess.UserData()[key] = value
	return nil
}

// resolveEntryNode picks the node to start when the callstack is empty:
// intent trigger first, then the action policy, then the fallback.
func (c *Controller) resolveEntryNode(msg *domain.Message, sess Session) string {
	if node, ok := c.triggers[msg.Intent]; ok && msg.Intent != "" {
		return node
	}
	if c.policy != nil {
		if result := c.policy.Process(msg, sess); result.Action != "" {
			return result.Action
		}
	}
	return c.fallback
}

// HandleMessage executes one turn: load the session (acquiring any
// distributed lock), run the node loop until a stop condition, persist the
// session (releasing the lock) and return the ordered responses.
func (c *Controller) HandleMessage(ctx context.Context, msg *domain.Message, userID, conversationID string, turnData map[string]any) (*TurnContext, error) {
	started := time.Now()

	sess, err := c.sessions.Session(ctx, userID, conversationID, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve session %s/%s: %w", userID, conversationID, err)
	}

	turn := sess.BeginTurn(msg, turnData)
	if err := sess.Load(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("load session %s/%s: %w", userID, conversationID, err)
	}

	c.emitTurnStart(ctx, sess, msg)

	now := time.Now()
	if c.sessionTimeout > 0 && now.Sub(sess.Timestamp()) > c.sessionTimeout {
		c.logger.Info("session timed out, restarting",
			"user_id", userID,
			"conversation_id", conversationID,
			"idle", now.Sub(sess.Timestamp()),
		)
		sess.Restart(false)
	}
	sess.Touch(now)

	sess.AddStep(domain.NewIntentStep(msg.Intent, msg.Snapshot()))

	if sess.IsDone() {
		entry := c.resolveEntryNode(msg, sess)
		if entry == "" {
			// Nothing to run: end the turn with no responses.
			if err := sess.Save(ctx, msg.ID); err != nil {
				return nil, fmt.Errorf("save session %s/%s: %w", userID, conversationID, err)
			}
			c.emitTurnEnd(ctx, sess, msg, started, false)
			return turn, nil
		}
		sess.PushCallstack(entry)
	}

	shortCircuited, runErr := c.runLoop(ctx, sess)

	if err := sess.Save(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("save session %s/%s: %w", userID, conversationID, err)
	}
	c.emitTurnEnd(ctx, sess, msg, started, shortCircuited)

	if runErr != nil {
		return turn, runErr
	}
	return turn, nil
}

// runLoop pops and runs nodes until the callstack drains or a stop condition
// hits. It reports whether the short-circuit guard fired.
func (c *Controller) runLoop(ctx context.Context, sess Session) (bool, error) {
loop:
	for step := 1; !sess.IsDone(); step++ {
		if step > c.shortCircuit {
			sess.AddResponse(domain.NewTextResponse(
				fmt.Sprintf("Exceeded %d steps without listening. Short circuit!", c.shortCircuit)))
			sess.Restart(false)
			c.logger.Warn("short circuit: runaway flow restarted",
				"user_id", sess.UserID(),
				"conversation_id", sess.ConversationID(),
				"limit", c.shortCircuit,
			)
			return true, nil
		}

		name, _ := sess.PopCallstack()
		node, ok := c.nodes[name]
		if !ok {
			// A callstack entry pointing nowhere is a wiring mistake, not a
			// node fault.
			return false, fmt.Errorf("callstack: %w: %s", domain.ErrUnknownNode, name)
		}

		c.emitNodeEnter(ctx, name)
		result := Run(ctx, node, sess)
		c.emitNodeLeave(ctx, name, result.Status)

		if len(result.Next) > 0 {
			sess.PushCallstack(result.Next...)
		}

		switch result.Status {
		case domain.StatusWaiting:
			break loop
		case domain.StatusRestart:
			sess.Restart(false)
			break loop
		default:
			// DONE, ESCAPE and ERROR keep draining the callstack.
		}
	}
	return false, nil
}

func (c *Controller) emitTurnStart(ctx context.Context, sess Session, msg *domain.Message) {
	if c.hooks.OnTurnStart == nil {
		return
	}
	c.hooks.OnTurnStart(ctx, &domain.TurnEvent{
		Timestamp:      time.Now(),
		Type:           domain.EventTurnStart,
		UserID:         sess.UserID(),
		ConversationID: sess.ConversationID(),
		MessageID:      msg.ID,
		Intent:         msg.Intent,
	})
}

func (c *Controller) emitTurnEnd(ctx context.Context, sess Session, msg *domain.Message, started time.Time, shortCircuited bool) {
	if c.hooks.OnTurnEnd == nil {
		return
	}
	c.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
		Timestamp:      time.Now(),
		Type:           domain.EventTurnEnd,
		UserID:         sess.UserID(),
		ConversationID: sess.ConversationID(),
		MessageID:      msg.ID,
		Intent:         msg.Intent,
		Responses:      len(sess.Turn().Responses()),
		Duration:       time.Since(started),
		ShortCircuited: shortCircuited,
	})
}

func (c *Controller) emitNodeEnter(ctx context.Context, node string) {
	if c.hooks.OnNodeEnter == nil {
		return
	}
	c.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		Timestamp: time.Now(),
		Type:      domain.EventNodeEnter,
		Node:      node,
	})
}

func (c *Controller) emitNodeLeave(ctx context.Context, node string, status domain.NodeStatus) {
	if c.hooks.OnNodeLeave == nil {
		return
	}
	c.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		Timestamp: time.Now(),
		Type:      domain.EventNodeLeave,
		Node:      node,
		Status:    status,
	})
}
