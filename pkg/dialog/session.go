package dialog

import (
	"context"
	"time"

	"github.com/aretw0/parley/pkg/domain"
)

// ResponseRouter delivers a response through a custom channel instead of the
// turn accumulator. If it returns an error the response falls back to the
// accumulator, so a turn's responses are never silently lost.
type ResponseRouter func(resp domain.Response, sess Session) error

// Session is the state container for one (user, conversation) pair. All node
// side effects are mediated through it; nodes never hold state of their own.
//
// The in-memory implementation lives in this package; a Redis-backed variant
// with distributed locking lives in pkg/adapters/redis.
type Session interface {
	UserID() string
	ConversationID() string

	// BeginTurn installs a fresh TurnContext for the inbound message.
	BeginTurn(msg *domain.Message, data map[string]any) *TurnContext
	// Turn returns the current turn context.
	Turn() *TurnContext
	// AddResponse routes a response through the configured router, falling
	// back to the turn accumulator on router failure.
	AddResponse(resp domain.Response)

	// Per-node maps, keyed by node name.
	SetParams(node string, value any)
	Params(node string) any
	SetResult(node string, value any)
	Result(node string) any
	SetStatus(node string, status domain.NodeStatus)
	Status(node string) domain.NodeStatus
	SetData(node string, value map[string]any)
	Data(node string) map[string]any

	// AddStep appends to the session history.
	AddStep(step domain.Step)
	History() []domain.Step

	// PushCallstack schedules nodes; the first listed runs next.
	PushCallstack(nodes ...string)
	// PopCallstack removes and returns the next pending node.
	PopCallstack() (string, bool)
	// IsDone reports whether the callstack is empty.
	IsDone() bool

	// LastActionResult scans history backwards for the latest action step and
	// returns that node's stored result. The read does not mutate anything;
	// callers that want the original consume-on-read behavior follow up with
	// ClearNodeResult.
	LastActionResult() (node string, value any, ok bool)
	// ClearNodeResult removes the stored result for a node.
	ClearNodeResult(node string)
	// ResetNode clears the per-node status and data for a node.
	ResetNode(node string)

	// UserData is shared across all conversations of the user and survives
	// session restarts.
	UserData() map[string]any

	// Timestamp returns the last-activity time; Touch updates it.
	Timestamp() time.Time
	Touch(t time.Time)

	// Restart clears callstack, history and all per-node maps. UserData is
	// preserved unless clearUserData is set.
	Restart(clearUserData bool)

	// Load hydrates the session at the start of a turn, acquiring any
	// distributed lock keyed by the message id. Save persists it at the end
	// of the turn and releases the lock. Both are no-ops for the in-memory
	// variant.
	Load(ctx context.Context, messageID string) error
	Save(ctx context.Context, messageID string) error

	// Snapshot exports the serializable state; Hydrate replaces it.
	Snapshot() *domain.Snapshot
	Hydrate(snap *domain.Snapshot)
}

// Provider resolves (lazily creating) the Session for a (user, conversation)
// pair. The seed map is merged into the user-level data bucket on first
// contact.
type Provider interface {
	Session(ctx context.Context, userID, conversationID string, seed map[string]any) (Session, error)
}
