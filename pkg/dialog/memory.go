package dialog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
)

// MemorySession is the single-process reference implementation of Session.
// Load and Save are no-ops; state is already resident. It is not safe for
// concurrent use by itself: turns for one session are serialized by design.
type MemorySession struct {
	userID         string
	conversationID string

	callstack   []string
	history     []domain.Step
	nodeParams  map[string]any
	nodeResults map[string]any
	nodeData    map[string]map[string]any
	nodeStatus  map[string]domain.NodeStatus

	userData  map[string]any
	timestamp time.Time

	turn   *TurnContext
	router ResponseRouter
	logger *slog.Logger
}

// NewMemorySession creates an empty session for the given key. The userData
// map is kept by reference so one bucket can be shared across conversations.
func NewMemorySession(userID, conversationID string, userData map[string]any) *MemorySession {
	if userData == nil {
		userData = make(map[string]any)
	}
	return &MemorySession{
		userID:         userID,
		conversationID: conversationID,
		nodeParams:     make(map[string]any),
		nodeResults:    make(map[string]any),
		nodeData:       make(map[string]map[string]any),
		nodeStatus:     make(map[string]domain.NodeStatus),
		userData:       userData,
		timestamp:      time.Now(),
		logger:         logging.NewNop(),
	}
}

// SetResponseRouter installs a custom delivery hook for responses.
func (s *MemorySession) SetResponseRouter(router ResponseRouter) {
	s.router = router
}

// SetLogger replaces the default no-op logger.
func (s *MemorySession) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *MemorySession) UserID() string         { return s.userID }
func (s *MemorySession) ConversationID() string { return s.conversationID }

// BeginTurn installs a fresh accumulator for the inbound message.
func (s *MemorySession) BeginTurn(msg *domain.Message, data map[string]any) *TurnContext {
	s.turn = NewTurnContext(msg, data)
	return s.turn
}

func (s *MemorySession) Turn() *TurnContext { return s.turn }

// AddResponse routes the response, falling back to the turn accumulator if
// the router fails.
func (s *MemorySession) AddResponse(resp domain.Response) {
	if s.router != nil {
		if err := s.router(resp, s); err == nil {
			return
		} else {
			s.logger.Error("response router failed, falling back to turn accumulator",
				"user_id", s.userID,
				"conversation_id", s.conversationID,
				"err", err,
			)
		}
	}
	s.turn.Append(resp)
}

func (s *MemorySession) SetParams(node string, value any) { s.nodeParams[node] = value }
func (s *MemorySession) Params(node string) any           { return s.nodeParams[node] }

func (s *MemorySession) SetResult(node string, value any) { s.nodeResults[node] = value }
func (s *MemorySession) Result(node string) any           { return s.nodeResults[node] }

func (s *MemorySession) SetStatus(node string, status domain.NodeStatus) {
	s.nodeStatus[node] = status
}

func (s *MemorySession) Status(node string) domain.NodeStatus { return s.nodeStatus[node] }

func (s *MemorySession) SetData(node string, value map[string]any) { s.nodeData[node] = value }

// Data returns the node's ephemeral map, allocating it on first access.
func (s *MemorySession) Data(node string) map[string]any {
	data, ok := s.nodeData[node]
	if !ok {
		data = make(map[string]any)
		s.nodeData[node] = data
	}
	return data
}

func (s *MemorySession) AddStep(step domain.Step) { s.history = append(s.history, step) }
func (s *MemorySession) History() []domain.Step   { return s.history }

// PushCallstack schedules nodes so the first listed runs next. The callstack
// pops at the tail, so the list is appended in reverse.
func (s *MemorySession) PushCallstack(nodes ...string) {
	for i := len(nodes) - 1; i >= 0; i-- {
		s.callstack = append(s.callstack, nodes[i])
	}
}

func (s *MemorySession) PopCallstack() (string, bool) {
	if len(s.callstack) == 0 {
		return "", false
	}
	node := s.callstack[len(s.callstack)-1]
	s.callstack = s.callstack[:len(s.callstack)-1]
	return node, true
}

func (s *MemorySession) IsDone() bool { return len(s.callstack) == 0 }

// LastActionResult finds the most recent action step in history and returns
// that node's stored result.
func (s *MemorySession) LastActionResult() (string, any, bool) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Type == domain.StepAction {
			node := s.history[i].Name
			value, ok := s.nodeResults[node]
			return node, value, ok
		}
	}
	return "", nil, false
}

func (s *MemorySession) ClearNodeResult(node string) { delete(s.nodeResults, node) }

// ResetNode clears a node's stored status and ephemeral data.
func (s *MemorySession) ResetNode(node string) {
	delete(s.nodeStatus, node)
	delete(s.nodeData, node)
}

func (s *MemorySession) UserData() map[string]any { return s.userData }

// SetUserData replaces the bucket contents in place, preserving the shared
// map reference.
func (s *MemorySession) SetUserData(data map[string]any) {
	for k := range s.userData {
		delete(s.userData, k)
	}
	for k, v := range data {
		s.userData[k] = v
	}
}

func (s *MemorySession) Timestamp() time.Time { return s.timestamp }
func (s *MemorySession) Touch(t time.Time)    { s.timestamp = t }

// Restart clears callstack, history and every per-node map. User data
// survives unless explicitly requested otherwise.
func (s *MemorySession) Restart(clearUserData bool) {
	s.callstack = nil
	s.history = nil
	s.nodeParams = make(map[string]any)
	s.nodeResults = make(map[string]any)
	s.nodeData = make(map[string]map[string]any)
	s.nodeStatus = make(map[string]domain.NodeStatus)
	if clearUserData {
		for k := range s.userData {
			delete(s.userData, k)
		}
	}
}

// Load is a no-op: state is already resident.
func (s *MemorySession) Load(ctx context.Context, messageID string) error { return nil }

// Save is a no-op: state is already resident.
func (s *MemorySession) Save(ctx context.Context, messageID string) error { return nil }

// Snapshot exports a detached copy of the serializable state.
func (s *MemorySession) Snapshot() *domain.Snapshot {
	snap := domain.NewSnapshot()
	snap.Callstack = append(snap.Callstack, s.callstack...)
	snap.History = append(snap.History, s.history...)
	for k, v := range s.nodeParams {
		snap.NodeParams[k] = v
	}
	for k, v := range s.nodeResults {
		snap.NodeResults[k] = v
	}
	for node, data := range s.nodeData {
		inner := make(map[string]any, len(data))
		for k, v := range data {
			inner[k] = v
		}
		snap.NodeData[node] = inner
	}
	for k, v := range s.nodeStatus {
		snap.NodeStatus[k] = v
	}
	snap.Timestamp = s.timestamp
	return snap
}

// Hydrate replaces the session state with the snapshot's contents.
func (s *MemorySession) Hydrate(snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	s.callstack = append([]string(nil), snap.Callstack...)
	s.history = append([]domain.Step(nil), snap.History...)
	s.nodeParams = make(map[string]any, len(snap.NodeParams))
	for k, v := range snap.NodeParams {
		s.nodeParams[k] = v
	}
	s.nodeResults = make(map[string]any, len(snap.NodeResults))
	for k, v := range snap.NodeResults {
		s.nodeResults[k] = v
	}
	s.nodeData = make(map[string]map[string]any, len(snap.NodeData))
	for node, data := range snap.NodeData {
		inner := make(map[string]any, len(data))
		for k, v := range data {
			inner[k] = v
		}
		s.nodeData[node] = inner
	}
	s.nodeStatus = make(map[string]domain.NodeStatus, len(snap.NodeStatus))
	for k, v := range snap.NodeStatus {
		s.nodeStatus[k] = v
	}
	if !snap.Timestamp.IsZero() {
		s.timestamp = snap.Timestamp
	}
}

// MemoryProvider hands out in-memory sessions keyed by (user, conversation).
// Sessions of the same user share one user-data bucket.
type MemoryProvider struct {
	mu       sync.Mutex
	sessions map[string]*MemorySession
	users    map[string]map[string]any

	router ResponseRouter
	logger *slog.Logger
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		sessions: make(map[string]*MemorySession),
		users:    make(map[string]map[string]any),
		logger:   logging.NewNop(),
	}
}

// SetResponseRouter installs a custom delivery hook on every session this
// provider hands out (existing sessions included).
func (p *MemoryProvider) SetResponseRouter(router ResponseRouter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.router = router
	for _, sess := range p.sessions {
		sess.SetResponseRouter(router)
	}
}

// SetLogger replaces the default no-op logger.
func (p *MemoryProvider) SetLogger(logger *slog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if logger != nil {
		p.logger = logger
	}
}

// Session lazily creates (or returns) the session for the key, seeding the
// shared user-data bucket on the way.
func (p *MemoryProvider) Session(ctx context.Context, userID, conversationID string, seed map[string]any) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket, ok := p.users[userID]
	if !ok {
		bucket = make(map[string]any)
		p.users[userID] = bucket
	}
	for k, v := range seed {
		bucket[k] = v
	}

	key := userID + "/" + conversationID
	sess, ok := p.sessions[key]
	if !ok {
		sess = NewMemorySession(userID, conversationID, bucket)
		sess.SetResponseRouter(p.router)
		sess.SetLogger(p.logger)
		p.sessions[key] = sess
	}
	return sess, nil
}
