package dialog

import (
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
)

// TurnContext accumulates the outbound responses of one inbound message.
// It is recreated on every turn and never persisted.
type TurnContext struct {
	// Message is the inbound event that triggered this turn.
	Message *domain.Message

	// Data is a free-form map scoped to this turn only.
	Data map[string]any

	responses []domain.Response
	index     int
}

// NewTurnContext creates the accumulator for one inbound message.
func NewTurnContext(msg *domain.Message, data map[string]any) *TurnContext {
	if data == nil {
		data = make(map[string]any)
	}
	return &TurnContext{Message: msg, Data: data}
}

// Append stamps the response with the next watermark and records it.
// Watermarks are "<message.id>.<index>" and strictly increase within the
// turn; consumers treat them as an idempotency/ordering key.
func (t *TurnContext) Append(resp domain.Response) {
	resp.Watermark = fmt.Sprintf("%s.%d", t.Message.ID, t.index)
	t.index++
	t.responses = append(t.responses, resp)
}

// Responses returns the ordered outbound responses collected so far.
func (t *TurnContext) Responses() []domain.Response {
	return t.responses
}
