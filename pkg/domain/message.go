package domain

import (
	"github.com/google/uuid"
)

// Message is the parsed inbound event the engine consumes: an utterance plus
// whatever the NLU collaborator extracted from it. Callers may also construct
// one directly with a pre-set intent, bypassing NLU entirely.
//
// The core treats a Message as immutable, with one exception: nodes may
// rewrite Intent and Entities as part of slot filling or escape handling.
type Message struct {
	// ID uniquely identifies one delivery attempt. It doubles as the lock
	// identity in the distributed session store and as the watermark prefix
	// on outbound responses.
	ID string `json:"id"`

	// Text is the raw utterance.
	Text string `json:"text"`

	// Intent is the resolved intent, empty when NLU could not decide.
	Intent string `json:"intent,omitempty"`

	// IntentRanking holds the ranked intent candidates.
	IntentRanking []IntentScore `json:"intent_ranking,omitempty"`

	// Entities are the values extracted from Text.
	Entities []Entity `json:"entities,omitempty"`

	// Config carries free-form per-message settings (e.g. timezone).
	Config map[string]any `json:"config,omitempty"`
}

// IntentScore is one ranked intent candidate.
type IntentScore struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Entity is a single extracted value with its span in the original text.
type Entity struct {
	Entity     string  `json:"entity"`
	Value      any     `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	Extractor  string  `json:"extractor,omitempty"`
	Confidence float64 `json:"confidence"`
}

// NewMessage creates a Message with a fresh unique ID.
func NewMessage(text string) *Message {
	return &Message{
		ID:     uuid.NewString(),
		Text:   text,
		Config: make(map[string]any),
	}
}

// Snapshot returns the fields worth attaching to a history Step. It is a
// plain map so it survives JSON round-trips without the Message type.
func (m *Message) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	snap := map[string]any{
		"text": m.Text,
	}
	if m.Intent != "" {
		snap["intent"] = m.Intent
	}
	if len(m.Entities) > 0 {
		entities := make([]any, 0, len(m.Entities))
		for _, e := range m.Entities {
			entities = append(entities, map[string]any{
				"entity": e.Entity,
				"value":  e.Value,
			})
		}
		snap["entities"] = entities
	}
	return snap
}
