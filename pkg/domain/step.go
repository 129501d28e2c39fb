package domain

// UnknownIntent is the sentinel recorded when a message carries no intent.
const UnknownIntent = "<UNK>"

// StepType distinguishes the two kinds of history entries.
type StepType string

const (
	StepIntent StepType = "intent"
	StepAction StepType = "action"
)

// Step is one session history entry: either an inbound intent or a node
// activation. External policies consume the Hash values as sequence features.
type Step struct {
	Type   StepType   `json:"type"`
	Name   string     `json:"name"`
	Status NodeStatus `json:"status,omitempty"`

	// Data is a snapshot of the triggering data (message fields for intent
	// steps, free-form for action steps).
	Data map[string]any `json:"data,omitempty"`
}

// NewIntentStep records an inbound intent with its message snapshot.
func NewIntentStep(intent string, data map[string]any) Step {
	if intent == "" {
		intent = UnknownIntent
	}
	return Step{Type: StepIntent, Name: intent, Data: data}
}

// NewActionStep records a node activation and its final status.
func NewActionStep(node string, status NodeStatus) Step {
	return Step{Type: StepAction, Name: node, Status: status}
}

// Hash returns the stable state identifier, "intent__<name>" or
// "action__<name>".
func (s Step) Hash() string {
	return string(s.Type) + "__" + s.Name
}
