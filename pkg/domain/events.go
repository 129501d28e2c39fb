package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurnStart EventType = "turn_start"
	EventTurnEnd   EventType = "turn_end"
	EventNodeEnter EventType = "node_enter"
	EventNodeLeave EventType = "node_leave"
)

// TurnEvent describes the processing of one inbound message.
type TurnEvent struct {
	Timestamp      time.Time     `json:"timestamp"`
	Type           EventType     `json:"type"`
	UserID         string        `json:"user_id"`
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
	Intent         string        `json:"intent,omitempty"`
	Responses      int           `json:"responses,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
	ShortCircuited bool          `json:"short_circuited,omitempty"`
}

// NodeEvent describes one node activation inside a turn.
type NodeEvent struct {
	Timestamp time.Time  `json:"timestamp"`
	Type      EventType  `json:"type"`
	Node      string     `json:"node"`
	Status    NodeStatus `json:"status,omitempty"`
}

// LifecycleHooks defines callbacks for controller observability. All fields
// are optional; nil hooks are skipped.
type LifecycleHooks struct {
	OnTurnStart func(context.Context, *TurnEvent)
	OnTurnEnd   func(context.Context, *TurnEvent)
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
}
