package nodes

import (
	"context"
	"math/rand"
	"slices"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// IntentPrompt keeps prompting until the user answers with one of the
// expected intents, then stores the matched intent as its result.
type IntentPrompt struct {
	dialog.NodeCore

	// Intents are the accepted answers.
	Intents []string

	// Prompts are asked (one at random) while no expected intent arrives.
	Prompts []string
}

// NewIntentPrompt creates an intent prompt node.
func NewIntentPrompt(name string, intents, prompts []string, next ...string) *IntentPrompt {
	return &IntentPrompt{
		NodeCore: dialog.NewNodeCore(name, next...),
		Intents:  intents,
		Prompts:  prompts,
	}
}

func (n *IntentPrompt) OnMessage(ctx context.Context, sess dialog.Session) (domain.NodeResult, error) {
	intent := sess.Turn().Message.Intent
	if intent != "" && slices.Contains(n.Intents, intent) {
		sess.SetResult(n.Name(), intent)
		return domain.Done(n.NextNodes...), nil
	}

	if len(n.Prompts) > 0 {
		sess.AddResponse(domain.NewTextResponse(n.Prompts[rand.Intn(len(n.Prompts))]))
	}
	return domain.Waiting(n.Name()), nil
}
