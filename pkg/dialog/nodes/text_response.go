package nodes

import (
	"context"
	"math/rand"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// TextResponse replies with one of its configured texts and completes.
type TextResponse struct {
	dialog.NodeCore

	// Responses are the candidate replies; one is picked at random.
	Responses []string
}

// NewTextResponse creates a text reply node.
func NewTextResponse(name string, responses []string, next ...string) *TextResponse {
	return &TextResponse{
		NodeCore:  dialog.NewNodeCore(name, next...),
		Responses: responses,
	}
}

func (n *TextResponse) OnMessage(ctx context.Context, sess dialog.Session) (domain.NodeResult, error) {
	if len(n.Responses) > 0 {
		sess.AddResponse(domain.NewTextResponse(n.Responses[rand.Intn(len(n.Responses))]))
	}
	return domain.Done(n.NextNodes...), nil
}
