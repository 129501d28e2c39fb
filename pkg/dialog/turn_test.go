package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
)

func TestTurnContextWatermarks(t *testing.T) {
	turn := NewTurnContext(&domain.Message{ID: "m1", Text: "hi"}, nil)

	turn.Append(domain.NewTextResponse("first"))
	turn.Append(domain.NewTextResponse("second"))
	turn.Append(domain.NewTextResponse("third"))

	resps := turn.Responses()
	require.Len(t, resps, 3)
	assert.Equal(t, "m1.0", resps[0].Watermark)
	assert.Equal(t, "m1.1", resps[1].Watermark)
	assert.Equal(t, "m1.2", resps[2].Watermark)
	assert.Equal(t, "first", resps[0].Content)
}

func TestTurnContextDefaultsData(t *testing.T) {
	turn := NewTurnContext(&domain.Message{ID: "m1"}, nil)
	require.NotNil(t, turn.Data)

	turn.Data["channel"] = "whatsapp"
	assert.Equal(t, "whatsapp", turn.Data["channel"])
}
