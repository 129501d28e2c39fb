package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/domain"
)

func TestExprConditionRoutesOnBoolean(t *testing.T) {
	node := NewExprCondition("gate", `intent == "vip" or user.plan == "pro"`, map[string]string{
		"true":  "fast_lane",
		"false": "queue",
	})

	sess := collectorSession(t, textMsg("hello"))
	sess.UserData()["plan"] = "pro"

	result, err := node.OnMessage(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, domain.Done("fast_lane"), result)

	sess.UserData()["plan"] = "free"
	sess.BeginTurn(textMsg("hello again"), nil)
	result, err = node.OnMessage(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, domain.Done("queue"), result)
}

func TestExprConditionReadsPreviousResult(t *testing.T) {
	node := NewExprCondition("gate", `result`, map[string]string{
		"approved": "ship",
	}, "review")

	sess := collectorSession(t, textMsg(""))
	sess.AddStep(domain.NewActionStep("check", domain.StatusDone))
	sess.SetResult("check", "approved")

	result, err := node.OnMessage(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, domain.Done("ship"), result)

	// Unlike ResultCondition, the upstream result survives.
	assert.Equal(t, "approved", sess.Result("check"))
}

func TestExprConditionUnmatchedFallsThrough(t *testing.T) {
	node := NewExprCondition("gate", `text`, map[string]string{
		"ping": "pong",
	}, "default")

	sess := collectorSession(t, textMsg("something else"))
	result, err := node.OnMessage(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, domain.Done("default"), result)
}

func TestExprConditionCompileErrorSurfaces(t *testing.T) {
	node := NewExprCondition("gate", `intent ==`, nil)

	sess := collectorSession(t, textMsg("x"))
	_, err := node.OnMessage(context.Background(), sess)
	assert.Error(t, err)
}

func TestExprConditionReferences(t *testing.T) {
	node := NewExprCondition("gate", `true`, map[string]string{"true": "a"}, "b")
	assert.ElementsMatch(t, []string{"a", "b"}, node.References())
}
