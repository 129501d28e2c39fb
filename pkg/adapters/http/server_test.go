package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/parley/pkg/dialog"
	"github.com/aretw0/parley/pkg/domain"
)

// stubDialog records the call and plays back a scripted turn.
type stubDialog struct {
	lastMsg   *domain.Message
	lastUser  string
	lastConv  string
	lastData  map[string]any
	responses []string
	err       error
}

func (d *stubDialog) HandleMessage(ctx context.Context, msg *domain.Message, userID, conversationID string, turnData map[string]any) (*dialog.TurnContext, error) {
	d.lastMsg = msg
	d.lastUser = userID
	d.lastConv = conversationID
	d.lastData = turnData
	if d.err != nil {
		return nil, d.err
	}
	turn := dialog.NewTurnContext(msg, turnData)
	for _, text := range d.responses {
		turn.Append(domain.NewTextResponse(text))
	}
	return turn, nil
}

func postMessage(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessageEndpoint(t *testing.T) {
	stub := &stubDialog{responses: []string{"hello!", "what next?"}}
	handler := NewHandler(stub)

	rec := postMessage(t, handler, MessageRequest{
		UserID:         "u1",
		ConversationID: "c1",
		Message:        &domain.Message{ID: "m1", Text: "hi", Intent: "greet"},
		Data:           map[string]any{"channel": "web"},
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Responses, 2)
	assert.Equal(t, "hello!", resp.Responses[0].Content)
	assert.Equal(t, "m1.0", resp.Responses[0].Watermark)
	assert.Equal(t, "m1.1", resp.Responses[1].Watermark)

	assert.Equal(t, "u1", stub.lastUser)
	assert.Equal(t, "c1", stub.lastConv)
	assert.Equal(t, "greet", stub.lastMsg.Intent)
	assert.Equal(t, "web", stub.lastData["channel"])
}

func TestHandleMessageEmptyTurn(t *testing.T) {
	handler := NewHandler(&stubDialog{})

	rec := postMessage(t, handler, MessageRequest{
		UserID:  "u1",
		Message: &domain.Message{ID: "m1", Text: "hi"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"responses":[]}`, rec.Body.String())
}

func TestHandleMessageValidation(t *testing.T) {
	handler := NewHandler(&stubDialog{})

	rec := postMessage(t, handler, map[string]any{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postMessage(t, handler, MessageRequest{
		UserID:  "u1",
		Message: &domain.Message{Text: "no id"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte("{not json")))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageWiringErrorIsClientVisible(t *testing.T) {
	stub := &stubDialog{err: domain.ErrUnknownNode}
	handler := NewHandler(stub)

	rec := postMessage(t, handler, MessageRequest{
		UserID:  "u1",
		Message: &domain.Message{ID: "m1"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthz(t *testing.T) {
	handler := NewHandler(&stubDialog{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsMountedWhenConfigured(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})

	withMetrics := NewHandler(&stubDialog{}, WithMetricsHandler(metrics))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	withMetrics.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	without := NewHandler(&stubDialog{})
	rec = httptest.NewRecorder()
	without.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
