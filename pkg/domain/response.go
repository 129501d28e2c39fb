package domain

// Response is one outbound message produced during a turn.
type Response struct {
	// Type tags the payload ("text" for plain replies).
	Type string `json:"type"`

	// Content is the payload itself.
	Content any `json:"content"`

	// Watermark is the ordering/dedup stamp "<message.id>.<index>",
	// strictly increasing within a turn. Channels use it to detect
	// retransmission.
	Watermark string `json:"watermark,omitempty"`
}

// NewTextResponse creates a plain text response.
func NewTextResponse(content string) Response {
	return Response{Type: "text", Content: content}
}
