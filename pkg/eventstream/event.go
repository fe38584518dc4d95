package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeChatCompleted is emitted after a chat request finishes.
	EventTypeChatCompleted = "relay.chat.completed"
)

// ChatCompletedEvent is a transport-neutral event payload describing one chat
// request. It carries sizes and outcomes only, never prompt or reply text.
type ChatCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Request       RequestMeta `json:"request"`
	Outcome       OutcomeMeta `json:"outcome"`
}

// RequestMeta captures what was asked and how.
type RequestMeta struct {
	RequestID        string    `json:"request_id,omitempty"`
	Route            string    `json:"route"`
	Mode             string    `json:"mode"`
	Model            string    `json:"model"`
	PromptChars      int       `json:"prompt_chars"`
	FileContentChars int       `json:"file_content_chars"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	DurationMs       int64     `json:"duration_ms"`
}

// OutcomeMeta captures what the relay produced.
type OutcomeMeta struct {
	HTTPStatus int    `json:"http_status"`
	ReplyBytes int    `json:"reply_bytes"`
	Fragments  int    `json:"fragments"`
	Records    int    `json:"records"`
	Dropped    int    `json:"dropped"`
	ErrorClass string `json:"error_class,omitempty"`
}

// NewChatCompletedEvent stamps a new event with a fresh ID and emit time.
func NewChatCompletedEvent(req RequestMeta, outcome OutcomeMeta) *ChatCompletedEvent {
	return &ChatCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeChatCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Request:       req,
		Outcome:       outcome,
	}
}
