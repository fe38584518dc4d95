package gemini

import "strings"

// ChatRequest is the inbound chat payload accepted by the relay routes.
type ChatRequest struct {
	Prompt      string `json:"prompt,omitempty"`
	FileContent string `json:"fileContent,omitempty"`
}

// HasContent reports whether at least one field carries non-whitespace text.
func (r ChatRequest) HasContent() bool {
	return strings.TrimSpace(r.Prompt) != "" || strings.TrimSpace(r.FileContent) != ""
}

// Part is a single piece of content. Only text parts are produced or read.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateContentRequest is the body of generateContent and
// streamGenerateContent calls.
type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

// NewGenerateContentRequest wraps text as a single user turn.
func NewGenerateContentRequest(text string) GenerateContentRequest {
	return GenerateContentRequest{
		Contents: []Content{
			{
				Role:  "user",
				Parts: []Part{{Text: text}},
			},
		},
	}
}

// Candidate is one generated alternative. Streamed records normally carry
// Content; Delta is accepted for streams that send incremental deltas.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	Delta        *Content `json:"delta,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// APIError is the error object returned in place of candidates.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GenerateContentResponse is a full generateContent reply and also the shape
// of every streamed record.
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
}

// Text returns candidates[0].content.parts[0].text, falling back to
// candidates[0].delta.parts[0].text. Either path may be absent.
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}

	c := r.Candidates[0]
	if t := firstPartText(c.Content); t != "" {
		return t
	}
	return firstPartText(c.Delta)
}

func firstPartText(c *Content) string {
	if c == nil || len(c.Parts) == 0 {
		return ""
	}
	return c.Parts[0].Text
}
