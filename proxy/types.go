package proxy

// ChatResponse is the single-shot success body.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}
