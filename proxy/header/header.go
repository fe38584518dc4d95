// Package header sets the response headers of the relay server.
//
// The relay sits between a browser or CLI client and the Gemini API:
//
//	Client <--> Relay <--> Gemini API
//
// Nothing from the client request is forwarded upstream; the upstream leg is
// built by pkg/gemini. This package only shapes what goes back to the client.
package header

import (
	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the per-request ID on every response.
const RequestIDHeader = fiber.HeaderXRequestID

// StreamContentType is the content type of streamed chat replies.
const StreamContentType = "text/plain; charset=utf-8"

// Handler manages headers on client responses.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// streamHeaders are set on every streamed chat response.
var streamHeaders = map[string]string{
	fiber.HeaderContentType: StreamContentType,

	// Intermediaries must not cache or buffer a reply that is still being written.
	fiber.HeaderCacheControl: "no-cache",
	"X-Accel-Buffering":      "no",

	// Browsers must not sniff the plain text body into something executable.
	fiber.HeaderXContentTypeOptions: "nosniff",
}

// SetClientStreamHeaders prepares the response for a chunked plain text body.
func (h *Handler) SetClientStreamHeaders(c *fiber.Ctx) {
	for k, v := range streamHeaders {
		c.Set(k, v)
	}
}

// RequestID returns the request ID assigned to the response, if any.
func (h *Handler) RequestID(c *fiber.Ctx) string {
	return c.GetRespHeader(RequestIDHeader)
}
