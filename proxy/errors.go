package proxy

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/relay/pkg/gemini"
)

// Caller-facing error messages. Details stay in the logs.
const (
	msgInvalidBody       = "Invalid request body"
	msgPromptRequired    = "Prompt required"
	msgMissingCredential = "Missing GEMINI_API_KEY"
	msgUpstream          = "Gemini API error"
	msgCrashed           = "Server crashed"
)

// Error classes reported in telemetry.
const (
	classValidation    = "validation"
	classConfiguration = "configuration"
	classUpstream      = "upstream"
	classTransport     = "transport"
	classClientGone    = "client_gone"
	classPanic         = "panic"
)

// respondIssuerError maps an Issuer error onto the caller-facing taxonomy.
func (p *Proxy) respondIssuerError(c *fiber.Ctx, ex *exchange, err error) error {
	var upErr *gemini.UpstreamError

	switch {
	case errors.Is(err, gemini.ErrEmptyRequest):
		return p.respondError(c, ex, fiber.StatusBadRequest, msgPromptRequired, classValidation)

	case errors.Is(err, gemini.ErrMissingCredential):
		p.logger.Error("upstream API key is not configured",
			"request_id", ex.meta.RequestID,
		)
		return p.respondError(c, ex, fiber.StatusInternalServerError, msgMissingCredential, classConfiguration)

	case errors.As(err, &upErr):
		p.logger.Error("upstream returned error",
			"request_id", ex.meta.RequestID,
			"status", upErr.StatusCode,
			"body", upErr.Body,
		)
		return p.respondError(c, ex, fiber.StatusInternalServerError, msgUpstream, classUpstream)

	default:
		p.logger.Error("upstream request failed",
			"request_id", ex.meta.RequestID,
			"error", err,
		)
		return p.respondError(c, ex, fiber.StatusInternalServerError, msgCrashed, classTransport)
	}
}

func (p *Proxy) respondError(c *fiber.Ctx, ex *exchange, status int, msg, class string) error {
	ex.outcome.HTTPStatus = status
	ex.outcome.ErrorClass = class
	p.enqueue(ex)

	return c.Status(status).JSON(ErrorResponse{Error: msg})
}

// handleError is the fiber error handler. Routing errors keep their status;
// everything else, including recovered panics, is reported as a crash.
func (p *Proxy) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
	}

	p.logger.Error("unhandled server error",
		"request_id", p.headerHandler.RequestID(c),
		"path", c.Path(),
		"error", err,
	)

	if isChatRoute(c.Path()) {
		ex := p.newExchange(c)
		ex.outcome.HTTPStatus = fiber.StatusInternalServerError
		ex.outcome.ErrorClass = classPanic
		p.enqueue(ex)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: msgCrashed})
}

func isChatRoute(path string) bool {
	for _, r := range ChatRoutes {
		if r == path {
			return true
		}
	}
	return false
}
