// Package proxy provides the relay HTTP server that forwards chat prompts to
// the Gemini API and relays the reply back to the caller.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/gemini"
	"github.com/papercomputeco/relay/pkg/relay"
	"github.com/papercomputeco/relay/proxy/header"
	"github.com/papercomputeco/relay/proxy/worker"
)

// ChatRoutes are the POST routes that accept a chat request. They are aliases.
var ChatRoutes = []string{"/api/chat", "/api/gemini", "/api/analyze"}

// Issuer sends one chat request upstream. *gemini.Client implements it.
type Issuer interface {
	Generate(ctx context.Context, req gemini.ChatRequest) (string, error)
	Stream(ctx context.Context, req gemini.ChatRequest) (io.ReadCloser, error)
}

// Proxy is the relay HTTP server. Every chat request is validated, issued
// upstream exactly once and answered in the configured mode. A telemetry
// event is enqueued on the worker pool after each request.
type Proxy struct {
	config        Config
	issuer        Issuer
	relay         *relay.Relay
	workerPool    *worker.Pool
	metrics       *metrics
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Proxy.
// The publisher is injected to handle async delivery of telemetry events.
func New(config Config, issuer Issuer, publisher eventstream.Publisher, logger *slog.Logger) (*Proxy, error) {
	if issuer == nil {
		return nil, errors.New("issuer is required")
	}

	switch config.Mode {
	case "":
		config.Mode = ModeStream
	case ModeStream, ModeSingleShot:
	default:
		return nil, fmt.Errorf("unknown mode %q", config.Mode)
	}

	if config.AllowOrigins == "" {
		config.AllowOrigins = "*"
	}
	if config.IndexFile == "" {
		config.IndexFile = "index.html"
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		issuer:        issuer,
		relay:         relay.New(config.Relay, logger),
		workerPool:    wp,
		metrics:       newMetrics(),
		logger:        logger,
		headerHandler: header.NewHandler(),
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          p.handleError,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			p.logger.Error("panic in handler",
				"panic", e,
				"path", c.Path(),
			)
		},
	}))
	app.Use(requestid.New(requestid.Config{
		Header: header.RequestIDHeader,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: config.AllowOrigins,
		AllowMethods: "GET,POST,HEAD,OPTIONS",
	}))

	app.Get("/healthz", p.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(p.metrics))
	for _, route := range ChatRoutes {
		app.Post(route, p.handleChat)
	}

	if config.StaticDir != "" {
		app.Static("/", config.StaticDir, fiber.Static{
			Index: config.IndexFile,
		})
	}

	p.server = app

	return p, nil
}

// Run starts the relay server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		"listen", p.config.ListenAddr,
		"mode", p.config.Mode,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"mode", p.config.Mode,
	)

	return p.server.Listener(listener)
}

// Close stops the HTTP server and then waits for the worker pool to drain.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.workerPool.Close()
	return err
}

// App exposes the underlying fiber app, mainly for app.Test in tests.
func (p *Proxy) App() *fiber.App {
	return p.server
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok", Mode: p.config.Mode})
}

// handleChat serves every chat route. The response mode is fixed by config.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	ex := p.newExchange(c)

	req, err := parseChatRequest(c.Body())
	if err != nil {
		p.logger.Warn("invalid chat request body",
			"request_id", ex.meta.RequestID,
			"error", err,
		)
		return p.respondError(c, ex, fiber.StatusBadRequest, msgInvalidBody, classValidation)
	}
	ex.meta.PromptChars = len([]rune(req.Prompt))
	ex.meta.FileContentChars = len([]rune(req.FileContent))

	if p.config.Mode == ModeSingleShot {
		return p.handleSingleShot(c, ex, req)
	}

	return p.handleStream(c, ex, req)
}

// handleSingleShot waits for the whole reply and returns it as JSON.
func (p *Proxy) handleSingleShot(c *fiber.Ctx, ex *exchange, req gemini.ChatRequest) error {
	reply, err := p.issuer.Generate(c.Context(), req)
	if err != nil {
		return p.respondIssuerError(c, ex, err)
	}

	p.logger.Debug("single-shot reply complete",
		"request_id", ex.meta.RequestID,
		"reply_bytes", len(reply),
		"duration", time.Since(ex.meta.StartedAt),
	)

	ex.outcome.ReplyBytes = len(reply)
	ex.outcome.HTTPStatus = fiber.StatusOK
	p.enqueue(ex)

	return c.JSON(ChatResponse{Reply: reply})
}

// handleStream opens the upstream stream and relays it as a chunked plain
// text body. Validation and upstream errors that happen before the first
// byte are answered with a JSON error like single-shot mode.
func (p *Proxy) handleStream(c *fiber.Ctx, ex *exchange, req gemini.ChatRequest) error {
	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the relay runs
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open. The cancel func ends the upstream request once the relay
	// stops for any reason.
	ctx, cancel := context.WithCancel(context.Background())

	body, err := p.issuer.Stream(ctx, req)
	if err != nil {
		cancel()
		return p.respondIssuerError(c, ex, err)
	}

	p.headerHandler.SetClientStreamHeaders(c)
	c.Status(fiber.StatusOK)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// With io.Pipe, pw.Write blocks until the reader consumes the data, and
	// the reader is fasthttp's writeBodyChunked which flushes to TCP after
	// every chunk. This gives direct backpressure and true per-fragment
	// streaming. When the client goes away fasthttp closes the pipe reader,
	// the next relay write fails and the relay stops.
	pr, pw := io.Pipe()
	go p.pumpToPipeWriter(ctx, cancel, body, pw, ex)

	// Set the pipe reader as the body stream with unknown size (-1),
	// which triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (p *Proxy) pumpToPipeWriter(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, pw *io.PipeWriter, ex *exchange) {
	// Close the upstream response body and cancel the upstream request once
	// relaying is complete.
	defer cancel()
	defer body.Close()
	defer pw.Close()

	stats, err := p.relay.Pump(ctx, body, pw)

	ex.outcome.HTTPStatus = fiber.StatusOK
	ex.outcome.ReplyBytes = stats.Bytes
	ex.outcome.Fragments = stats.Fragments
	ex.outcome.Records = stats.Records
	ex.outcome.Dropped = stats.Dropped

	switch {
	case err == nil:
		p.logger.Debug("stream complete",
			"request_id", ex.meta.RequestID,
			"records", stats.Records,
			"fragments", stats.Fragments,
			"bytes", stats.Bytes,
			"dropped", stats.Dropped,
			"duration", time.Since(ex.meta.StartedAt),
		)
	case errors.Is(err, relay.ErrDownstreamWrite):
		ex.outcome.ErrorClass = classClientGone
		p.logger.Info("client disconnected mid-stream",
			"request_id", ex.meta.RequestID,
			"bytes", stats.Bytes,
		)
	default:
		ex.outcome.ErrorClass = classTransport
		p.logger.Error("stream relay failed",
			"request_id", ex.meta.RequestID,
			"error", err,
			"bytes", stats.Bytes,
		)
	}

	p.enqueue(ex)
}

// parseChatRequest decodes the request body. An empty body is an empty
// request, which later fails validation with "Prompt required".
func parseChatRequest(body []byte) (gemini.ChatRequest, error) {
	var req gemini.ChatRequest
	if len(body) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, err
	}

	return req, nil
}
