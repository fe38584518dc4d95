package proxy

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/proxy/worker"
)

// exchange accumulates telemetry for one chat request.
type exchange struct {
	meta    eventstream.RequestMeta
	outcome eventstream.OutcomeMeta
}

// newExchange copies what it needs out of c; fasthttp reuses those buffers
// once the handler returns, while a stream outlives it.
func (p *Proxy) newExchange(c *fiber.Ctx) *exchange {
	return &exchange{
		meta: eventstream.RequestMeta{
			RequestID: strings.Clone(p.headerHandler.RequestID(c)),
			Route:     strings.Clone(c.Path()),
			Mode:      p.config.Mode,
			Model:     p.config.Model,
			StartedAt: time.Now(),
		},
	}
}

// enqueue stamps completion time, updates the counters and hands the event
// to the worker pool.
func (p *Proxy) enqueue(ex *exchange) {
	ex.meta.CompletedAt = time.Now()
	ex.meta.DurationMs = ex.meta.CompletedAt.Sub(ex.meta.StartedAt).Milliseconds()
	p.metrics.record(ex)

	queued := p.workerPool.Enqueue(worker.Job{
		Event: eventstream.NewChatCompletedEvent(ex.meta, ex.outcome),
	})
	if !queued {
		p.metrics.eventDropped()
	}
}
