package proxy

import (
	"expvar"
	"io"
	"net/http"
)

// metrics aggregates exchange outcomes as expvar counters. The map is owned
// by one Proxy and not published globally, so several servers can coexist
// in one process.
type metrics struct {
	vars *expvar.Map
}

func newMetrics() *metrics {
	return &metrics{vars: new(expvar.Map).Init()}
}

func (m *metrics) record(ex *exchange) {
	m.vars.Add("requests", 1)
	m.vars.Add("records", int64(ex.outcome.Records))
	m.vars.Add("fragments", int64(ex.outcome.Fragments))
	m.vars.Add("reply_bytes", int64(ex.outcome.ReplyBytes))
	m.vars.Add("dropped", int64(ex.outcome.Dropped))

	if ex.outcome.ErrorClass != "" {
		m.vars.Add("errors."+ex.outcome.ErrorClass, 1)
	}
}

// eventDropped counts a telemetry event the worker pool had no room for.
func (m *metrics) eventDropped() {
	m.vars.Add("events_dropped", 1)
}

// ServeHTTP writes the counters as a JSON object.
func (m *metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = io.WriteString(w, m.vars.String())
}
