package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpungsan/thingbot/internal/errors"
)

// Event kinds.
const (
	KindCommand = "command"
	KindMessage = "message"
)

// Event outcomes.
const (
	OutcomeUploaded = "uploaded"
	OutcomeEmpty    = "empty"   // nothing to render
	OutcomeIgnored  = "ignored" // no files, or posted by a bot
	OutcomeInvalid  = "invalid" // empty or unknown thing id
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped" // queue full
)

// Metrics holds the bot's prometheus collectors.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	events         *prometheus.CounterVec
	renders        *prometheus.CounterVec
	renderDuration prometheus.Histogram
	uploads        *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thingbot_events_total",
			Help: "Handled Slack events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thingbot_renders_total",
			Help: "OpenSCAD renders by result.",
		}, []string{"result"}),
		renderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "thingbot_render_duration_seconds",
			Help:    "Duration of OpenSCAD renders in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thingbot_uploads_total",
			Help: "Preview uploads to Slack by result.",
		}, []string{"result"}),
	}
}

// ObserveEvent counts one handled event.
func (m *Metrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
}

// ObserveRender records one render attempt.
func (m *Metrics) ObserveRender(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.renderDuration.Observe(d.Seconds())
	}
}

// ObserveUpload records one upload attempt.
func (m *Metrics) ObserveUpload(err error) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result(err)).Inc()
}

// OutcomeFor maps a handler error to an event outcome.
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeUploaded
	case errors.Is(err, errors.ErrInvalidThing):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

// Handler serves the collectors registered with g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
