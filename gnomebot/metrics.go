package gnomebot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"strconv"
)

const metricsNamespace = "gnomebot"

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeRejected = "rejected"
)

// Metrics holds the bot's prometheus collectors. Each bot gets its own
// registry, served on the HTTP server's /metrics route.
//
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	// Labels: role, command, outcome (ok|error|rejected)
	PrefixDispatches *prometheus.CounterVec

	// Labels: command, outcome (ok|error)
	SlashDispatches *prometheus.CounterVec

	// Labels: verdict (animal|not_animal), step
	ClassifierVerdicts *prometheus.CounterVec

	// Labels: outcome (correct|mixed|valid|none)
	MascotOutcomes *prometheus.CounterVec

	// Labels: endpoint (search|summary), outcome (hit|miss|error)
	WikipediaLookups *prometheus.CounterVec

	// Labels: outcome (ok|error)
	DevlogSends *prometheus.CounterVec

	// Labels: method, route, status
	HTTPRequests *prometheus.CounterVec

	GatewayConnected prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PrefixDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "prefix_commands_total",
				Help:      "Prefix command dispatches by role, command and outcome",
			},
			[]string{"role", "command", "outcome"},
		),
		SlashDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "slash_commands_total",
				Help:      "Slash command dispatches by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		ClassifierVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "classifier_verdicts_total",
				Help:      "Animal classifier results by verdict and deciding step",
			},
			[]string{"verdict", "step"},
		),
		MascotOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "mascot_guesses_total",
				Help:      "Mascot game guesses by outcome",
			},
			[]string{"outcome"},
		),
		WikipediaLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "wikipedia_lookups_total",
				Help:      "Wikipedia requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		DevlogSends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "devlog_sends_total",
				Help:      "Developer log webhook posts by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "HTTP server requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		GatewayConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "gateway_connected",
				Help:      "1 while the discord gateway connection is up",
			},
		),
	}
}

func (m *Metrics) prefixDispatch(role Role, command string, outcome string) {
	if m == nil {
		return
	}
	m.PrefixDispatches.WithLabelValues(role.String(), command, outcome).Inc()
}

func (m *Metrics) slashDispatch(command string, outcome string) {
	if m == nil {
		return
	}
	m.SlashDispatches.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) classifierVerdict(result ClassificationResult) {
	if m == nil {
		return
	}
	verdict := "not_animal"
	if result.IsAnimal {
		verdict = "animal"
	}
	m.ClassifierVerdicts.WithLabelValues(verdict, string(result.Step)).Inc()
}

func (m *Metrics) mascotOutcome(outcome string) {
	if m == nil {
		return
	}
	m.MascotOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) wikipediaLookup(endpoint string, outcome string) {
	if m == nil {
		return
	}
	m.WikipediaLookups.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) devlogSend(err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.DevlogSends.WithLabelValues(outcome).Inc()
}

func (m *Metrics) httpRequest(method string, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) gatewayConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.GatewayConnected.Set(1)
	} else {
		m.GatewayConnected.Set(0)
	}
}
