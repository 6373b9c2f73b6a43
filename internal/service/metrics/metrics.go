package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты операций в метках.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultEmpty = "empty"
)

// Metrics — счётчики бота. Регистрируются в собственном реестре, чтобы тесты не мешали друг другу.
type Metrics struct {
	Registry *prometheus.Registry

	classifications *prometheus.CounterVec
	completions     *prometheus.CounterVec
	trendDraws      *prometheus.CounterVec
	sessions        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rahimbot",
			Name:      "dialect_classifications_total",
			Help:      "Dialect classifier calls by result.",
		}, []string{"result"}),
		completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rahimbot",
			Name:      "completions_total",
			Help:      "Chat completion calls by result.",
		}, []string{"result"}),
		trendDraws: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rahimbot",
			Name:      "trend_draws_total",
			Help:      "Trend draws by category and result.",
		}, []string{"category", "result"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "rahimbot",
			Name:      "sessions",
			Help:      "Conversations held in the session cache.",
		}),
	}
}

// ObserveClassification подходит как session.Options.OnClassify.
func (m *Metrics) ObserveClassification(err error) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveCompletion(err error) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveTrendDraw(category string, found bool, err error) {
	if m == nil {
		return
	}
	res := result(err)
	if err == nil && !found {
		res = ResultEmpty
	}
	m.trendDraws.WithLabelValues(category, res).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
