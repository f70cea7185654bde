package transaction

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts unit-of-work activity. A nil *Metrics records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	commands  *prometheus.CounterVec
	rollbacks prometheus.Counter
	retries   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "unit_of_work_runs_total",
			Help:      "Unit-of-work attempts by outcome.",
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "commands_executed_total",
			Help:      "Commands executed by kind.",
		}, []string{"kind"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "rollbacks_total",
			Help:      "Attempts rolled back after a failure.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "retries_total",
			Help:      "Result retries.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.commands, m.rollbacks, m.retries)
	}
	return m
}

func (m *Metrics) run(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) command(kind string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind).Inc()
}

func (m *Metrics) rollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
