// Package metrics exports scenario transitions and outcomes as Prometheus
// metrics.
package metrics

import (
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	inversion "github.com/seoyhaein/inversion-go"
)

const namespace = "inversion"

// Collector is an inversion.EventSink and inversion.RunObserver that feeds
// a Prometheus registry.
type Collector struct {
	reg *prometheus.Registry

	transitions *prometheus.CounterVec
	highWait    prometheus.Histogram
	runs        *prometheus.CounterVec
	elapsed     *prometheus.HistogramVec

	mu      sync.Mutex
	blocked map[string]time.Time
}

// New registers the collector's metrics on reg, or on a fresh registry when
// reg is nil.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		reg: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Actor state transitions by role and target state.",
		}, []string{"role", "state"}),
		highWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "high_blocked_seconds",
			Help:      "Time the High actor spent blocked on the resource before holding it.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished scenario runs by policy and outcome.",
		}, []string{"policy", "outcome", "exit"}),
		elapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "high_acquire_seconds",
			Help:      "Time from scenario start until High held the resource.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"policy"}),
		blocked: make(map[string]time.Time),
	}
	reg.MustRegister(c.transitions, c.highWait, c.runs, c.elapsed)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

func (c *Collector) Emit(ev inversion.Event) {
	c.transitions.WithLabelValues(ev.Role.String(), ev.To.String()).Inc()
	if ev.Role != inversion.RoleHigh {
		return
	}
	key := ev.RunID + "/" + ev.ActorID
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.To {
	case inversion.StateBlocked:
		c.blocked[key] = ev.At
	case inversion.StateHolding:
		if since, ok := c.blocked[key]; ok {
			c.highWait.Observe(ev.At.Sub(since).Seconds())
			delete(c.blocked, key)
		}
	case inversion.StateTerminated, inversion.StateDone:
		delete(c.blocked, key)
	}
}

func (c *Collector) RunFinished(res *inversion.Result) {
	outcome := "starved"
	if res.Acquired {
		outcome = "acquired"
		c.elapsed.WithLabelValues(res.Policy.String()).Observe(res.Elapsed.Seconds())
	}
	c.runs.WithLabelValues(res.Policy.String(), outcome, string(res.ExitMode)).Inc()
}

// WriteText writes every gathered metric family in the text exposition
// format.
func (c *Collector) WriteText(w io.Writer) error {
	mfs, err := c.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
