// Package metrics exposes Prometheus counters for arbitration operations,
// escrow movements and outbox delivery.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"disputeflow/arbitration"
	"disputeflow/escrow"
	"disputeflow/notify"
)

const namespace = "disputeflow"

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// PendingCounter reports the outbox backlog.
type PendingCounter interface {
	Pending(ctx context.Context) (int, error)
}

// Recorder implements escrow.Observer and notify.DeliveryObserver.
type Recorder struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	escrowMoves   *prometheus.CounterVec
	escrowAmount  *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	pendingSource PendingCounter
}

// NewRecorder registers the arbitration metrics on registry. A nil registry
// gets a fresh one.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	r := &Recorder{registry: registry}
	r.operations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "arbitration operations by name and outcome",
	}, []string{"operation", "outcome"})
	r.escrowMoves = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escrow_movements_total",
		Help:      "committed escrow collections and releases",
	}, []string{"direction"})
	r.escrowAmount = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escrow_amount_total",
		Help:      "sum of committed escrow movement amounts",
	}, []string{"direction"})
	r.deliveries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_deliveries_total",
		Help:      "outbox publish attempts by topic and outcome",
	}, []string{"topic", "outcome"})
	return r
}

// TrackOutbox registers a gauge that reads the outbox backlog on scrape.
func (r *Recorder) TrackOutbox(src PendingCounter) {
	if src == nil || r.pendingSource != nil {
		return
	}
	r.pendingSource = src
	promauto.With(r.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbox_pending",
		Help:      "notifications awaiting delivery",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := src.Pending(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	})
}

// Observe counts one operation. Domain failures are labelled with their
// error kind.
func (r *Recorder) Observe(operation string, err error) {
	r.operations.WithLabelValues(operation, outcomeOf(err)).Inc()
}

func (r *Recorder) EscrowMoved(m escrow.Movement) {
	dir := string(m.Direction)
	r.escrowMoves.WithLabelValues(dir).Inc()
	r.escrowAmount.WithLabelValues(dir).Add(m.Amount.Float64())
}

func (r *Recorder) OutboxDelivered(topic string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.deliveries.WithLabelValues(topic, outcome).Inc()
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if kind, ok := arbitration.KindOf(err); ok {
		return string(kind)
	}
	return OutcomeError
}

var (
	_ escrow.Observer         = (*Recorder)(nil)
	_ notify.DeliveryObserver = (*Recorder)(nil)
)
