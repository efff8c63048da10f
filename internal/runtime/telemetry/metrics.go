// Package telemetry records dispatch metrics with Prometheus and traces
// dispatches with OpenTelemetry.
package telemetry

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "asyncflow"

// DispatchMetrics tracks publish and subscribe dispatches.
type DispatchMetrics struct {
	mu sync.RWMutex

	operations map[string]*OperationMetrics

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// OperationMetrics holds the counters of a single operation.
type OperationMetrics struct {
	Published      uint64    `json:"published"`
	Subscribed     uint64    `json:"subscribed"`
	Failed         uint64    `json:"failed"`
	LastProtocol   string    `json:"last_protocol,omitempty"`
	LastDispatchAt time.Time `json:"last_dispatch_at"`
}

// Snapshot is a point-in-time copy of the dispatch counters.
type Snapshot struct {
	TotalDispatched uint64                       `json:"total_dispatched"`
	TotalFailed     uint64                       `json:"total_failed"`
	Operations      map[string]*OperationMetrics `json:"operations"`
	CollectedAt     time.Time                    `json:"collected_at"`
}

// NewDispatchMetrics creates the collectors. An empty namespace uses
// DefaultNamespace and a nil registerer the Prometheus default registerer.
func NewDispatchMetrics(registerer prometheus.Registerer, namespace string) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &DispatchMetrics{
		operations: make(map[string]*OperationMetrics),
		registerer: registerer,
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of publish and subscribe dispatches handed to protocol handlers",
			},
			[]string{"verb", "protocol", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent resolving and dispatching an operation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"verb", "protocol"},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *DispatchMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.dispatchTotal, m.dispatchDuration} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

// RecordDispatch records one finished dispatch.
func (m *DispatchMetrics) RecordDispatch(verb, operationID, protocol string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := m.operations[operationID]
	if op == nil {
		op = &OperationMetrics{}
		m.operations[operationID] = op
	}
	outcome := OutcomeSuccess
	switch {
	case err != nil:
		op.Failed++
		outcome = OutcomeError
	case verb == "subscribe":
		op.Subscribed++
	default:
		op.Published++
	}
	op.LastProtocol = protocol
	op.LastDispatchAt = time.Now()

	m.dispatchTotal.WithLabelValues(verb, protocol, outcome).Inc()
	m.dispatchDuration.WithLabelValues(verb, protocol).Observe(duration.Seconds())
}

// Operation returns a copy of the counters of one operation, or nil.
func (m *DispatchMetrics) Operation(operationID string) *OperationMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op := m.operations[operationID]
	if op == nil {
		return nil
	}
	cp := *op
	return &cp
}

// Snapshot returns a copy of all counters.
func (m *DispatchMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Operations:  make(map[string]*OperationMetrics, len(m.operations)),
		CollectedAt: time.Now(),
	}
	for id, op := range m.operations {
		cp := *op
		snap.Operations[id] = &cp
		snap.TotalDispatched += op.Published + op.Subscribed
		snap.TotalFailed += op.Failed
	}
	return snap
}
