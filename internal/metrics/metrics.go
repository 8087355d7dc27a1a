// Package metrics holds the per-session Prometheus counters.
// All methods are safe on a nil *Metrics so callers need no guards.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sendtap"

// Metrics is one session's set of counters on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	observed       *prometheus.CounterVec
	passthrough    *prometheus.CounterVec
	tokensDecoded  prometheus.Counter
	decodeFailures prometheus.Counter
	patchFailures  *prometheus.CounterVec
}

// New creates the counters and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		observed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observed_calls_total",
			Help:      "Intercepted calls that matched the filter and were logged.",
		}, []string{"surface"}),
		passthrough: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passthrough_calls_total",
			Help:      "Intercepted calls that did not match the filter.",
		}, []string{"surface"}),
		tokensDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_decoded_total",
			Help:      "Authorization headers decoded into claims.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_decode_failures_total",
			Help:      "Authorization headers that were not decodable tokens.",
		}),
		patchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_failures_total",
			Help:      "Patch apply or revert failures by slot.",
		}, []string{"slot"}),
	}
	m.Registry.MustRegister(m.observed, m.passthrough, m.tokensDecoded, m.decodeFailures, m.patchFailures)
	return m
}

// Observed counts a logged call on surface.
func (m *Metrics) Observed(surface string) {
	if m == nil {
		return
	}
	m.observed.WithLabelValues(surface).Inc()
}

// Passthrough counts a call on surface that did not match the filter.
func (m *Metrics) Passthrough(surface string) {
	if m == nil {
		return
	}
	m.passthrough.WithLabelValues(surface).Inc()
}

// TokenDecoded counts a successful token decode.
func (m *Metrics) TokenDecoded() {
	if m == nil {
		return
	}
	m.tokensDecoded.Inc()
}

// DecodeFailed counts a failed token decode.
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

// PatchFailed counts a failed apply or revert on slot.
func (m *Metrics) PatchFailed(slot string) {
	if m == nil {
		return
	}
	m.patchFailures.WithLabelValues(slot).Inc()
}

// Summary flattens the registry into "name{label=value}" -> value.
func (m *Metrics) Summary() (map[string]float64, error) {
	out := map[string]float64{}
	if m == nil {
		return out, nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			if labels := metric.GetLabel(); len(labels) > 0 {
				parts := make([]string, len(labels))
				for i, l := range labels {
					parts[i] = l.GetName() + "=" + l.GetValue()
				}
				key += "{" + strings.Join(parts, ",") + "}"
			}
			out[key] = metric.GetCounter().GetValue()
		}
	}
	return out, nil
}
