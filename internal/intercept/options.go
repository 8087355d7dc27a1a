package intercept

import (
	"go.uber.org/zap"

	"github.com/ppiankov/sendtap/internal/metrics"
)

// DefaultFilter is the substring that identifies message-sending endpoints.
const DefaultFilter = "messages"

// Option configures an interceptor.
type Option func(*tapConfig)

type tapConfig struct {
	filter  string
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func newTapConfig(opts []Option) tapConfig {
	cfg := tapConfig{
		filter: DefaultFilter,
		logger: zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// WithFilter sets the target substring that selects calls for observation.
// An empty filter observes every call.
func WithFilter(substr string) Option {
	return func(c *tapConfig) { c.filter = substr }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *tapConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the counters updated by the interceptor.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *tapConfig) { c.metrics = m }
}
