// Package session composes the interceptors, the log store and the patch
// registry into one start/stop unit. Sessions are independent: nothing is
// shared between two of them.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ppiankov/sendtap/internal/config"
	"github.com/ppiankov/sendtap/internal/host"
	"github.com/ppiankov/sendtap/internal/intercept"
	"github.com/ppiankov/sendtap/internal/logstore"
	"github.com/ppiankov/sendtap/internal/metrics"
	"github.com/ppiankov/sendtap/internal/patch"
)

var (
	ErrStarted = errors.New("session already started")
	ErrStopped = errors.New("session stopped")
)

// Session owns one log store and one patch registry.
type Session struct {
	id      string
	logger  *zap.SugaredLogger
	store   *logstore.Store
	reg     *patch.Registry
	metrics *metrics.Metrics
	network *intercept.Network
	send    *intercept.SendMessage

	mu      sync.Mutex
	started bool
	stopped bool
	caps    host.Capabilities
	missing []error
}

// Option configures a Session.
type Option func(*options)

type options struct {
	id     string
	logger *zap.SugaredLogger
	sink   func(id string) logstore.Sink
	clock  func() time.Time
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithSink forwards every entry to the sink built for the session ID.
func WithSink(fn func(sessionID string) logstore.Sink) Option {
	return func(o *options) { o.sink = fn }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New creates a session from cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	o := options{logger: zap.NewNop().Sugar()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	logger := o.logger.With("session", o.id)

	var storeOpts []logstore.Option
	if o.sink != nil {
		storeOpts = append(storeOpts, logstore.WithSink(o.sink(o.id), func(err error) {
			logger.Warnw("log sink failed", "error", err)
		}))
	}
	if o.clock != nil {
		storeOpts = append(storeOpts, logstore.WithClock(o.clock))
	}

	m := metrics.New()
	store := logstore.New(cfg.LogCapacity, storeOpts...)
	tapOpts := []intercept.Option{
		intercept.WithFilter(cfg.Filter),
		intercept.WithLogger(logger),
		intercept.WithMetrics(m),
	}
	return &Session{
		id:      o.id,
		logger:  logger,
		store:   store,
		reg:     patch.NewRegistry(),
		metrics: m,
		network: intercept.NewNetwork(store, tapOpts...),
		send:    intercept.NewSendMessage(store, tapOpts...),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Metrics returns the session's counters.
func (s *Session) Metrics() *metrics.Metrics { return s.metrics }

// Start installs the interceptors on the capabilities present in caps.
// Missing capabilities are logged and skipped; they never fail Start.
func (s *Session) Start(caps host.Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrStarted
	}
	s.started = true
	s.caps = caps

	presence := caps.Presence()
	names := lo.Keys(presence)
	sort.Strings(names)
	for _, name := range names {
		s.logger.Infow("host module", "module", name, "present", presence[name])
	}

	if caps.Network == nil {
		s.missing = append(s.missing, fmt.Errorf("%w: NetworkLayer", patch.ErrTargetUnavailable))
	} else if err := s.network.Install(s.reg, caps.Network); err != nil {
		s.missing = append(s.missing, err)
	}
	if caps.Messages == nil {
		s.missing = append(s.missing, fmt.Errorf("%w: MessageSender", patch.ErrTargetUnavailable))
	} else if err := s.send.Install(s.reg, caps.Messages); err != nil {
		s.missing = append(s.missing, err)
	}
	for _, err := range s.missing {
		s.logger.Warnw("interception degraded", "error", err)
	}

	s.store.Append(logstore.TagSession, fmt.Sprintf("Started id=%s, patches=%s", s.id, strings.Join(s.reg.Names(), ",")))
	s.logger.Infow("session started", "patches", s.reg.Len(), "filter", s.network.Filter())
	return nil
}

// Stop reverts every patch. It is safe before Start, after a degraded
// Start, and when called more than once. Revert failures are logged and
// returned joined; the remaining patches are still reverted.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	n := s.reg.Len()
	err := s.reg.RevertAll()
	if err != nil {
		s.metrics.PatchFailed("revert")
		s.logger.Errorw("revert failed", "error", err)
	}
	if s.started {
		s.store.Append(logstore.TagSession, fmt.Sprintf("Stopped id=%s, reverted=%d", s.id, n))
	}
	s.logger.Infow("session stopped", "reverted", n)
	return err
}

// Degraded returns the capability errors recorded at Start.
func (s *Session) Degraded() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.missing...)
}

// Capabilities returns what Start was given.
func (s *Session) Capabilities() host.Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Snapshot returns a copy of the log.
func (s *Session) Snapshot() []logstore.Entry { return s.store.Snapshot() }

// Clear empties the log.
func (s *Session) Clear() { s.store.Clear() }

// SetFilter changes the target substring of the network interceptor.
func (s *Session) SetFilter(substr string) { s.network.SetFilter(substr) }

// SetCapacity changes the log retention limit.
func (s *Session) SetCapacity(capacity int) { s.store.SetCapacity(capacity) }

// Interceptions counts the retained entries produced by interception.
func (s *Session) Interceptions() int {
	return lo.CountBy(s.store.Snapshot(), func(e logstore.Entry) bool {
		return e.Tag != logstore.TagSession
	})
}

// Status is a one-line summary of the session.
func (s *Session) Status() string {
	s.mu.Lock()
	state := "idle"
	switch {
	case s.stopped:
		state = "stopped"
	case s.started:
		state = "running"
	}
	patches := s.reg.Len()
	s.mu.Unlock()

	return fmt.Sprintf("session %s %s | captured interceptions: %d | patches: %d | filter: %q",
		shortID(s.id), state, s.Interceptions(), patches, s.network.Filter())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
