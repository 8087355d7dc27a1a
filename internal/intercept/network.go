// Package intercept observes the host's outbound network primitives and its
// send function. Wrappers are pure pass-throughs: they log, then delegate,
// and return exactly what the wrapped function returned.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ppiankov/sendtap/internal/host"
	"github.com/ppiankov/sendtap/internal/logstore"
	"github.com/ppiankov/sendtap/internal/metrics"
	"github.com/ppiankov/sendtap/internal/patch"
	"github.com/ppiankov/sendtap/internal/redact"
	"github.com/ppiankov/sendtap/internal/token"
)

// Call is one observed outbound call.
type Call struct {
	Surface string // logstore.TagXHR or logstore.TagFetch
	Method  string
	Target  string
	Header  map[string]string // names lowercased
	Body    Body
}

// Network wraps the two request primitives of a host network layer.
type Network struct {
	store   *logstore.Store
	filter  atomic.Pointer[string]
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewNetwork creates a network interceptor appending to store.
func NewNetwork(store *logstore.Store, opts ...Option) *Network {
	cfg := newTapConfig(opts)
	n := &Network{
		store:   store,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
	n.SetFilter(cfg.filter)
	return n
}

// SetFilter replaces the target substring. Safe while wrappers are live.
func (n *Network) SetFilter(substr string) {
	n.filter.Store(&substr)
}

// Filter returns the current target substring.
func (n *Network) Filter() string {
	return *n.filter.Load()
}

// Matches reports whether target is selected for observation.
func (n *Network) Matches(target string) bool {
	return strings.Contains(target, n.Filter())
}

// Install patches the fetch and request-factory slots of layer. Either
// surface may be missing; the other is still installed. The returned error
// joins the failures.
func (n *Network) Install(reg *patch.Registry, layer host.NetworkLayer) error {
	if layer == nil {
		return fmt.Errorf("%w: network layer", patch.ErrTargetUnavailable)
	}

	var errs []error
	if _, err := patch.Apply(reg, layer.RequestSlot(), n.WrapRequestFactory); err != nil {
		n.metrics.PatchFailed("request")
		errs = append(errs, err)
	}
	if _, err := patch.Apply(reg, layer.FetchSlot(), n.WrapFetch); err != nil {
		n.metrics.PatchFailed("fetch")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// WrapFetch returns a fetch primitive that logs matching calls before
// delegating to next.
func (n *Network) WrapFetch(next host.FetchFunc) host.FetchFunc {
	return func(ctx context.Context, target string, opts *host.FetchOptions) (*http.Response, error) {
		if !n.Matches(target) {
			n.metrics.Passthrough(logstore.TagFetch)
			return next(ctx, target, opts)
		}

		call := Call{Surface: logstore.TagFetch, Method: http.MethodGet, Target: target}
		if opts != nil {
			if opts.Method != "" {
				call.Method = opts.Method
			}
			call.Header = lowerHeaders(opts.Header)
			call.Body = ParseBody(opts.Body)
		}
		n.observe(call)

		return next(ctx, target, opts)
	}
}

// WrapRequestFactory returns a factory whose request objects log matching
// sends. Interception state lives on each request object.
func (n *Network) WrapRequestFactory(next host.RequestFactory) host.RequestFactory {
	return func() host.Request {
		return &tappedRequest{net: n, next: next()}
	}
}

type tappedRequest struct {
	net    *Network
	next   host.Request
	method string
	target string
	match  bool
	header map[string]string
}

func (r *tappedRequest) Open(method, target string) error {
	r.method = method
	r.target = target
	r.match = r.net.Matches(target)
	r.header = nil
	return r.next.Open(method, target)
}

func (r *tappedRequest) SetHeader(name, value string) {
	if r.match {
		if r.header == nil {
			r.header = map[string]string{}
		}
		r.header[strings.ToLower(name)] = value
	}
	r.next.SetHeader(name, value)
}

func (r *tappedRequest) Send(ctx context.Context, body []byte) (*http.Response, error) {
	if !r.match {
		r.net.metrics.Passthrough(logstore.TagXHR)
		return r.next.Send(ctx, body)
	}

	header := make(map[string]string, len(r.header))
	for k, v := range r.header {
		header[k] = v
	}
	r.net.observe(Call{
		Surface: logstore.TagXHR,
		Method:  r.method,
		Target:  r.target,
		Header:  header,
		Body:    ParseBody(body),
	})
	return r.next.Send(ctx, body)
}

// observe appends the network entry and, when an authorization header
// decodes, the claims entry.
func (n *Network) observe(call Call) {
	n.metrics.Observed(call.Surface)
	n.store.Append(call.Surface, fmt.Sprintf("%s %s | Body: %s", call.Method, call.Target, call.Body.Summary()))

	n.logger.Debugw("outbound call intercepted",
		"surface", call.Surface,
		"method", call.Method,
		"url", call.Target,
		"headers", redact.Headers(call.Header),
		"body_kind", call.Body.Kind,
	)

	auth, ok := call.Header["authorization"]
	if !ok {
		return
	}
	claims, err := token.Decode(auth)
	if err != nil {
		n.metrics.DecodeFailed()
		n.logger.Debugw("authorization header not decodable", "url", call.Target, "error", err)
		return
	}
	n.metrics.TokenDecoded()

	subject, ok := claims.Subject()
	if !ok {
		subject = "unknown"
	}
	text := "UserID=" + subject
	if exp, ok := claims.Expiry(); ok {
		text += ", Exp=" + exp
	}
	n.store.Append(logstore.TagJWT, text)
	n.logger.Infow("token decoded", "subject", subject, "url", call.Target)
}

func lowerHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if len(vv) == 0 {
			continue
		}
		out[strings.ToLower(k)] = strings.Join(vv, ", ")
	}
	return out
}
