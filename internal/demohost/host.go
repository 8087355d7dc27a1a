// Package demohost is a small in-process chat client used to exercise
// interception end to end. Its send path goes through the same patchable
// slots a real host exposes.
package demohost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ppiankov/sendtap/internal/host"
	"github.com/ppiankov/sendtap/internal/patch"
)

// ErrStatus is returned for non-2xx API responses.
var ErrStatus = errors.New("unexpected status")

// Host is the demo application. Its capabilities are exposed as separate
// modules through Modules.
type Host struct {
	baseURL string
	token   string
	client  *http.Client
	storage host.KVStore

	fetch   *patch.Var[host.FetchFunc]
	request *patch.Var[host.RequestFactory]
	send    *patch.Var[host.SendMessageFunc]
	edit    *patch.Var[host.EditMessageFunc]

	mu           sync.Mutex
	interceptors []func(host.Event) bool
	events       []host.Event
}

// Option configures a Host.
type Option func(*Host)

// WithClient sets the HTTP client. Defaults to http.DefaultClient.
func WithClient(c *http.Client) Option {
	return func(h *Host) { h.client = c }
}

// WithToken sets the Authorization header value sent with every request.
func WithToken(token string) Option {
	return func(h *Host) { h.token = token }
}

// WithStorage adds a key-value module.
func WithStorage(kv host.KVStore) Option {
	return func(h *Host) { h.storage = kv }
}

// New creates a host talking to baseURL.
func New(baseURL string, opts ...Option) *Host {
	h := &Host{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
	}
	for _, o := range opts {
		o(h)
	}
	h.fetch = patch.NewVar[host.FetchFunc]("fetch", h.doFetch)
	h.request = patch.NewVar[host.RequestFactory]("request", h.newRequest)
	h.send = patch.NewVar[host.SendMessageFunc]("sendMessage", h.sendMessage)
	h.edit = patch.NewVar[host.EditMessageFunc]("editMessage", h.editMessage)
	return h
}

// Modules returns the host's module table.
func (h *Host) Modules() []any {
	mods := []any{
		settingsModule{},
		messagesModule{h},
		dispatcherModule{h},
		networkModule{h},
	}
	if h.storage != nil {
		mods = append(mods, h.storage)
	}
	return mods
}

// Detach makes every slot unavailable, as when the host unloads.
func (h *Host) Detach() {
	h.fetch.Detach()
	h.request.Detach()
	h.send.Detach()
	h.edit.Detach()
}

// SendMessage calls whatever currently occupies the send slot.
func (h *Host) SendMessage(ctx context.Context, channelID string, msg *host.Message, opts *host.SendOptions) (*host.SendResult, error) {
	fn, ok := h.send.Load()
	if !ok {
		return nil, fmt.Errorf("%w: sendMessage", patch.ErrTargetUnavailable)
	}
	return fn(ctx, channelID, msg, opts)
}

// EditMessage calls whatever currently occupies the edit slot.
func (h *Host) EditMessage(ctx context.Context, channelID, messageID string, msg *host.Message) (*host.SendResult, error) {
	fn, ok := h.edit.Load()
	if !ok {
		return nil, fmt.Errorf("%w: editMessage", patch.ErrTargetUnavailable)
	}
	return fn(ctx, channelID, messageID, msg)
}

// Typing posts a typing indicator through the fetch slot.
func (h *Host) Typing(ctx context.Context, channelID string) error {
	resp, err := h.callFetch(ctx, http.MethodPost, h.channelURL(channelID, "typing"), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return checkStatus(resp)
}

// Events returns the events delivered past the interceptors.
func (h *Host) Events() []host.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.Event(nil), h.events...)
}

func (h *Host) channelURL(channelID string, parts ...string) string {
	segs := append([]string{h.baseURL + APIVersion, "channels", url.PathEscape(channelID)}, parts...)
	return strings.Join(segs, "/")
}

func (h *Host) callFetch(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	fn, ok := h.fetch.Load()
	if !ok {
		return nil, fmt.Errorf("%w: fetch", patch.ErrTargetUnavailable)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if h.token != "" {
		header.Set("Authorization", h.token)
	}
	return fn(ctx, target, &host.FetchOptions{Method: method, Header: header, Body: body})
}

type wirePayload struct {
	*host.Message
	Nonce string `json:"nonce,omitempty"`
}

type wireResult struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func (h *Host) sendMessage(ctx context.Context, channelID string, msg *host.Message, opts *host.SendOptions) (*host.SendResult, error) {
	if msg == nil {
		msg = &host.Message{}
	}
	payload := wirePayload{Message: msg}
	if opts != nil {
		payload.Nonce = opts.Nonce
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	resp, err := h.callFetch(ctx, http.MethodPost, h.channelURL(channelID, "messages"), body)
	if err != nil {
		return nil, err
	}
	res, err := decodeResult(resp)
	if err != nil {
		return res, err
	}

	h.Dispatch(host.Event{Type: "MESSAGE_CREATE", Payload: map[string]any{
		"id":         res.ID,
		"channel_id": res.ChannelID,
		"content":    msg.Content,
	}})
	return res, nil
}

func (h *Host) editMessage(ctx context.Context, channelID, messageID string, msg *host.Message) (*host.SendResult, error) {
	factory, ok := h.request.Load()
	if !ok {
		return nil, fmt.Errorf("%w: request", patch.ErrTargetUnavailable)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	req := factory()
	if err := req.Open(http.MethodPatch, h.channelURL(channelID, "messages", url.PathEscape(messageID))); err != nil {
		return nil, err
	}
	req.SetHeader("Content-Type", "application/json")
	if h.token != "" {
		req.SetHeader("Authorization", h.token)
	}
	resp, err := req.Send(ctx, body)
	if err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

func decodeResult(resp *http.Response) (*host.SendResult, error) {
	defer resp.Body.Close()
	res := &host.SendResult{StatusCode: resp.StatusCode}
	if err := checkStatus(resp); err != nil {
		return res, err
	}
	var wire wireResult
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil && !errors.Is(err, io.EOF) {
		return res, fmt.Errorf("decode response: %w", err)
	}
	res.ID, res.ChannelID = wire.ID, wire.ChannelID
	return res, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	return nil
}

// doFetch is the unpatched fetch primitive.
func (h *Host) doFetch(ctx context.Context, target string, opts *host.FetchOptions) (*http.Response, error) {
	method := http.MethodGet
	var body io.Reader
	var header http.Header
	if opts != nil {
		if opts.Method != "" {
			method = opts.Method
		}
		if opts.Body != nil {
			body = bytes.NewReader(opts.Body)
		}
		header = opts.Header
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	for k, vv := range header {
		req.Header[k] = append([]string(nil), vv...)
	}
	return h.client.Do(req)
}

func (h *Host) newRequest() host.Request {
	return &httpRequest{client: h.client, header: http.Header{}}
}

// httpRequest is the unpatched two-phase request object.
type httpRequest struct {
	client *http.Client
	method string
	target string
	header http.Header
}

var errNotOpened = errors.New("request: send before open")

func (r *httpRequest) Open(method, target string) error {
	if method == "" {
		return errors.New("request: empty method")
	}
	if _, err := url.Parse(target); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	r.method, r.target = method, target
	r.header = http.Header{}
	return nil
}

func (r *httpRequest) SetHeader(name, value string) {
	r.header.Add(name, value)
}

func (r *httpRequest) Send(ctx context.Context, body []byte) (*http.Response, error) {
	if r.method == "" {
		return nil, errNotOpened
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.target, rd)
	if err != nil {
		return nil, err
	}
	req.Header = r.header.Clone()
	return r.client.Do(req)
}

// Modules. Each satisfies exactly the capability interfaces it offers.

type settingsModule struct{}

func (settingsModule) Theme() string { return "dark" }

type messagesModule struct{ h *Host }

func (m messagesModule) SendMessageSlot() patch.Slot[host.SendMessageFunc] { return m.h.send }
func (m messagesModule) EditMessageSlot() patch.Slot[host.EditMessageFunc] { return m.h.edit }

type networkModule struct{ h *Host }

func (m networkModule) FetchSlot() patch.Slot[host.FetchFunc]        { return m.h.fetch }
func (m networkModule) RequestSlot() patch.Slot[host.RequestFactory] { return m.h.request }

type dispatcherModule struct{ h *Host }

func (m dispatcherModule) Dispatch(ev host.Event) error            { return m.h.Dispatch(ev) }
func (m dispatcherModule) AddInterceptor(fn func(host.Event) bool) { m.h.AddInterceptor(fn) }

// Dispatch delivers ev unless an interceptor consumes it.
func (h *Host) Dispatch(ev host.Event) error {
	h.mu.Lock()
	interceptors := append([]func(host.Event) bool(nil), h.interceptors...)
	h.mu.Unlock()

	for _, fn := range interceptors {
		if fn(ev) {
			return nil
		}
	}
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	return nil
}

// AddInterceptor registers fn. Returning true drops the event.
func (h *Host) AddInterceptor(fn func(host.Event) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interceptors = append(h.interceptors, fn)
}
