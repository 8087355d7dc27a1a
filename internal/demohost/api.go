package demohost

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/google/uuid"
)

// APIVersion is the path prefix of the emulated chat API.
const APIVersion = "/api/v9"

// Received is a request the emulated API accepted.
type Received struct {
	Method        string
	Path          string
	Authorization string
	Body          []byte
}

// API emulates the chat service endpoints the demo host talks to.
type API struct {
	mux *http.ServeMux

	mu       sync.Mutex
	received []Received
}

// NewAPI creates the emulated API.
func NewAPI() *API {
	a := &API{mux: http.NewServeMux()}
	a.mux.HandleFunc("POST "+APIVersion+"/channels/{channel}/messages", a.createMessage)
	a.mux.HandleFunc("PATCH "+APIVersion+"/channels/{channel}/messages/{message}", a.editMessage)
	a.mux.HandleFunc("POST "+APIVersion+"/channels/{channel}/typing", a.typing)
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "401: Unauthorized", "code": 0})
		return
	}
	a.mux.ServeHTTP(w, r)
}

// Received returns the accepted requests in arrival order.
func (a *API) Received() []Received {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Received(nil), a.received...)
}

func (a *API) record(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	a.received = append(a.received, Received{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	a.mu.Unlock()
	return body
}

func (a *API) createMessage(w http.ResponseWriter, r *http.Request) {
	body := a.record(r)
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "400: Bad Request", "code": 50109})
		return
	}
	if payload.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Cannot send an empty message", "code": 50006})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         uuid.NewString(),
		"channel_id": r.PathValue("channel"),
		"content":    payload.Content,
	})
}

func (a *API) editMessage(w http.ResponseWriter, r *http.Request) {
	a.record(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         r.PathValue("message"),
		"channel_id": r.PathValue("channel"),
	})
}

func (a *API) typing(w http.ResponseWriter, r *http.Request) {
	a.record(r)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// InProcess returns a client whose requests are served by h without a
// listening socket.
func InProcess(h http.Handler) *http.Client {
	return &http.Client{Transport: roundTripper{h}}
}

type roundTripper struct {
	h http.Handler
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	sreq := req.Clone(req.Context())
	if sreq.Body == nil {
		sreq.Body = http.NoBody
	}
	rec := httptest.NewRecorder()
	rt.h.ServeHTTP(rec, sreq)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}
