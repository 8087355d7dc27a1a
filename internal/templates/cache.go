// Package templates persists saved message templates through the host's
// key-value capability.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ppiankov/sendtap/internal/host"
)

// Namespace is the default storage namespace for the template list.
const Namespace = "sendtap_templates"

var (
	ErrInvalid  = errors.New("invalid template")
	ErrNotFound = errors.New("template not found")
)

// Template is one saved message.
type Template struct {
	ID               string    `json:"id"`
	Target           string    `json:"target"`
	From             string    `json:"from"`
	Content          string    `json:"content"`
	EmbedTitle       string    `json:"embed_title,omitempty"`
	EmbedDescription string    `json:"embed_description,omitempty"`
	EmbedImageURL    string    `json:"embed_image_url,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Validate reports the missing required fields.
func (t Template) Validate() error {
	var missing []string
	if strings.TrimSpace(t.Target) == "" {
		missing = append(missing, "target")
	}
	if strings.TrimSpace(t.From) == "" {
		missing = append(missing, "from")
	}
	if strings.TrimSpace(t.Content) == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// Message builds the payload sent for t. An embed is attached only when a
// title or description is set. From is never part of the payload.
func (t Template) Message() *host.Message {
	msg := &host.Message{Content: t.Content}
	if t.EmbedTitle == "" && t.EmbedDescription == "" {
		return msg
	}
	embed := host.Embed{Title: t.EmbedTitle, Description: t.EmbedDescription}
	if t.EmbedImageURL != "" {
		embed.Image = &host.EmbedImage{URL: t.EmbedImageURL}
	}
	msg.Embeds = []host.Embed{embed}
	return msg
}

// Cache is the template list stored under one namespace.
type Cache struct {
	kv        host.KVStore
	namespace string
	now       func() time.Time

	mu sync.Mutex // serializes read-modify-write cycles
}

// Option configures a Cache.
type Option func(*Cache)

// WithNamespace overrides Namespace.
func WithNamespace(ns string) Option {
	return func(c *Cache) { c.namespace = ns }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache over kv.
func NewCache(kv host.KVStore, opts ...Option) *Cache {
	c := &Cache{kv: kv, namespace: Namespace, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// List returns the saved templates, oldest first. A namespace that was never
// written is an empty list.
func (c *Cache) List(ctx context.Context) ([]Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Get returns the template with id.
func (c *Cache) Get(ctx context.Context, id string) (Template, error) {
	list, err := c.List(ctx)
	if err != nil {
		return Template{}, err
	}
	t, ok := lo.Find(list, func(t Template) bool { return t.ID == id })
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// Save validates t and appends it. A missing ID or timestamp is filled in.
// Saving an existing ID replaces that template in place.
func (c *Cache) Save(ctx context.Context, t Template) (Template, error) {
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = c.now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.load(ctx)
	if err != nil {
		return Template{}, err
	}
	if _, idx, ok := lo.FindIndexOf(list, func(x Template) bool { return x.ID == t.ID }); ok {
		list[idx] = t
	} else {
		list = append(list, t)
	}
	if err := c.store(ctx, list); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Delete removes the template with id.
func (c *Cache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.load(ctx)
	if err != nil {
		return err
	}
	kept := lo.Reject(list, func(t Template, _ int) bool { return t.ID == id })
	if len(kept) == len(list) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.store(ctx, kept)
}

// Clear removes every template.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(ctx, []Template{})
}

func (c *Cache) load(ctx context.Context) ([]Template, error) {
	data, ok, err := c.kv.Get(ctx, c.namespace)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if !ok {
		return []Template{}, nil
	}
	var list []Template
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	if list == nil {
		list = []Template{}
	}
	return list, nil
}

func (c *Cache) store(ctx context.Context, list []Template) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	if err := c.kv.Put(ctx, c.namespace, data); err != nil {
		return fmt.Errorf("store templates: %w", err)
	}
	return nil
}
