package templates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/sendtap/internal/host"
)

func openTestKV(t *testing.T) *KV {
	t.Helper()
	kv, err := OpenKV(":memory:")
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

var fixedNow = time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(openTestKV(t), WithClock(func() time.Time { return fixedNow }))
}

func sample(content string) Template {
	return Template{Target: "123", From: "456", Content: content}
}

func TestListDefaultsToEmpty(t *testing.T) {
	list, err := newTestCache(t).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
}

func TestSaveAssignsIDAndTimestamp(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	saved, err := c.Save(ctx, sample("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID == "" {
		t.Error("expected generated ID")
	}
	if !saved.Timestamp.Equal(fixedNow) {
		t.Errorf("expected timestamp %v, got %v", fixedNow, saved.Timestamp)
	}

	list, _ := c.List(ctx)
	if diff := cmp.Diff([]Template{saved}, list); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveKeepsOrderAndReplacesByID(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	a, _ := c.Save(ctx, sample("a"))
	b, _ := c.Save(ctx, sample("b"))
	a.Content = "a2"
	if _, err := c.Save(ctx, a); err != nil {
		t.Fatal(err)
	}

	list, _ := c.List(ctx)
	got := []string{list[0].Content, list[1].Content}
	if diff := cmp.Diff([]string{"a2", "b"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if list[1].ID != b.ID {
		t.Error("second template should be b")
	}
}

func TestSaveValidatesRequiredFields(t *testing.T) {
	c := newTestCache(t)
	tests := []struct {
		name string
		tmpl Template
		want string
	}{
		{"no target", Template{From: "1", Content: "x"}, "target"},
		{"no from", Template{Target: "1", Content: "x"}, "from"},
		{"blank content", Template{Target: "1", From: "2", Content: "  "}, "content"},
		{"nothing", Template{}, "target, from, content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Save(context.Background(), tt.tmpl)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if want := "invalid template: missing " + tt.want; err.Error() != want {
				t.Errorf("got %q, want %q", err.Error(), want)
			}
		})
	}

	list, _ := c.List(context.Background())
	if len(list) != 0 {
		t.Error("invalid templates must not be stored")
	}
}

func TestGetAndDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	a, _ := c.Save(ctx, sample("a"))
	b, _ := c.Save(ctx, sample("b"))

	got, err := c.Get(ctx, b.ID)
	if err != nil || got.Content != "b" {
		t.Fatalf("get: %v, %+v", err, got)
	}
	if err := c.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := c.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	list, _ := c.List(ctx)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("unexpected remaining list %+v", list)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	c.Save(ctx, sample("a"))

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	list, err := c.List(ctx)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v, %v", list, err)
	}
}

func TestNamespacesDoNotShareTemplates(t *testing.T) {
	kv := openTestKV(t)
	ctx := context.Background()
	a := NewCache(kv)
	b := NewCache(kv, WithNamespace("other"))

	a.Save(ctx, sample("a"))
	list, _ := b.List(ctx)
	if len(list) != 0 {
		t.Errorf("expected other namespace empty, got %d", len(list))
	}
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk gone")
}
func (failingKV) Put(context.Context, string, []byte) error { return errors.New("disk gone") }

func TestStorageErrorsPropagate(t *testing.T) {
	c := NewCache(failingKV{})
	if _, err := c.List(context.Background()); err == nil {
		t.Error("expected list error")
	}
	if _, err := c.Save(context.Background(), sample("a")); err == nil {
		t.Error("expected save error")
	}
	if err := c.Clear(context.Background()); err == nil {
		t.Error("expected clear error")
	}
}

func TestCorruptNamespace(t *testing.T) {
	kv := openTestKV(t)
	kv.Put(context.Background(), Namespace, []byte("{not a list"))
	if _, err := NewCache(kv).List(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestTemplateMessage(t *testing.T) {
	tests := []struct {
		name string
		tmpl Template
		want *host.Message
	}{
		{
			name: "plain",
			tmpl: Template{Content: "hi", EmbedImageURL: "https://img"},
			want: &host.Message{Content: "hi"},
		},
		{
			name: "embed",
			tmpl: Template{Content: "hi", EmbedTitle: "T", EmbedImageURL: "https://img"},
			want: &host.Message{Content: "hi", Embeds: []host.Embed{{Title: "T", Image: &host.EmbedImage{URL: "https://img"}}}},
		},
		{
			name: "embed without image",
			tmpl: Template{Content: "hi", EmbedDescription: "D"},
			want: &host.Message{Content: "hi", Embeds: []host.Embed{{Description: "D"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.tmpl.Message()); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
