package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for every entry appended to the log at path until ctx is
// cancelled. With fromStart, existing entries are delivered first.
// Malformed lines are skipped.
func Follow(ctx context.Context, path string, fromStart bool, fn func(Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if !fromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("seek audit log: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}

	t := tailer{r: bufio.NewReader(f), fn: fn}
	if err := t.drain(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return fmt.Errorf("audit log %s was moved or removed", path)
			}
			if event.Has(fsnotify.Write) {
				if err := t.drain(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher: %w", err)
		}
	}
}

type tailer struct {
	r       *bufio.Reader
	partial []byte
	fn      func(Entry)
}

// drain delivers every complete line available. A trailing line without a
// newline is held until the rest arrives.
func (t *tailer) drain() error {
	for {
		chunk, err := t.r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			t.partial = append(t.partial, chunk...)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audit log: %w", err)
		}

		line := append(t.partial, chunk...)
		t.partial = nil
		var entry Entry
		if err := json.Unmarshal(line, &entry); err == nil {
			t.fn(entry)
		}
	}
}
