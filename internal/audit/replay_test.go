package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/sendtap/internal/logstore"
)

var replayBase = time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)

// writeTestLog creates a temp log with known entries for testing.
func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	at := func(sec int) string { return replayBase.Add(time.Duration(sec) * time.Second).Format(TimestampFormat) }
	entries := []Entry{
		{Timestamp: at(0), SessionID: "s-aaa", Seq: 1, Tag: logstore.TagSession, Text: "started"},
		{Timestamp: at(2), SessionID: "s-aaa", Seq: 2, Tag: logstore.TagFetch, Text: `POST https://h/channels/1/messages | Body: {"content":"hi"}`},
		{Timestamp: at(4), SessionID: "s-bbb", Seq: 1, Tag: logstore.TagXHR, Text: "GET https://h/channels/1/messages | Body: null"},
		{Timestamp: at(6), SessionID: "s-aaa", Seq: 3, Tag: logstore.TagJWT, Text: "UserID=42"},
		{Timestamp: at(8), SessionID: "s-aaa", Seq: 4, Tag: logstore.TagSendMessage, Text: `Channel=1, Message={"content":"hi","tts":false}`},
		{Timestamp: at(10), SessionID: "s-aaa", Seq: 5, Tag: logstore.TagFetch, Text: `POST https://h/channels/1/messages | Body: {"content":"yo"}`},
	}
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func seqs(entries []Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

func TestReplayFiltersBySession(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{1, 2, 3, 4, 5}, seqs(result.Entries)); diff != "" {
		t.Errorf("seq mismatch (-want +got):\n%s", diff)
	}
	for _, e := range result.Entries {
		if e.SessionID != "s-aaa" {
			t.Errorf("unexpected session: %s", e.SessionID)
		}
	}
}

func TestReplayTimeRange(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{
		SessionID: "s-aaa",
		From:      replayBase.Add(2 * time.Second),
		To:        replayBase.Add(8 * time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{2, 3, 4}, seqs(result.Entries)); diff != "" {
		t.Errorf("seq mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayFiltersByTag(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa", Tags: []string{logstore.TagFetch, logstore.TagJWT}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{2, 3, 5}, seqs(result.Entries)); diff != "" {
		t.Errorf("seq mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaySummary(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-aaa"})
	if err != nil {
		t.Fatal(err)
	}
	want := ReplaySummary{
		Total: 5,
		ByTag: map[string]int{
			logstore.TagSession:     1,
			logstore.TagFetch:       2,
			logstore.TagJWT:         1,
			logstore.TagSendMessage: 1,
		},
		FirstTimestamp: "2025-01-15T14:00:00.000Z",
		LastTimestamp:  "2025-01-15T14:00:10.000Z",
	}
	if diff := cmp.Diff(want, result.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayUnknownSession(t *testing.T) {
	path := writeTestLog(t)

	result, err := Replay(path, ReplayFilter{SessionID: "s-nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 0 || result.Summary.Total != 0 {
		t.Errorf("expected no entries, got %d", len(result.Entries))
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := Replay(filepath.Join(t.TempDir(), "none.jsonl"), ReplayFilter{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSessionsInFirstAppearanceOrder(t *testing.T) {
	path := writeTestLog(t)

	ids, err := Sessions(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"s-aaa", "s-bbb"}, ids); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}
}
