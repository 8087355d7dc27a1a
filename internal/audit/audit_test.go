package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/sendtap/internal/logstore"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEntry(tag, text string) Entry {
	return Entry{
		Timestamp: time.Now().UTC().Format(TimestampFormat),
		SessionID: "s-test123",
		Tag:       tag,
		Text:      text,
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 5; i++ {
		if err := l.Record(testEntry(logstore.TagFetch, "POST https://h/messages | Body: null")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		if err := l.Record(testEntry(logstore.TagJWT, "UserID=42")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	lines := readLines(t, path)
	lines[1] = strings.Replace(lines[1], "UserID=42", "UserID=43", 1)
	writeLines(t, path, lines)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record(testEntry(logstore.TagFetch, "x"))
	}
	l.Close()

	lines := readLines(t, path)
	writeLines(t, path, []string{lines[0], lines[2]})

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with deleted entry to be invalid")
	}
	if result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsInsertedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record(testEntry(logstore.TagFetch, "x"))
	}
	l.Close()

	lines := readLines(t, path)
	fake := testEntry(logstore.TagJWT, "UserID=1")
	fake.PrevHash = "sha256:fake"
	fakeJSON, _ := json.Marshal(fake)
	writeLines(t, path, []string{lines[0], string(fakeJSON), lines[1], lines[2]})

	if Verify(path).Valid {
		t.Fatal("expected chain with inserted entry to be invalid")
	}
}

func TestVerifyReportsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	os.WriteFile(path, []byte("not json\n"), 0600)

	result := Verify(path)
	if result.Valid || result.ErrorLine != 1 || !strings.Contains(result.Error, "parse error") {
		t.Fatalf("expected parse error on line 1, got %+v", result)
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "missing.jsonl"))
	if result.Valid || !strings.HasPrefix(result.Error, "open:") {
		t.Fatalf("expected open error, got %+v", result)
	}
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	os.WriteFile(path, []byte{}, 0600)

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected empty log to be valid, got: %s", result.Error)
	}
	if result.Lines != 0 {
		t.Fatalf("expected 0 lines, got %d", result.Lines)
	}
}

func TestConcurrentWritesSerializeCorrectly(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(testEntry(logstore.TagXHR, "GET https://h/messages | Body: null"))
		}()
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after concurrent writes, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 100 {
		t.Fatalf("expected 100 lines, got %d", result.Lines)
	}
}

func TestGenesisHashIsCorrect(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry(logstore.TagFetch, "x"))
	l.Close()

	var entry Entry
	if err := json.Unmarshal([]byte(readLines(t, path)[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.PrevHash != GenesisHash {
		t.Fatalf("expected genesis hash %s, got %s", GenesisHash, entry.PrevHash)
	}
}

func TestHashLineIsDeterministic(t *testing.T) {
	line := []byte(`{"ts":"2025-01-15T10:30:00.000Z","session_id":"s-abc","seq":1,"tag":"JWT","text":"UserID=42","prev_hash":"sha256:def"}`)
	h1 := HashLine(line)
	h2 := HashLine(line)
	if h1 != h2 {
		t.Fatalf("expected same hash, got %s and %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Fatalf("expected sha256: prefix, got %s", h1)
	}
	if len(h1) != 7+64 {
		t.Fatalf("expected 71 char hash string, got %d", len(h1))
	}
	if HashLine([]byte("a")) == HashLine([]byte("b")) {
		t.Fatal("expected different hashes for different inputs")
	}
}

func TestOpenExistingLogContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reopen.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l1.Record(testEntry(logstore.TagFetch, "x"))
	}
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		l2.Record(testEntry(logstore.TagJWT, "UserID=42"))
	}
	l2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after reopen, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestSinkRecordsStoreEntries(t *testing.T) {
	l, path := newTestLog(t)
	at := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
	store := logstore.New(2,
		logstore.WithSink(l.Sink("s-1"), func(err error) { t.Errorf("sink: %v", err) }),
		logstore.WithClock(func() time.Time { return at }),
	)

	store.Append(logstore.TagFetch, "POST https://h/messages | Body: null")
	store.Append(logstore.TagJWT, "UserID=42")
	store.Append(logstore.TagSendMessage, "Channel=1, Message=null")
	l.Close()

	// The file keeps what the bounded store evicts.
	result, err := Replay(path, ReplayFilter{SessionID: "s-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 persisted entries, got %d", len(result.Entries))
	}
	first := result.Entries[0]
	if first.Seq != 1 || first.Tag != logstore.TagFetch || first.Timestamp != "2025-01-15T14:00:00.000Z" {
		t.Errorf("unexpected first entry %+v", first)
	}
	if !Verify(path).Valid {
		t.Error("sink output should verify")
	}
}

func TestSinkReportsClosedFile(t *testing.T) {
	l, _ := newTestLog(t)
	l.Close()

	var got error
	store := logstore.New(0, logstore.WithSink(l.Sink("s-1"), func(err error) { got = err }))
	store.Append(logstore.TagFetch, "x")

	if got == nil {
		t.Fatal("expected write error to reach the error handler")
	}
	if store.Len() != 1 {
		t.Error("the in-memory entry must be kept")
	}
}
