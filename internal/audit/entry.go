package audit

import (
	"time"

	"github.com/ppiankov/sendtap/internal/logstore"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Entry is one line in the hash-chained JSONL log.
// Plain struct fields keep json.Marshal output stable for hashing.
type Entry struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Tag       string `json:"tag"`
	Text      string `json:"text"`
	PrevHash  string `json:"prev_hash"`
}

// FromLogEntry converts an in-memory log entry for session.
func FromLogEntry(session string, e logstore.Entry) Entry {
	return Entry{
		Timestamp: e.Time.UTC().Format(TimestampFormat),
		SessionID: session,
		Seq:       e.Seq,
		Tag:       e.Tag,
		Text:      e.Text,
	}
}

// String renders the entry the way the in-memory log does.
func (e Entry) String() string {
	return e.Tag + ": " + e.Text
}

func parseTimestamp(ts string) (time.Time, error) {
	return time.Parse(TimestampFormat, ts)
}
