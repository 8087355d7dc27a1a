package logstore

import (
	"fmt"
	"time"
)

// Tags used by the interceptors.
const (
	TagXHR         = "XHR"
	TagFetch       = "FETCH"
	TagJWT         = "JWT"
	TagSendMessage = "SendMessage"
	TagSession     = "Session"
)

// Entry is one observation. Text is a serialized snapshot; entries never
// point at live host state.
type Entry struct {
	Seq  int64     `json:"seq"`
	Time time.Time `json:"time"`
	Tag  string    `json:"tag"`
	Text string    `json:"text"`
}

// String renders the entry the way it is shown to users, e.g.
// "FETCH: https://host/api/messages | Body: {...}".
func (e Entry) String() string {
	return fmt.Sprintf("%s: %s", e.Tag, e.Text)
}
