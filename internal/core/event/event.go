// Package event defines the canonical pipeline event and its queue wire format
package event

import (
	"encoding/json"
	"strconv"
	"time"

	perr "gitpulse/internal/platform/errors"
)

// Type is the closed set of event kinds the pipeline scores
type Type string

// Canonical event types. The source's WatchEvent lands here as TypeStar;
// anything outside the set becomes TypeUnknown rather than an error
const (
	TypeStar         Type = "StarEvent"
	TypeFork         Type = "ForkEvent"
	TypePullRequest  Type = "PullRequestEvent"
	TypeRelease      Type = "ReleaseEvent"
	TypeIssues       Type = "IssuesEvent"
	TypePush         Type = "PushEvent"
	TypeCreate       Type = "CreateEvent"
	TypeIssueComment Type = "IssueCommentEvent"
	TypeUnknown      Type = "UnknownEvent"
)

// Canonical maps a source type tag onto the closed enum
func Canonical(raw string) Type {
	switch raw {
	case "WatchEvent", string(TypeStar):
		return TypeStar
	case string(TypeFork):
		return TypeFork
	case string(TypePullRequest):
		return TypePullRequest
	case string(TypeRelease):
		return TypeRelease
	case string(TypeIssues):
		return TypeIssues
	case string(TypePush):
		return TypePush
	case string(TypeCreate):
		return TypeCreate
	case string(TypeIssueComment):
		return TypeIssueComment
	default:
		return TypeUnknown
	}
}

// Known reports whether t carries a non-zero base weight
func (t Type) Known() bool { return t != TypeUnknown && t != "" }

// Raw is one source event before normalization. The payload stays opaque
// here; the normalizer digs size and category hints out of it
type Raw struct {
	ID         string
	Type       string
	EntityID   int64
	EntityName string

	// Category is an optional source-supplied hint; empty when the feed
	// carries none (the GitHub feed buries it in the payload instead)
	Category string

	// OccurredAt is zero when the source timestamp was absent or garbled
	OccurredAt time.Time

	Payload json.RawMessage
}

// Normalized is the canonical record flowing through the queue into the
// aggregator. Its JSON encoding is the queue wire format
type Normalized struct {
	EventID        string    `json:"event_id"`
	EventType      Type      `json:"event_type"`
	EntityID       int64     `json:"entity_id"`
	EntityName     string    `json:"entity_name"`
	EntityCategory *string   `json:"entity_category,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	IngestedAt     time.Time `json:"ingested_at"`
	SizeMetric     int64     `json:"size_metric"`
	Delta          int64     `json:"delta"`
}

// Key is the queue partition key; every event of an entity shares it so
// per-entity order survives partitioning
func (e Normalized) Key() []byte {
	return strconv.AppendInt(nil, e.EntityID, 10)
}

// Encode renders e as queue wire bytes
func (e Normalized) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "encode event")
	}
	return b, nil
}

// Decode parses wire bytes and guards the fields consumers rely on.
// A failed decode means a corrupt message, not a malformed source event;
// callers log and skip it
func Decode(b []byte) (Normalized, error) {
	var e Normalized
	if err := json.Unmarshal(b, &e); err != nil {
		return Normalized{}, perr.Wrap(err, perr.ErrorCodeJSON, "decode event")
	}
	if e.EventID == "" {
		return Normalized{}, perr.Validationf("event missing event_id")
	}
	if e.EntityID == 0 {
		return Normalized{}, perr.Validationf("event %s missing entity_id", e.EventID)
	}
	if e.OccurredAt.IsZero() {
		return Normalized{}, perr.Validationf("event %s missing occurred_at", e.EventID)
	}
	return e, nil
}
