package github

import (
	"encoding/json"
	jsonv2 "encoding/json/v2"
	"io"
	"time"

	"gitpulse/internal/core/event"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
)

const maxFeedBytes = 8 << 20

// feedItem is the slice of the feed document we keep. created_at stays a
// string so one garbled timestamp cannot sink the surrounding page
type feedItem struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Repo      feedRepo        `json:"repo"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

// feedRepo is the entity the event happened to
type feedRepo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"` // owner/name
}

// decodeFeed parses a feed page item by item; items that fail to decode
// are skipped so the rest of the page survives. The feed carries no
// top level category hint, the normalizer digs that out of the payload
func decodeFeed(r io.Reader, log logger.Logger) ([]event.Raw, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFeedBytes))
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "github read feed body")
	}
	var items []json.RawMessage
	if err := jsonv2.Unmarshal(b, &items); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "github feed is not a json array")
	}
	out := make([]event.Raw, 0, len(items))
	skipped := 0
	for _, raw := range items {
		var it feedItem
		if err := jsonv2.Unmarshal(raw, &it); err != nil {
			skipped++
			continue
		}
		var ts time.Time
		if it.CreatedAt != "" {
			if t, terr := time.Parse(time.RFC3339, it.CreatedAt); terr == nil {
				ts = t
			}
		}
		out = append(out, event.Raw{
			ID:         it.ID,
			Type:       it.Type,
			EntityID:   it.Repo.ID,
			EntityName: it.Repo.Name,
			OccurredAt: ts,
			Payload:    it.Payload,
		})
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Int("kept", len(out)).Msg("github feed items failed to decode")
	}
	return out, nil
}
