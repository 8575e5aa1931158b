// Package normalize turns raw source events into canonical pipeline events.
// Malformed input becomes a structured Error the caller records and drops;
// it never halts a poll cycle
package normalize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"gitpulse/internal/core/categorize"
	"gitpulse/internal/core/event"
	"gitpulse/internal/core/velocity"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// now is the pipeline clock for ingested_at stamps
var now = time.Now

// Error describes one dropped event. It is recorded by the caller and the
// event is gone; nothing downstream ever sees it
type Error struct {
	EventID string
	Field   string
	Reason  string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalize %q: field %s: %s", e.EventID, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalize %q: %s", e.EventID, e.Reason)
}

var (
	vOnce sync.Once
	vv    *validator.Validate
	vt    ut.Translator
)

// vGet returns the singleton validator with english translations and json tag names
func vGet() *validator.Validate {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		vv = v
		vt = trans
	})
	return vv
}

// required fields run through the platform validator so drop reasons read well
type rawChecks struct {
	ID         string    `json:"id" validate:"required"`
	Type       string    `json:"type" validate:"required"`
	EntityID   int64     `json:"entity_id" validate:"required,gt=0"`
	EntityName string    `json:"entity_name" validate:"required"`
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
}

// payloadExtras is the slice of the opaque payload worth digging out.
// Everything here is optional; a broken payload costs only the extras
type payloadExtras struct {
	Repository struct {
		Language        *string `json:"language"`
		StargazersCount int64   `json:"stargazers_count"`
	} `json:"repository"`
}

// fieldAndMessage returns the first failed field and its translated message
func fieldAndMessage(err error) (field, message string) {
	if err == nil {
		return "", ""
	}
	if inv, ok := err.(*validator.InvalidValidationError); ok {
		return "", inv.Error()
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			return fe.Field(), fe.Translate(vt)
		}
	}
	return "", err.Error()
}

// Normalize validates raw and produces the canonical event.
//
// Unknown type tags map to the catch-all rather than failing. The category
// comes from the source hint when present, then payload metadata, then name
// inference; none of those matching leaves it null. size_metric comes from
// payload metadata when carried, else 0
func Normalize(raw event.Raw) (event.Normalized, *Error) {
	checks := rawChecks{
		ID:         raw.ID,
		Type:       raw.Type,
		EntityID:   raw.EntityID,
		EntityName: raw.EntityName,
		OccurredAt: raw.OccurredAt,
	}
	if err := vGet().Struct(checks); err != nil {
		field, msg := fieldAndMessage(err)
		return event.Normalized{}, &Error{EventID: raw.ID, Field: field, Reason: msg}
	}

	typ := event.Canonical(raw.Type)
	name := Sanitize(raw.EntityName)

	var size int64
	hint := strings.TrimSpace(raw.Category)
	if len(raw.Payload) > 0 {
		var extras payloadExtras
		if err := json.Unmarshal(raw.Payload, &extras); err == nil {
			if extras.Repository.StargazersCount > 0 {
				size = extras.Repository.StargazersCount
			}
			if hint == "" && extras.Repository.Language != nil {
				hint = strings.TrimSpace(*extras.Repository.Language)
			}
		}
	}

	var category *string
	if hint != "" {
		if c := categorize.Fold(hint); c != "" {
			category = &c
		}
	} else if c := categorize.Infer(name); c != "" {
		category = &c
	}

	return event.Normalized{
		EventID:        raw.ID,
		EventType:      typ,
		EntityID:       raw.EntityID,
		EntityName:     name,
		EntityCategory: category,
		OccurredAt:     raw.OccurredAt.UTC(),
		IngestedAt:     now().UTC(),
		SizeMetric:     size,
		Delta:          velocity.Delta(typ),
	}, nil
}
