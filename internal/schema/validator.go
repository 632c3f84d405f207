// Package schema validates caption events before they leave the process.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"scanner-caption-service/internal/models"
	"scanner-caption-service/internal/observability/logging"
)

// ErrInvalidEvent wraps every validation failure.
var ErrInvalidEvent = errors.New("invalid caption event")

type Validator struct {
	logger zerolog.Logger
}

func New() *Validator {
	return &Validator{logger: logging.WithComponent("schema")}
}

func (v *Validator) Validate(ev models.CaptionEvent) error {
	var problem string
	switch {
	case ev.EventType != models.EventTypePartial && ev.EventType != models.EventTypeFinal:
		problem = fmt.Sprintf("unknown eventType %q", ev.EventType)
	case ev.SessionID == "":
		problem = "missing sessionId"
	case ev.UtteranceID == "":
		problem = "missing utteranceId"
	case ev.Timestamp <= 0:
		problem = "missing timestamp"
	case ev.Text == "" || ev.Caption == "":
		problem = "empty text"
	case ev.Confidence < 0 || ev.Confidence > 1:
		problem = fmt.Sprintf("confidence %v out of range", ev.Confidence)
	case ev.Lookup != "" && !ev.IsFinal():
		problem = "lookup on a partial event"
	}
	if problem != "" {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, problem)
	}
	v.logger.Trace().Str("utteranceId", ev.UtteranceID).Str("eventType", ev.EventType).Msg("schema validated")
	return nil
}
