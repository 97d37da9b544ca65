package chat

import (
	"context"
	"errors"
)

// Outcome labels used by the ledger and metrics.
const (
	OutcomeAnswered         = "answered"
	OutcomeAborted          = "aborted"
	OutcomeNoControl        = "no_control"
	OutcomeNotSubmitted     = "not_submitted"
	OutcomeConnectionClosed = "connection_closed"
	OutcomeUIError          = "ui_error"
	OutcomeTimeout          = "timeout"
	OutcomeError            = "error"
)

// Outcome maps an Ask error to its label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAnswered
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeAborted
	case errors.Is(err, ErrNoControl):
		return OutcomeNoControl
	case errors.Is(err, ErrNotSubmitted):
		return OutcomeNotSubmitted
	case errors.Is(err, ErrConnectionClosed):
		return OutcomeConnectionClosed
	case errors.Is(err, ErrUIError):
		return OutcomeUIError
	case errors.Is(err, ErrResponseTimeout):
		return OutcomeTimeout
	}
	return OutcomeError
}
