package analysis

import (
	"errors"
	"fmt"
)

var ErrUnavailable = errors.New("analysis unavailable")

type Reason string

const (
	ReasonTransport    Reason = "transport"
	ReasonHTTPStatus   Reason = "http_status"
	ReasonAPIError     Reason = "api_error"
	ReasonNoCandidates Reason = "no_candidates"
	ReasonDecode       Reason = "decode"
	ReasonCircuitOpen  Reason = "circuit_open"
	ReasonTimeout      Reason = "timeout"
	ReasonConfig       Reason = "config"
)

// UnavailableError: внешний анализ не дал результата. errors.Is(err, ErrUnavailable) == true.
type UnavailableError struct {
	Provider string
	Reason   Reason
	Status   int    // HTTP-статус, если был
	Message  string // сообщение из error-payload API
	Err      error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s (%s)", e.Provider, ErrUnavailable, e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func Unavailable(provider string, reason Reason, err error) *UnavailableError {
	return &UnavailableError{Provider: provider, Reason: reason, Err: err}
}

// ReasonOf достаёт причину для метрик; "unknown" если ошибка не типизирована.
func ReasonOf(err error) Reason {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return "unknown"
}
