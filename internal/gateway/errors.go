package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownAgent — агент отсутствует в статическом реестре эндпоинтов.
var ErrUnknownAgent = errors.New("gateway: unknown agent")

// StatusError — удаленный агент ответил не-2xx статусом.
type StatusError struct {
	AgentID string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent %s returned status %d: %s", e.AgentID, e.Code, e.Body)
}

// ThrottleError — агент попросил сбавить темп (429 + Retry-After).
// Retry-слой использует RetryAfter вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}
