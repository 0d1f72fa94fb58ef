package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-tempsim/frame"
)

// RequestID identifies a submitted request.
type RequestID = uuid.UUID

// Matcher validates a received byte sequence. *frame.Pattern implements it.
type Matcher interface {
	Match(received []byte) (*frame.Match, bool)
}

// Request is one transmission the scheduler performs on behalf of a caller.
type Request struct {
	// Payload is the frame to transmit.
	Payload []byte
	// Pattern is what a successful reply looks like.
	Pattern Matcher
	// MaxAttempts bounds the number of transmissions. Zero uses the scheduler default.
	MaxAttempts int
	// ReadTimeout bounds each attempt's wait for a reply. Zero uses the scheduler default.
	ReadTimeout time.Duration
	// Label names the request in logs.
	Label string
}

func (r Request) validate() error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	if r.Pattern == nil {
		return fmt.Errorf("%w: nil pattern", ErrInvalidRequest)
	}
	if r.MaxAttempts < 0 || r.MaxAttempts > MaxAttemptsLimit {
		return fmt.Errorf("%w: max attempts %d out of range [1, %d]", ErrInvalidRequest, r.MaxAttempts, MaxAttemptsLimit)
	}
	if r.ReadTimeout < 0 {
		return fmt.Errorf("%w: negative read timeout", ErrInvalidRequest)
	}

	return nil
}

// Outcome is the terminal state of a request.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeMatched
	OutcomeExhausted
	OutcomeTransportFailure
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeMatched:
		return "matched"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeTransportFailure:
		return "transport failure"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Result is produced exactly once per request.
type Result struct {
	RequestID RequestID
	Outcome   Outcome
	// Matched is true when a reply matched the pattern.
	Matched bool
	// Match holds the matched frame and its captures when Matched is true.
	Match *frame.Match
	// Attempts is the number of transmissions performed.
	Attempts int
	// Received holds the bytes read during the last attempt.
	Received []byte
	// Reason is a human readable description of the outcome.
	Reason string
	// Err is nil for matched requests and wraps one of the package sentinels otherwise.
	Err error
	// Completed is when the request reached its outcome.
	Completed time.Time
}

// Groups returns the captured groups of the match, or nil.
func (r Result) Groups() [][]byte {
	if r.Match == nil {
		return nil
	}

	return r.Match.Groups
}

// Named returns a named capture group of the match.
func (r Result) Named(name string) ([]byte, bool) {
	return r.Match.Named(name)
}

// Handle lets a caller await the result of a submitted request.
type Handle struct {
	id   RequestID
	done <-chan struct{}
}

// ID returns the request identifier.
func (h *Handle) ID() RequestID { return h.id }

// Done is closed once the request has a result.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State of the scheduler worker.
type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateAwaitingTransmission
	StateAwaitingResponse
	StateRetrying
	StateMatched
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingTransmission:
		return "awaiting transmission"
	case StateAwaitingResponse:
		return "awaiting response"
	case StateRetrying:
		return "retrying"
	case StateMatched:
		return "matched"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
