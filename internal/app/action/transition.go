package action

import (
	"fmt"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

type kind uint8

const (
	kindInvalid kind = iota
	kindNext
	kindDone
	kindAbort
	kindSuspend
	kindFail
	kindRespond
	kindRetry
	kindClientTimeout
)

// Transition is what a step hands back to the driver. The zero value is
// invalid; the driver classifies it as InternalError.
type Transition struct {
	kind       kind
	code       s3err.Code
	retryAfter int
}

// Next advances the sequence the step belongs to.
func Next() Transition { return Transition{kind: kindNext} }

// Done completes the Action.
func Done() Transition { return Transition{kind: kindDone} }

// Abort stops the Action without running anything further.
func Abort() Transition { return Transition{kind: kindAbort} }

// Suspend leaves the Action waiting for a completion posted by Await or for
// an explicit call to Next, Done or Abort.
func Suspend() Transition { return Transition{kind: kindSuspend} }

// Fail records code and routes to rollback, or to the response step when
// nothing needs compensating.
func Fail(code s3err.Code) Transition { return Transition{kind: kindFail, code: code} }

// Respond skips any remaining steps and runs the response step.
func Respond() Transition { return Transition{kind: kindRespond} }

// RetryLater answers with a retryable error carrying the given hint.
func RetryLater(seconds int) Transition { return Transition{kind: kindRetry, retryAfter: seconds} }

// ClientTimeout reports that the client stalled while sending the body.
func ClientTimeout() Transition { return Transition{kind: kindClientTimeout} }

func (t Transition) String() string {
	switch t.kind {
	case kindNext:
		return "next"
	case kindDone:
		return "done"
	case kindAbort:
		return "abort"
	case kindSuspend:
		return "suspend"
	case kindFail:
		return fmt.Sprintf("fail(%s)", t.code)
	case kindRespond:
		return "respond"
	case kindRetry:
		return fmt.Sprintf("retry(%d)", t.retryAfter)
	case kindClientTimeout:
		return "client-timeout"
	default:
		return "invalid"
	}
}
