package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Elizabethomito/geocheckin/internal/geo"
	"github.com/Elizabethomito/geocheckin/internal/locate"
)

// LowTrustAccuracyMeters is the accuracy above which an estimate should be
// confirmed by the user before it is sent.
const LowTrustAccuracyMeters = 500

// State is a step of a single check-in attempt.
type State string

const (
	StateIdle       State = "IDLE"
	StateResolving  State = "RESOLVING_LOCATION"
	StateResolved   State = "LOCATION_RESOLVED"
	StateFailed     State = "LOCATION_FAILED"
	StateSubmitting State = "SUBMITTING"
	StateAccepted   State = "ACCEPTED"
	StateRejected   State = "REJECTED"
	StateAborted    State = "ABORTED"
)

var transitions = map[State][]State{
	StateIdle:       {StateResolving, StateAborted},
	StateResolving:  {StateResolved, StateFailed, StateAborted},
	StateResolved:   {StateSubmitting, StateAborted},
	StateFailed:     {StateSubmitting, StateAborted},
	StateSubmitting: {StateAccepted, StateRejected},
}

var (
	// ErrAborted ends an attempt on the client before anything is sent.
	ErrAborted = errors.New("check-in aborted")
	// ErrAttemptUsed is returned when Run is called on a finished attempt.
	ErrAttemptUsed = errors.New("check-in attempt already run")
)

// LocationResolver is satisfied by *locate.Resolver.
type LocationResolver interface {
	Resolve(ctx context.Context, opts locate.ResolveOptions) (geo.Estimate, error)
}

// Attempt drives one scan from IDLE to ACCEPTED, REJECTED or ABORTED.
// Build a new Attempt for every scan; Run may only be called once.
type Attempt struct {
	Resolver       LocationResolver
	Submitter      *Submitter
	ResolveOptions locate.ResolveOptions

	// Justify is asked for a reason after location resolution failed.
	// A blank reason aborts the attempt.
	Justify func(ctx context.Context, cause error) (string, error)
	// ConfirmLowTrust, if set, is asked before sending an estimate whose
	// accuracy exceeds LowTrustThreshold. Declining aborts the attempt.
	ConfirmLowTrust   func(ctx context.Context, est geo.Estimate) (bool, error)
	LowTrustThreshold float64

	Logger *slog.Logger

	state   State
	history []State
}

// State returns the current state.
func (a *Attempt) State() State {
	if a.state == "" {
		return StateIdle
	}
	return a.state
}

// History returns every state the attempt has passed through, in order.
func (a *Attempt) History() []State {
	return append([]State{StateIdle}, a.history...)
}

func (a *Attempt) transition(to State) {
	from := a.State()
	for _, allowed := range transitions[from] {
		if allowed == to {
			a.state = to
			a.history = append(a.history, to)
			a.logger().Debug("check-in attempt", "from", from, "to", to)
			return
		}
	}
	panic(fmt.Sprintf("checkin: illegal transition %s -> %s", from, to))
}

func (a *Attempt) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Run resolves a location, gathers a reason if needed, and submits payload.
// Hand-entered coordinates that fail validation abort the attempt with the
// *geo.InvalidCoordinateError; nothing is sent.
func (a *Attempt) Run(ctx context.Context, payload string) (*Result, error) {
	if a.State() != StateIdle {
		return nil, ErrAttemptUsed
	}
	if _, err := ExtractToken(payload); err != nil {
		a.transition(StateAborted)
		return nil, err
	}

	a.transition(StateResolving)
	est, err := a.Resolver.Resolve(ctx, a.ResolveOptions)

	var outcome Outcome
	var justification string
	switch {
	case err == nil:
		a.transition(StateResolved)
		outcome = Resolved(est)
		if ok, cerr := a.confirm(ctx, est); cerr != nil || !ok {
			a.transition(StateAborted)
			if cerr != nil {
				return nil, fmt.Errorf("%w: %w", ErrAborted, cerr)
			}
			return nil, fmt.Errorf("%w: low-accuracy location declined", ErrAborted)
		}

	case ctx.Err() != nil:
		a.transition(StateAborted)
		return nil, fmt.Errorf("%w: %w", ErrAborted, ctx.Err())

	default:
		if bad := invalidManualInput(err); bad != nil {
			a.transition(StateAborted)
			return nil, fmt.Errorf("%w: %w", ErrAborted, bad)
		}
		a.transition(StateFailed)
		outcome = Failed(err)
		if a.Justify != nil {
			reason, jerr := a.Justify(ctx, err)
			if jerr != nil {
				a.transition(StateAborted)
				return nil, fmt.Errorf("%w: %w", ErrAborted, jerr)
			}
			justification = reason
		}
		if strings.TrimSpace(justification) == "" {
			a.transition(StateAborted)
			return nil, fmt.Errorf("%w: %w", ErrAborted, ErrMissingJustification)
		}
	}

	a.transition(StateSubmitting)
	res, err := a.Submitter.Submit(ctx, payload, outcome, justification)
	if err != nil {
		a.transition(StateRejected)
		return nil, err
	}
	a.transition(StateAccepted)
	return res, nil
}

func (a *Attempt) confirm(ctx context.Context, est geo.Estimate) (bool, error) {
	threshold := a.LowTrustThreshold
	if threshold <= 0 {
		threshold = LowTrustAccuracyMeters
	}
	if a.ConfirmLowTrust == nil || !est.LowTrust(threshold) {
		return true, nil
	}
	return a.ConfirmLowTrust(ctx, est)
}

// invalidManualInput returns the coordinate error when the failure came
// from coordinates the user typed. Those are rejected outright, never
// turned into a no-location check-in.
func invalidManualInput(err error) *geo.InvalidCoordinateError {
	var bad *geo.InvalidCoordinateError
	var exhausted *locate.AllSourcesExhaustedError
	if !errors.As(err, &exhausted) {
		if errors.As(err, &bad) {
			return bad
		}
		return nil
	}
	for _, f := range exhausted.Attempts {
		if f.Source == geo.SourceManual && errors.As(f.Err, &bad) {
			return bad
		}
	}
	if exhausted.Manual != nil && errors.As(exhausted.Manual, &bad) {
		return bad
	}
	return nil
}
