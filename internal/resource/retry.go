package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docprov/internal/logging"
	"docprov/internal/metrics"

	"k8s.io/utils/clock"
)

const (
	// DefaultMaxAttempts bounds a mutation unless the policy is unbounded
	DefaultMaxAttempts = 10

	// DefaultConflictDelay is waited after a conflict that carries no retry hint
	DefaultConflictDelay = 15 * time.Second
)

// RetryPolicy bounds how long a mutation keeps retrying conflicts
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, ignored when Unbounded
	MaxAttempts int `json:"maxAttempts"`

	// MaxElapsed stops retrying once the next wait would pass it; zero disables it
	MaxElapsed time.Duration `json:"maxElapsed,omitempty"`

	// DefaultDelay is used when a conflict carries no positive retry hint
	DefaultDelay time.Duration `json:"defaultDelay"`

	// Unbounded removes the attempt cap
	Unbounded bool `json:"unbounded,omitempty"`
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		DefaultDelay: DefaultConflictDelay,
	}
}

// Validate checks the policy for nonsensical values
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative: %d", p.MaxAttempts)
	}
	if p.MaxElapsed < 0 {
		return fmt.Errorf("max elapsed cannot be negative: %s", p.MaxElapsed)
	}
	if p.DefaultDelay < 0 {
		return fmt.Errorf("default delay cannot be negative: %s", p.DefaultDelay)
	}
	if p.MaxAttempts == 0 && !p.Unbounded {
		return fmt.Errorf("max attempts must be positive unless the policy is unbounded")
	}
	return nil
}

// MutationState is a state of the retry state machine
type MutationState string

const (
	MutationAttempting MutationState = "attempting"
	MutationWaiting    MutationState = "waiting"
	MutationDone       MutationState = "done"
	MutationFailed     MutationState = "failed"
	MutationCancelled  MutationState = "cancelled"
)

// Transition is reported to the observer on every state change
type Transition struct {
	State   MutationState
	Attempt int
	Wait    time.Duration
	Err     error
}

// Observer receives state transitions. It runs synchronously.
type Observer func(Transition)

// MutationReport summarises a finished mutation
type MutationReport struct {
	State    MutationState
	Attempts int
	Waits    []time.Duration
}

// Sleeper waits for a duration or until ctx is done
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type clockSleeper struct {
	clock clock.Clock
}

// NewClockSleeper returns a Sleeper driven by timers of c
func NewClockSleeper(c clock.Clock) Sleeper {
	return &clockSleeper{clock: c}
}

// Sleep returns ctx.Err() if ctx is done before d elapses
func (s *clockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// MutatorOption configures a RetryingMutator
type MutatorOption func(*RetryingMutator)

// WithClock sets the clock used for waits and the elapsed cap
func WithClock(c clock.Clock) MutatorOption {
	return func(m *RetryingMutator) {
		m.clock = c
		m.sleeper = NewClockSleeper(c)
	}
}

// WithSleeper overrides how waits are performed
func WithSleeper(s Sleeper) MutatorOption {
	return func(m *RetryingMutator) {
		m.sleeper = s
	}
}

// WithObserver registers a transition observer
func WithObserver(o Observer) MutatorOption {
	return func(m *RetryingMutator) {
		m.observer = o
	}
}

// RetryingMutator runs a mutation, repeating it while the service answers
// with a conflict. Between attempts it waits for the service's retry hint, or
// the policy's default delay when there is none. Any other failure ends the
// mutation immediately.
type RetryingMutator struct {
	policy   RetryPolicy
	clock    clock.Clock
	sleeper  Sleeper
	observer Observer
}

// NewRetryingMutator creates a RetryingMutator for a validated policy
func NewRetryingMutator(policy RetryPolicy, opts ...MutatorOption) (*RetryingMutator, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	m := &RetryingMutator{
		policy: policy,
		clock:  clock.RealClock{},
	}
	m.sleeper = NewClockSleeper(m.clock)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Policy returns the mutator's policy
func (m *RetryingMutator) Policy() RetryPolicy {
	return m.policy
}

func (m *RetryingMutator) transition(report *MutationReport, t Transition) {
	report.State = t.State
	switch t.State {
	case MutationAttempting:
		metrics.RecordMutationAttempt()
	case MutationWaiting:
		metrics.RecordConflictWait(t.Wait)
	default:
		metrics.RecordMutationOutcome(string(t.State))
	}
	if m.observer != nil {
		m.observer(t)
	}
}

// Do runs fn until it succeeds, fails with a non-conflict error, exhausts the
// policy or ctx is cancelled. Errors other than conflicts are returned
// unchanged.
func (m *RetryingMutator) Do(ctx context.Context, fn func(ctx context.Context) error) (MutationReport, error) {
	report := MutationReport{}
	start := m.clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			return m.cancelled(&report, err)
		}

		report.Attempts++
		m.transition(&report, Transition{State: MutationAttempting, Attempt: report.Attempts})

		err := fn(ctx)
		if err == nil {
			m.transition(&report, Transition{State: MutationDone, Attempt: report.Attempts})
			return report, nil
		}

		if !IsConflict(err) {
			logging.Debug("Retry", "attempt %d failed without conflict: %v", report.Attempts, err)
			m.transition(&report, Transition{State: MutationFailed, Attempt: report.Attempts, Err: err})
			return report, err
		}

		wait := RetryHint(err)
		if wait <= 0 {
			wait = m.policy.DefaultDelay
		}

		if !m.policy.Unbounded && report.Attempts >= m.policy.MaxAttempts {
			return m.exhausted(&report, err)
		}
		if m.policy.MaxElapsed > 0 && m.clock.Since(start)+wait > m.policy.MaxElapsed {
			return m.exhausted(&report, err)
		}

		logging.Info("Retry", "attempt %d conflicted, retrying in %s", report.Attempts, wait)
		report.Waits = append(report.Waits, wait)
		m.transition(&report, Transition{State: MutationWaiting, Attempt: report.Attempts, Wait: wait, Err: err})

		if err := m.sleeper.Sleep(ctx, wait); err != nil {
			return m.cancelled(&report, err)
		}
	}
}

func (m *RetryingMutator) exhausted(report *MutationReport, last error) (MutationReport, error) {
	err := fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, report.Attempts, last)
	logging.Error("Retry", last, "giving up after %d attempts", report.Attempts)
	m.transition(report, Transition{State: MutationFailed, Attempt: report.Attempts, Err: err})
	return *report, err
}

func (m *RetryingMutator) cancelled(report *MutationReport, cause error) (MutationReport, error) {
	err := fmt.Errorf("%w: %w", ErrCancelled, cause)
	logging.Warn("Retry", "mutation cancelled after %d attempts", report.Attempts)
	m.transition(report, Transition{State: MutationCancelled, Attempt: report.Attempts, Err: err})
	return *report, err
}

// Mutate runs fn through m and returns its value on success
func Mutate[T any](ctx context.Context, m *RetryingMutator, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	_, err := m.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// IsCancelled reports whether err ended a mutation through cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
