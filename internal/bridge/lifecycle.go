package bridge

import (
	"fmt"
	"sync"
	"time"
)

// State is a bridge lifecycle state.
type State int

const (
	StateUnstarted State = iota
	StateConnecting
	StateRunning
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// transitions lists every allowed move. TERMINATED has no exits.
var transitions = map[State][]State{
	StateUnstarted:    {StateConnecting},
	StateConnecting:   {StateRunning, StateTerminated},
	StateRunning:      {StateReconnecting, StateTerminated},
	StateReconnecting: {StateRunning, StateTerminated},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle tracks the broker session and decides when a disconnect is
// fatal.
//
// A disconnect less than minSession after the last connect terminates
// immediately. Otherwise the lifecycle moves to RECONNECTING and terminates
// if no reconnect arrives within grace. A zero minSession disables the
// flapping check; a zero grace makes every mid-session disconnect fatal.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Lifecycle struct {
	mu          sync.Mutex
	state       State
	err         error
	connectedAt time.Time
	graceTimer  *time.Timer
	graceGen    int
	done        chan struct{}

	grace      time.Duration
	minSession time.Duration
	now        func() time.Time
	onChange   func(from, to State)
}

// NewLifecycle creates a lifecycle in StateUnstarted.
func NewLifecycle(grace, minSession time.Duration) *Lifecycle {
	return &Lifecycle{
		state:      StateUnstarted,
		done:       make(chan struct{}),
		grace:      grace,
		minSession: minSession,
		now:        time.Now,
	}
}

// OnChange registers a callback run after every transition. It is called
// without the lifecycle lock held.
func (l *Lifecycle) OnChange(fn func(from, to State)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed when the lifecycle reaches StateTerminated.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Err returns the termination cause, or nil while not terminated and after
// a graceful stop.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Begin moves UNSTARTED to CONNECTING.
func (l *Lifecycle) Begin() error {
	return l.apply(StateConnecting, nil)
}

// Connected records a successful (re)connect. It moves CONNECTING or
// RECONNECTING to RUNNING and cancels any pending grace timer. Called in
// RUNNING it only refreshes the session start.
func (l *Lifecycle) Connected() error {
	l.mu.Lock()
	if l.state == StateRunning {
		l.connectedAt = l.now()
		l.mu.Unlock()
		return nil
	}
	notify, err := l.transitionLocked(StateRunning, nil)
	l.mu.Unlock()
	notify()
	return err
}

// Disconnected records a lost connection.
//
// Returns the state entered: StateReconnecting, StateTerminated, or the
// unchanged state when the lifecycle was not connecting or running.
func (l *Lifecycle) Disconnected() State {
	l.mu.Lock()
	var to State
	var cause error
	switch l.state {
	case StateConnecting:
		to, cause = StateTerminated, fmt.Errorf("%w: connection lost during startup", ErrConnectFailed)
	case StateRunning:
		session := l.now().Sub(l.connectedAt)
		switch {
		case l.minSession > 0 && session < l.minSession:
			to, cause = StateTerminated, fmt.Errorf("%w: session lasted %v", ErrSessionTooShort, session.Round(time.Millisecond))
		case l.grace <= 0:
			to, cause = StateTerminated, fmt.Errorf("%w: no grace period configured", ErrReconnectTimeout)
		default:
			to = StateReconnecting
		}
	default:
		state := l.state
		l.mu.Unlock()
		return state
	}

	notify, _ := l.transitionLocked(to, cause)
	l.mu.Unlock()
	notify()
	return to
}

// Terminate moves any live state to TERMINATED with cause. A nil cause
// marks a graceful stop. Terminating twice is a no-op.
func (l *Lifecycle) Terminate(cause error) {
	_ = l.apply(StateTerminated, cause)
}

func (l *Lifecycle) apply(to State, cause error) error {
	l.mu.Lock()
	notify, err := l.transitionLocked(to, cause)
	l.mu.Unlock()
	notify()
	return err
}

// transitionLocked performs one transition and its side effects. The
// caller holds l.mu and must call the returned notify after unlocking.
func (l *Lifecycle) transitionLocked(to State, cause error) (func(), error) {
	from := l.state
	if from == StateTerminated && to == StateTerminated {
		return func() {}, nil
	}
	if !allowed(from, to) {
		return func() {}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	l.state = to
	if l.graceTimer != nil {
		l.graceTimer.Stop()
		l.graceTimer = nil
	}

	switch to {
	case StateRunning:
		l.connectedAt = l.now()
	case StateReconnecting:
		l.graceGen++
		gen := l.graceGen
		l.graceTimer = time.AfterFunc(l.grace, func() { l.graceExpired(gen) })
	case StateTerminated:
		l.err = cause
		close(l.done)
	}

	onChange := l.onChange
	return func() {
		if onChange != nil {
			onChange(from, to)
		}
	}, nil
}

// graceExpired fires for the reconnect window numbered gen. A timer that
// lost the race with Stop belongs to an older window and is ignored.
func (l *Lifecycle) graceExpired(gen int) {
	l.mu.Lock()
	if l.state != StateReconnecting || gen != l.graceGen {
		l.mu.Unlock()
		return
	}
	notify, _ := l.transitionLocked(StateTerminated,
		fmt.Errorf("%w: not reconnected within %v", ErrReconnectTimeout, l.grace))
	l.mu.Unlock()
	notify()
}
