package server

// State is the listener lifecycle:
//
//	Starting → Accepting ⇄ Handling → (Stopped | Faulted)
//
// Handling means at least one connection is in flight while the loop keeps
// accepting. Stopped and Faulted are terminal.
type State int

const (
	StateStarting State = iota
	StateAccepting
	StateHandling
	StateStopped
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAccepting:
		return "accepting"
	case StateHandling:
		return "handling"
	case StateStopped:
		return "stopped"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateStopped || s == StateFaulted
}

// setState moves to s unless a terminal state was already reached.
func (l *Listener) setState(s State) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.setStateLocked(s)
}

func (l *Listener) setStateLocked(s State) {
	if l.state.Terminal() {
		return
	}
	if s == StateAccepting && l.inflight > 0 {
		s = StateHandling
	}
	l.state = s
	l.metrics.SetState(int(s))
}

func (l *Listener) finish(s State, err error) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.lastErr = err
	l.setStateLocked(s)
}

func (l *Listener) beginHandling() {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.inflight++
	if l.state == StateAccepting {
		l.setStateLocked(StateHandling)
	}
}

func (l *Listener) endHandling() {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.inflight--
	if l.inflight == 0 && l.state == StateHandling {
		l.setStateLocked(StateAccepting)
	}
}
