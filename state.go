package auth

// Phase is the lifecycle position of a SessionStore.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionState is an immutable snapshot of the store.
//
// Ready flips from false to true once, when the first session probe settles,
// and stays true afterwards, including after the store is terminated.
// Version grows with every committed change so observers can drop stale
// snapshots.
type SessionState struct {
	Phase    Phase     `json:"phase"`
	Ready    bool      `json:"ready"`
	Identity *Identity `json:"identity,omitempty"`
	Version  uint64    `json:"version"`
}

// SignedIn reports whether an identity is present.
func (s SessionState) SignedIn() bool {
	return s.Identity != nil
}

// StateReader exposes the current session state.
type StateReader interface {
	State() SessionState
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
