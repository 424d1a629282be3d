package auth

// State is a step of a single authorization run
type State int

const (
	Idle State = iota
	FetchingPublicKey
	FetchingChallenge
	EncryptingSecret
	ExchangingSession
	Persisting
	Connected
	Failed
)

var stateNames = map[State]string{
	Idle:              "idle",
	FetchingPublicKey: "fetching_public_key",
	FetchingChallenge: "fetching_challenge",
	EncryptingSecret:  "encrypting_secret",
	ExchangingSession: "exchanging_session",
	Persisting:        "persisting",
	Connected:         "connected",
	Failed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether a run ends in s
func (s State) IsTerminal() bool {
	return s == Connected || s == Failed
}

// Observer is notified on every state transition of a run
type Observer func(State)
