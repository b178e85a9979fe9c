package config

// Pauses toggles the mutating entry points of each engine module. A paused
// module rejects writes while reads keep serving.
type Pauses struct {
	Assertions bool
	Challenges bool
	Reputation bool
	Topics     bool
	Ledger     bool
	Gov        bool
}
