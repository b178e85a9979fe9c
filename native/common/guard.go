package common

import "errors"

// ErrModulePaused is returned by Guard when the targeted module is paused.
var ErrModulePaused = errors.New("module paused")

// Module names used for pause switches.
const (
	ModuleAssertions = "assertions"
	ModuleChallenges = "challenges"
	ModuleReputation = "reputation"
	ModuleTopics     = "topics"
	ModuleLedger     = "ledger"
	ModuleGov        = "gov"
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
