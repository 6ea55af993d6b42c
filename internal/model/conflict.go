package model

// Strategy names how a conflict between a local and a remote snapshot of
// the same entity was resolved.
type Strategy string

const (
	// StrategyLocalWins keeps the local snapshot (local was strictly newer).
	StrategyLocalWins Strategy = "localWins"

	// StrategyRemoteWins keeps the remote snapshot. Equal timestamps also
	// resolve this way, so that multi-device clock skew converges on a
	// single canonical source instead of alternating.
	StrategyRemoteWins Strategy = "remoteWins"

	// StrategyMerge is a declared extension point; no merge is implemented.
	StrategyMerge Strategy = "merge"

	// StrategyUserChoice is a declared extension point; the engine never
	// prompts.
	StrategyUserChoice Strategy = "userChoice"
)

// ConflictResolution pairs the local and remote snapshots of one entity
// with the resolved value and the strategy applied.
type ConflictResolution struct {
	Strategy Strategy
	Local    Entity
	Remote   Entity
	Resolved Entity
}
