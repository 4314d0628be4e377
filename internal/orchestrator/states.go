package orchestrator

// State is a stage of the promotion state machine. The happy path runs
// RESOLVING through DONE in order; ROLLING_BACK/FAILED is reachable only
// from BUILDING, AWAITING_HEALTH, and SMOKE_TESTING. Once SWITCHING begins
// there is no rollback path.
type State string

const (
	StateResolving      State = "RESOLVING"
	StateBuilding       State = "BUILDING"
	StateAwaitingHealth State = "AWAITING_HEALTH"
	StateSmokeTesting   State = "SMOKE_TESTING"
	StateSwitching      State = "SWITCHING"
	StateDraining       State = "DRAINING"
	StateDone           State = "DONE"
	StateRollingBack    State = "ROLLING_BACK"
	StateFailed         State = "FAILED"
)
