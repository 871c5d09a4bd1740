package domain

// RegistryState tracks the lifecycle of the process-wide tool registry.
type RegistryState string

const (
	RegistryUninitialized RegistryState = "uninitialized"
	RegistryInitializing  RegistryState = "initializing"
	RegistryReady         RegistryState = "ready"
	RegistryDegraded      RegistryState = "degraded"
	RegistryShutDown      RegistryState = "shut_down"
)

func (s RegistryState) Valid() bool {
	switch s {
	case RegistryUninitialized, RegistryInitializing, RegistryReady,
		RegistryDegraded, RegistryShutDown:
		return true
	}
	return false
}

// Usable reports whether tools can be served in this state. Both READY and
// DEGRADED are usable; DEGRADED means local tools only.
func (s RegistryState) Usable() bool {
	return s == RegistryReady || s == RegistryDegraded
}

// ConsentOutcome is the result of a consent round-trip with the user.
// Timed-out is treated identically to denied for execution purposes but is
// logged distinctly.
type ConsentOutcome string

const (
	ConsentApproved ConsentOutcome = "approved"
	ConsentDenied   ConsentOutcome = "denied"
	ConsentTimedOut ConsentOutcome = "timed_out"
)

func (o ConsentOutcome) Valid() bool {
	switch o {
	case ConsentApproved, ConsentDenied, ConsentTimedOut:
		return true
	}
	return false
}

// Granted reports whether the wrapped call may proceed.
func (o ConsentOutcome) Granted() bool {
	return o == ConsentApproved
}

// ToolOrigin identifies where a tool in the aggregate registry came from.
type ToolOrigin string

const (
	OriginLocal  ToolOrigin = "local"
	OriginRemote ToolOrigin = "remote"
)

func (o ToolOrigin) Valid() bool {
	return o == OriginLocal || o == OriginRemote
}

// RunStatus tracks a single agent run within a chat session.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunStreaming RunStatus = "streaming"
	RunFinished  RunStatus = "finished"
	RunFailed    RunStatus = "failed"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunStreaming, RunFinished, RunFailed:
		return true
	}
	return false
}
