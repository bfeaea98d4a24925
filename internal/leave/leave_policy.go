package leave

// Policy holds the team-wide limits the engine enforces.
type Policy struct {
	TotalEngineers    int
	AvailabilityFloor int

	// RejectSelfOverlap refuses a new request that overlaps one of the
	// employee's own approved or approving requests.
	RejectSelfOverlap bool

	// ConflictRetries bounds re-reads after an optimistic write conflict.
	ConflictRetries int
}

func DefaultPolicy() Policy {
	return Policy{
		TotalEngineers:    30,
		AvailabilityFloor: 20,
		RejectSelfOverlap: true,
		ConflictRetries:   5,
	}
}

// MaxOnLeave is the number of engineers that may be on leave at once.
func (p Policy) MaxOnLeave() int {
	return p.TotalEngineers - p.AvailabilityFloor
}
