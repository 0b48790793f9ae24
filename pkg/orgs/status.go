package orgs

// statusTransitions is the organization lifecycle state machine. CANCELLED is
// absorbing: no outgoing transitions.
var statusTransitions = map[OrgStatus][]OrgStatus{
	OrgStatusPending:   {OrgStatusTrial, OrgStatusActive, OrgStatusCancelled},
	OrgStatusTrial:     {OrgStatusActive, OrgStatusCancelled},
	OrgStatusActive:    {OrgStatusSuspended, OrgStatusCancelled},
	OrgStatusSuspended: {OrgStatusActive, OrgStatusCancelled},
	OrgStatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is legal
func CanTransition(from, to OrgStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidStatusTransitionError for illegal moves
func ValidateTransition(from, to OrgStatus) error {
	if !CanTransition(from, to) {
		return &InvalidStatusTransitionError{From: from, To: to}
	}
	return nil
}
