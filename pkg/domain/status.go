package domain

// RequestStatus enumerates waste request workflow states.
type RequestStatus string

// Canonical request statuses. StatusAssigned is a legacy spelling of
// StatusInProgress kept for records written by the generic status path.
const (
	StatusPending    RequestStatus = "pending"
	StatusAssigned   RequestStatus = "assigned"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
)

// Valid reports whether s is one of the recognised statuses, legacy alias included.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Normalize folds the legacy alias into its canonical status.
func (s RequestStatus) Normalize() RequestStatus {
	if s == StatusAssigned {
		return StatusInProgress
	}
	return s
}

// Terminal reports whether no further transitions are allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var requestTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the request state machine.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	from, target := s.Normalize(), to.Normalize()
	for _, next := range requestTransitions[from] {
		if next == target {
			return true
		}
	}
	return false
}

// Priority orders statuses for collector dashboards: pending first, then
// in progress, then completed, then everything else.
func (s RequestStatus) Priority() int {
	switch s.Normalize() {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 3
	}
}
