package models

// RequestStatus is the lifecycle state of a song request. Transitions are
// validated centrally through CanTransition; played, expired and rejected
// are terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusPlayed   RequestStatus = "played"
	StatusExpired  RequestStatus = "expired"
)

var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusPlayed, StatusRejected},
	StatusRejected: {},
	StatusPlayed:   {},
	StatusExpired:  {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status permits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}
