package spend

// Status is the aggregate outcome of the stakeholder vote on a spend.
type Status int

const (
	StatusPending Status = iota
	StatusAccepted
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Accepted maps the status onto the wire tri-state: nil while pending.
func (s Status) Accepted() *bool {
	switch s {
	case StatusAccepted:
		accepted := true
		return &accepted
	case StatusRejected:
		accepted := false
		return &accepted
	default:
		return nil
	}
}

// Votes holds one optional vote per party. Slot i belongs to party i+1.
type Votes [PartyCount]*bool

// Tally resolves votes. A spend is rejected only once every party has voted,
// even if an earlier refusal already decides the outcome.
func (v Votes) Tally() Status {
	for _, vote := range v {
		if vote == nil {
			return StatusPending
		}
	}
	for _, vote := range v {
		if !*vote {
			return StatusRejected
		}
	}
	return StatusAccepted
}

func (v Votes) Cast() int {
	count := 0
	for _, vote := range v {
		if vote != nil {
			count++
		}
	}
	return count
}
