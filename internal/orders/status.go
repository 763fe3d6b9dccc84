package orders

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
)

// validNext is the only place that decides which status may follow which.
var validNext = map[Status]map[Status]bool{
	StatusSubmitted: {StatusApproved: true, StatusRejected: true},
	StatusApproved:  {StatusShipped: true},
	StatusShipped:   {StatusCompleted: true},
	StatusRejected:  {},
	StatusCompleted: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// revenueStatuses are the states whose totals count as seller revenue.
var revenueStatuses = map[Status]bool{
	StatusApproved:  true,
	StatusShipped:   true,
	StatusCompleted: true,
}

func (s Status) CountsAsRevenue() bool { return revenueStatuses[s] }
