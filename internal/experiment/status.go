package experiment

// transitions lists the statuses reachable from each status.
// DONE is terminal.
var transitions = map[Status][]Status{
	StatusInitial: {StatusInQueue},
	StatusInQueue: {StatusRunning, StatusFailed},
	StatusRunning: {StatusDone, StatusFailed},
	StatusFailed:  {StatusInQueue},
}

// CanTransitionTo reports whether an experiment in status s may move to next.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}
