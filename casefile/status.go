package casefile

var transitions = map[Status][]Status{
	StatusSetup:         {StatusAwaitingArbs},
	StatusAwaitingArbs:  {StatusArbsAssigned, StatusCancelled},
	StatusArbsAssigned:  {StatusInvestigation, StatusMistrial},
	StatusInvestigation: {StatusDecision, StatusMistrial},
	StatusDecision:      {StatusEnforcement, StatusDismissed, StatusMistrial},
	StatusEnforcement:   {StatusResolved},
}

// CanTransition reports whether prev may move directly to next. The database
// enforces the same graph through case_validate_transition.
func CanTransition(prev, next Status) bool {
	for _, s := range transitions[prev] {
		if s == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}

// Recusable marks the statuses an assigned arbitrator can still walk away
// from, which are exactly the ones that exit to mistrial.
func Recusable(s Status) bool {
	return CanTransition(s, StatusMistrial)
}
