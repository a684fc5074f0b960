package election

import "sort"

// Outcome is the effect-free result of resolving a final tally. The caller
// installs winners, prunes unseated nominees, and opens the runoff; nothing
// in here touches storage.
type Outcome struct {
	// Winners take a seat now, in descending tally order.
	Winners []Candidate
	// Unseated lose their nominee registration.
	Unseated []Candidate
	// Tied stay nominees and contest the runoff.
	Tied []Candidate
	// RunoffSeats is how many seats the runoff contests; zero means no
	// runoff even when Tied is non-empty.
	RunoffSeats int
}

// ResolveTally applies the tie-break rule to a final tally. Candidates are
// ranked by tally descending; a tie crossing the seat boundary pulls every
// candidate at the boundary tally out of contention and into a runoff for
// the seats they contested. A zero-tally candidate at the boundary can never
// be tied, so a fully decisive vote seats exactly availableSeats winners.
func ResolveTally(candidates []Candidate, availableSeats int) Outcome {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Tally != ranked[j].Tally {
			return ranked[i].Tally > ranked[j].Tally
		}
		return ranked[i].Account < ranked[j].Account
	})

	if availableSeats >= len(ranked) {
		return Outcome{Winners: ranked}
	}

	seatsOccupied := availableSeats
	var tied []Candidate

	cutoff := ranked[availableSeats]
	if cutoff.Tally > 0 {
		for i := availableSeats + 1; i < len(ranked) && ranked[i].Tally == cutoff.Tally; i++ {
			tied = append(tied, ranked[i])
		}
		for i := availableSeats - 1; i >= 0 && ranked[i].Tally == cutoff.Tally; i-- {
			tied = append(tied, ranked[i])
			seatsOccupied--
		}
		if len(tied) > 0 {
			tied = append(tied, cutoff)
		}
	}

	out := Outcome{
		Winners: ranked[:seatsOccupied],
		Tied:    tied,
	}
	if len(tied) > 0 {
		out.RunoffSeats = availableSeats - seatsOccupied
	}

	inTied := make(map[string]bool, len(tied))
	for _, c := range tied {
		inTied[c.Account] = true
	}
	for _, c := range ranked[seatsOccupied:] {
		if !inTied[c.Account] {
			out.Unseated = append(out.Unseated, c)
		}
	}
	return out
}
