package election

import (
	"reflect"
	"testing"
)

func tallies(cs []Candidate) map[string]int64 {
	out := make(map[string]int64, len(cs))
	for _, c := range cs {
		out[c.Account] = c.Tally
	}
	return out
}

func accounts(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Account)
	}
	return out
}

func candidatesOf(votes map[string]int64) []Candidate {
	out := make([]Candidate, 0, len(votes))
	for account, tally := range votes {
		out = append(out, Candidate{Account: account, Tally: tally})
	}
	return out
}

func TestResolveTally_DecisiveVote(t *testing.T) {
	out := ResolveTally(candidatesOf(map[string]int64{
		"alice": 100, "bob": 90, "carol": 80, "dave": 70,
	}), 2)

	if got, want := accounts(out.Winners), []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("winners: got %v want %v", got, want)
	}
	if got, want := accounts(out.Unseated), []string{"carol", "dave"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unseated: got %v want %v", got, want)
	}
	if len(out.Tied) != 0 || out.RunoffSeats != 0 {
		t.Fatalf("expected no runoff, got tied=%v seats=%d", accounts(out.Tied), out.RunoffSeats)
	}
}

func TestResolveTally_SeatsForEveryone(t *testing.T) {
	out := ResolveTally(candidatesOf(map[string]int64{"alice": 10, "bob": 5}), 5)

	if got, want := accounts(out.Winners), []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("winners: got %v want %v", got, want)
	}
	if len(out.Unseated) != 0 || len(out.Tied) != 0 || out.RunoffSeats != 0 {
		t.Fatalf("expected everyone seated, got %+v", out)
	}
}

func TestResolveTally_TieBelowBoundaryNeedsNoRunoff(t *testing.T) {
	// The boundary candidates D and E tie with each other but every seat
	// is still decided, so they contest no seats.
	out := ResolveTally(candidatesOf(map[string]int64{
		"alice": 100, "bob": 90, "carol": 90, "dave": 80, "erin": 80, "frank": 70,
	}), 3)

	if got, want := accounts(out.Winners), []string{"alice", "bob", "carol"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("winners: got %v want %v", got, want)
	}
	tied := tallies(out.Tied)
	if len(tied) != 2 || tied["dave"] != 80 || tied["erin"] != 80 {
		t.Fatalf("tied: got %v want dave and erin at 80", accounts(out.Tied))
	}
	if out.RunoffSeats != 0 {
		t.Fatalf("runoff seats: got %d want 0", out.RunoffSeats)
	}
	if got, want := accounts(out.Unseated), []string{"frank"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unseated: got %v want %v", got, want)
	}
}

func TestResolveTally_TieAcrossBoundaryOpensRunoff(t *testing.T) {
	out := ResolveTally(candidatesOf(map[string]int64{
		"alice": 100, "bob": 80, "carol": 80, "dave": 60,
	}), 2)

	if got, want := accounts(out.Winners), []string{"alice"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("winners: got %v want %v", got, want)
	}
	tied := tallies(out.Tied)
	if len(tied) != 2 || tied["bob"] != 80 || tied["carol"] != 80 {
		t.Fatalf("tied: got %v want bob and carol at 80", accounts(out.Tied))
	}
	if out.RunoffSeats != 1 {
		t.Fatalf("runoff seats: got %d want 1", out.RunoffSeats)
	}
	if got, want := accounts(out.Unseated), []string{"dave"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unseated: got %v want %v", got, want)
	}
}

func TestResolveTally_AllSeatsTied(t *testing.T) {
	out := ResolveTally(candidatesOf(map[string]int64{
		"alice": 50, "bob": 50, "carol": 50,
	}), 2)

	if len(out.Winners) != 0 {
		t.Fatalf("winners: got %v want none", accounts(out.Winners))
	}
	if len(out.Tied) != 3 {
		t.Fatalf("tied: got %v want all three", accounts(out.Tied))
	}
	if out.RunoffSeats != 2 {
		t.Fatalf("runoff seats: got %d want 2", out.RunoffSeats)
	}
	if len(out.Unseated) != 0 {
		t.Fatalf("unseated: got %v want none", accounts(out.Unseated))
	}
}

func TestResolveTally_ZeroTallyBoundaryIsNotATie(t *testing.T) {
	// Nobody voted. The alphabetical ranking is arbitrary but a zero tally
	// never forms a runoff; the first availableSeats candidates win.
	out := ResolveTally(candidatesOf(map[string]int64{
		"alice": 0, "bob": 0, "carol": 0,
	}), 2)

	if got, want := accounts(out.Winners), []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("winners: got %v want %v", got, want)
	}
	if len(out.Tied) != 0 || out.RunoffSeats != 0 {
		t.Fatalf("expected no runoff on zero tallies, got %+v", out)
	}
	if got, want := accounts(out.Unseated), []string{"carol"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unseated: got %v want %v", got, want)
	}
}

func TestResolveTally_TieOrderIsDeterministic(t *testing.T) {
	votes := map[string]int64{"alice": 90, "bob": 70, "carol": 70, "dave": 70}
	first := ResolveTally(candidatesOf(votes), 2)
	for i := 0; i < 10; i++ {
		again := ResolveTally(candidatesOf(votes), 2)
		if !reflect.DeepEqual(accounts(first.Winners), accounts(again.Winners)) {
			t.Fatalf("winners changed across runs: %v vs %v", accounts(first.Winners), accounts(again.Winners))
		}
		if first.RunoffSeats != again.RunoffSeats {
			t.Fatalf("runoff seats changed across runs: %d vs %d", first.RunoffSeats, again.RunoffSeats)
		}
	}
}
