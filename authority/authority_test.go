package authority

import "testing"

func TestThreshold(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 1, 4: 3, 5: 4, 6: 5, 9: 7, 21: 15}
	for n, want := range cases {
		if got := Threshold(n); got != want {
			t.Fatalf("Threshold(%d): got %d want %d", n, got, want)
		}
	}
}
