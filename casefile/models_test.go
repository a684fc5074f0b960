package casefile

import (
	"strings"
	"testing"

	"arbflow/fault"
)

func TestValidateLink(t *testing.T) {
	if err := ValidateLink(strings.Repeat("Q", 46)); err != nil {
		t.Fatalf("46-char link: unexpected error: %v", err)
	}
	if err := ValidateLink(strings.Repeat("b", 49)); err != nil {
		t.Fatalf("49-char link: unexpected error: %v", err)
	}

	for _, link := range []string{"", strings.Repeat("Q", 45), strings.Repeat("Q", 47), strings.Repeat("Q", 50)} {
		err := ValidateLink(link)
		if err == nil {
			t.Fatalf("link of length %d: expected error", len(link))
		}
		if fault.KindOf(err) != fault.KindPrecondition {
			t.Fatalf("link of length %d: expected precondition fault, got %v", len(link), err)
		}
	}
}

func TestValidateRationale(t *testing.T) {
	if err := ValidateRationale("repeated conflicts of interest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateRationale(strings.Repeat("x", 254)); err != nil {
		t.Fatalf("254 chars should be accepted: %v", err)
	}
	if err := ValidateRationale(""); err == nil {
		t.Fatal("empty rationale: expected error")
	}
	if err := ValidateRationale(strings.Repeat("x", 255)); err == nil {
		t.Fatal("255 chars: expected error")
	}
}

func TestValidateCategory(t *testing.T) {
	for c := int16(CategoryUndecided); c <= CategoryMisc; c++ {
		if err := ValidateCategory(c); err != nil {
			t.Fatalf("category %d: unexpected error: %v", c, err)
		}
	}
	for _, c := range []int16{0, -1, CategoryMisc + 1} {
		if err := ValidateCategory(c); err == nil {
			t.Fatalf("category %d: expected error", c)
		}
	}
}

func TestValidateLangCodes(t *testing.T) {
	if err := ValidateLangCodes([]int16{0, 1, 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateLangCodes([]int16{1, -2}); err == nil {
		t.Fatal("negative code: expected error")
	}
	if err := ValidateLangCodes([]int16{3, 3}); err == nil {
		t.Fatal("duplicate code: expected error")
	}
}

func TestClaimSettled(t *testing.T) {
	for status, want := range map[ClaimStatus]bool{
		ClaimFiled:     false,
		ClaimResponded: false,
		ClaimAccepted:  true,
		ClaimDismissed: true,
	} {
		if got := (Claim{Status: status}).Settled(); got != want {
			t.Fatalf("Settled() for %s: got %v want %v", status, got, want)
		}
	}
}
