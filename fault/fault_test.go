package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWalksChain(t *testing.T) {
	base := Precondition("casefile: case not found")
	wrapped := fmt.Errorf("casefile: get case: %w", base)

	if got := KindOf(wrapped); got != KindPrecondition {
		t.Fatalf("got %s want precondition", got)
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("expected sentinel to survive wrapping")
	}
}

func TestKindOfUnknown(t *testing.T) {
	if got := KindOf(errors.New("connection reset")); got != KindUnknown {
		t.Fatalf("got %s want unknown", got)
	}
	if IsRejection(errors.New("connection reset")) {
		t.Fatal("infrastructure failures are not rejections")
	}
	if !IsRejection(Authorization("nope")) {
		t.Fatal("authorization failures are rejections")
	}
}

func TestDependencyf(t *testing.T) {
	cause := errors.New("status 502")
	err := Dependencyf("oracle: fetch median: %w", cause)

	if KindOf(err) != KindDependency {
		t.Fatalf("got %s want dependency", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to survive wrapping")
	}
}
