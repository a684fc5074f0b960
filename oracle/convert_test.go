package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"arbflow/fault"
	"arbflow/ledger"
)

func TestConvertUSD(t *testing.T) {
	// 25.0000 USD at a median of 0.5000 reference units per USD is
	// 50.0000 reference units.
	got, err := ConvertUSD(25*ledger.AmountScale, ledger.AmountScale/2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := int64(50 * ledger.AmountScale); got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	if _, err := ConvertUSD(25*ledger.AmountScale, 0); err == nil {
		t.Fatal("zero rate: expected error")
	}
	if _, err := ConvertUSD(25*ledger.AmountScale, -1); fault.KindOf(err) != fault.KindDependency {
		t.Fatalf("negative rate: expected dependency fault, got %v", err)
	}
}

func TestClientMedianRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/datapoints/tlosusd/median" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"pair": "tlosusd", "median": 4350})
	}))
	defer srv.Close()

	rate, err := NewClient(srv.URL, "tlosusd").MedianRate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 4350 {
		t.Fatalf("got %d want 4350", rate)
	}
}

func TestClientMedianRate_NoDatapoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"pair": "tlosusd", "median": 0})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tlosusd").MedianRate(context.Background())
	if fault.KindOf(err) != fault.KindDependency {
		t.Fatalf("expected dependency fault, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	rate, err := Static{Rate: 7}.MedianRate(context.Background())
	if err != nil || rate != 7 {
		t.Fatalf("got %d, %v", rate, err)
	}
	if _, err := (Static{}).MedianRate(context.Background()); err == nil {
		t.Fatal("unset static rate: expected error")
	}
}
