package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

func TestDeriveItemStatus(t *testing.T) {
	cases := []struct {
		name      string
		delivered string
		accepted  string
		rejected  string
		want      AcceptanceStatus
	}{
		{"nothing delivered reads accepted", "0", "0", "0", AcceptanceStatusAccepted},
		{"untouched line is pending", "10", "0", "0", AcceptanceStatusPending},
		{"fully accepted", "10", "10", "0", AcceptanceStatusAccepted},
		{"fully rejected", "10", "0", "10", AcceptanceStatusRejected},
		{"split covering the delivery is partial", "10", "6", "4", AcceptanceStatusPartiallyAccepted},
		{"partial accept with remainder open stays pending", "10", "6", "0", AcceptanceStatusPending},
		{"partial reject with remainder open stays pending", "10", "0", "4", AcceptanceStatusPending},
		{"split with remainder open stays pending", "10", "3", "2", AcceptanceStatusPending},
		{"fractional split covering the delivery", "2.5", "1.5", "1", AcceptanceStatusPartiallyAccepted},
		{"fractional split with remainder open stays pending", "2.5", "1", "1", AcceptanceStatusPending},
		{"fractional full accept", "2.5", "2.5", "0", AcceptanceStatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveItemStatus(d(tc.delivered), d(tc.accepted), d(tc.rejected))
			if got != tc.want {
				t.Fatalf("DeriveItemStatus(%s, %s, %s) = %q, want %q",
					tc.delivered, tc.accepted, tc.rejected, got, tc.want)
			}
		})
	}
}

func TestDeriveOverallStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []AcceptanceStatus
		want     AcceptanceStatus
	}{
		{"no items is pending", nil, AcceptanceStatusPending},
		{"all pending", []AcceptanceStatus{AcceptanceStatusPending, AcceptanceStatusPending}, AcceptanceStatusPending},
		{"all accepted", []AcceptanceStatus{AcceptanceStatusAccepted, AcceptanceStatusAccepted}, AcceptanceStatusAccepted},
		{"all rejected", []AcceptanceStatus{AcceptanceStatusRejected, AcceptanceStatusRejected}, AcceptanceStatusRejected},
		{"accepted plus rejected is partial", []AcceptanceStatus{AcceptanceStatusAccepted, AcceptanceStatusRejected}, AcceptanceStatusPartiallyAccepted},
		{"pending plus rejected is partial", []AcceptanceStatus{AcceptanceStatusPending, AcceptanceStatusRejected}, AcceptanceStatusPartiallyAccepted},
		{"any partial item makes the record partial", []AcceptanceStatus{AcceptanceStatusAccepted, AcceptanceStatusPartiallyAccepted}, AcceptanceStatusPartiallyAccepted},
		{"pending plus accepted stays pending", []AcceptanceStatus{AcceptanceStatusPending, AcceptanceStatusAccepted}, AcceptanceStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveOverallStatus(tc.statuses)
			if got != tc.want {
				t.Fatalf("DeriveOverallStatus(%v) = %q, want %q", tc.statuses, got, tc.want)
			}
		})
	}
}

func TestValidateItemQuantities(t *testing.T) {
	cases := []struct {
		name      string
		delivered string
		accepted  string
		rejected  string
		wantErr   bool
	}{
		{"untouched line", "10", "0", "0", false},
		{"exact split", "10", "6", "4", false},
		{"under delivered", "10", "3", "2", false},
		{"sum exceeds delivered", "10", "7", "4", true},
		{"negative accepted", "10", "-1", "0", true},
		{"negative rejected", "10", "0", "-1", true},
		{"zero delivered with quantities", "0", "1", "0", true},
		{"fractional within bound", "2.5", "1.25", "1.25", false},
		{"fractional over bound", "2.5", "1.3", "1.21", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateItemQuantities(d(tc.delivered), d(tc.accepted), d(tc.rejected))
			if tc.wantErr && err != ErrorQuantityOutOfRange {
				t.Fatalf("expected ErrorQuantityOutOfRange, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRecomputeStatusesSetsItemAndOverall(t *testing.T) {
	record := &AcceptanceRecord{
		Items: []*AcceptanceItem{
			{DeliveredQty: d("10"), AcceptedQty: d("10")},
			{DeliveredQty: d("5"), AcceptedQty: d("2"), RejectedQty: d("3")},
		},
	}
	record.RecomputeStatuses()

	if record.Items[0].ItemStatus != AcceptanceStatusAccepted {
		t.Fatalf("item 0 status = %q, want Accepted", record.Items[0].ItemStatus)
	}
	if record.Items[1].ItemStatus != AcceptanceStatusPartiallyAccepted {
		t.Fatalf("item 1 status = %q, want Partially Accepted", record.Items[1].ItemStatus)
	}
	if record.CurrentStatus != AcceptanceStatusPartiallyAccepted {
		t.Fatalf("overall status = %q, want Partially Accepted", record.CurrentStatus)
	}
}
