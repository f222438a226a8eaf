package models

import (
	"testing"
	"time"
)

func TestTotalCostImpactCountsNonReturnableOnly(t *testing.T) {
	dispositions := []*RejectedItemDisposition{
		{ReturnStatus: ReturnStatusNonReturnable, CostImpact: d("120.50")},
		{ReturnStatus: ReturnStatusNonReturnable, CostImpact: d("30")},
		{ReturnStatus: ReturnStatusReturned, CostImpact: d("999")},
		{ReturnStatus: ReturnStatusReplaced, CostImpact: d("999")},
		{ReturnStatus: ReturnStatusPending, CostImpact: d("999")},
	}
	got := TotalCostImpactOf(dispositions)
	if !got.Equal(d("150.50")) {
		t.Fatalf("TotalCostImpactOf = %s, want 150.50", got)
	}

	if !TotalCostImpactOf(nil).IsZero() {
		t.Fatalf("empty disposition list should have zero cost impact")
	}
}

func TestDeriveCaseStatus(t *testing.T) {
	pending := &RejectedItemDisposition{ReturnStatus: ReturnStatusPending}
	returned := &RejectedItemDisposition{ReturnStatus: ReturnStatusReturned}
	replaced := &RejectedItemDisposition{ReturnStatus: ReturnStatusReplaced}

	cases := []struct {
		name         string
		dispositions []*RejectedItemDisposition
		want         RejectionCaseStatus
	}{
		{"no dispositions", nil, RejectionCaseStatusOpen},
		{"all pending", []*RejectedItemDisposition{pending, pending}, RejectionCaseStatusOpen},
		{"some resolved", []*RejectedItemDisposition{pending, returned}, RejectionCaseStatusInProgress},
		{"all resolved", []*RejectedItemDisposition{returned, replaced}, RejectionCaseStatusResolved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveCaseStatus(tc.dispositions)
			if got != tc.want {
				t.Fatalf("deriveCaseStatus = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDispositionInputValidate(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name    string
		input   DispositionInput
		wantErr string
	}{
		{"pending needs nothing", DispositionInput{ReturnStatus: ReturnStatusPending}, ""},
		{"approved needs nothing", DispositionInput{ReturnStatus: ReturnStatusApproved}, ""},
		{"non-returnable without location", DispositionInput{ReturnStatus: ReturnStatusNonReturnable}, "inventory location is required for non-returnable items"},
		{"non-returnable with blank location", DispositionInput{ReturnStatus: ReturnStatusNonReturnable, InventoryLocation: "   "}, "inventory location is required for non-returnable items"},
		{"non-returnable with location", DispositionInput{ReturnStatus: ReturnStatusNonReturnable, InventoryLocation: "QA-HOLD-1"}, ""},
		{"returned without date", DispositionInput{ReturnStatus: ReturnStatusReturned}, "return date is required for returned items"},
		{"returned with date", DispositionInput{ReturnStatus: ReturnStatusReturned, ReturnDate: &now}, ""},
		{"replaced without date", DispositionInput{ReturnStatus: ReturnStatusReplaced}, "replacement date is required for replaced items"},
		{"replaced with date", DispositionInput{ReturnStatus: ReturnStatusReplaced, ReplacementDate: &now}, ""},
		{"unknown status", DispositionInput{ReturnStatus: ReturnStatus("Lost")}, "invalid return status"},
		{"negative cost impact", DispositionInput{ReturnStatus: ReturnStatusPending, CostImpact: d("-1")}, "cost impact cannot be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tc.wantErr {
				t.Fatalf("validate() = %v, want %q", err, tc.wantErr)
			}
		})
	}
}
