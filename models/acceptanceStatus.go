package models

import "github.com/shopspring/decimal"

// Status derivation is pure: quantities in, status out. The stored
// current_status columns are projections for list screens and are recomputed
// from quantities before a record is returned or persisted.

// DeriveItemStatus classifies a single delivery line from its reconciled
// quantities. A line with nothing delivered has nothing left to reconcile and
// reads as Accepted. Partially Accepted requires full reconciliation into a
// mixed split (accepted + rejected == delivered); any line with quantity
// still unaccounted for stays Pending no matter how much has been touched.
func DeriveItemStatus(deliveredQty, acceptedQty, rejectedQty decimal.Decimal) AcceptanceStatus {
	if deliveredQty.IsZero() {
		return AcceptanceStatusAccepted
	}
	if acceptedQty.Equal(deliveredQty) {
		return AcceptanceStatusAccepted
	}
	if rejectedQty.Equal(deliveredQty) {
		return AcceptanceStatusRejected
	}
	if acceptedQty.Add(rejectedQty).Equal(deliveredQty) {
		return AcceptanceStatusPartiallyAccepted
	}
	return AcceptanceStatusPending
}

// DeriveOverallStatus folds item statuses into the shipment-level status.
// All items agreeing wins outright; any rejection in a mixed set makes the
// whole shipment Partially Accepted; a mix of Pending and Accepted stays
// Pending until every line is fully reconciled.
func DeriveOverallStatus(statuses []AcceptanceStatus) AcceptanceStatus {
	if len(statuses) == 0 {
		return AcceptanceStatusPending
	}

	distinct := make(map[AcceptanceStatus]bool, 4)
	for _, s := range statuses {
		distinct[s] = true
	}
	if len(distinct) == 1 {
		return statuses[0]
	}
	if distinct[AcceptanceStatusRejected] || distinct[AcceptanceStatusPartiallyAccepted] {
		return AcceptanceStatusPartiallyAccepted
	}
	return AcceptanceStatusPending
}

// ValidateItemQuantities enforces the reconciliation bound:
// both quantities non-negative and accepted + rejected never exceeds delivered.
func ValidateItemQuantities(deliveredQty, acceptedQty, rejectedQty decimal.Decimal) error {
	if acceptedQty.IsNegative() || rejectedQty.IsNegative() {
		return ErrorQuantityOutOfRange
	}
	if acceptedQty.Add(rejectedQty).GreaterThan(deliveredQty) {
		return ErrorQuantityOutOfRange
	}
	return nil
}
