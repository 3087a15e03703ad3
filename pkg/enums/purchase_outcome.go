package enums

import "fmt"

// PurchaseStatus is the terminal status of one purchase attempt.
type PurchaseStatus string

const (
	PurchaseStatusSucceeded PurchaseStatus = "succeeded"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	// PurchaseStatusAborted marks an unmet precondition the caller can fix and retry.
	PurchaseStatusAborted PurchaseStatus = "aborted"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusSucceeded,
	PurchaseStatusFailed,
	PurchaseStatusAborted,
}

func (s PurchaseStatus) String() string {
	return string(s)
}

func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// PurchaseFailureReason names why an attempt did not succeed.
type PurchaseFailureReason string

const (
	PurchaseReasonNotReady              PurchaseFailureReason = "not_ready"
	PurchaseReasonNoIdentity            PurchaseFailureReason = "no_identity"
	PurchaseReasonSelfPurchaseRejected  PurchaseFailureReason = "self_purchase_rejected"
	PurchaseReasonAllowanceRejected     PurchaseFailureReason = "allowance_rejected"
	PurchaseReasonAllowanceNotConfirmed PurchaseFailureReason = "allowance_not_confirmed"
	PurchaseReasonPurchaseRejected      PurchaseFailureReason = "purchase_rejected"
	PurchaseReasonPurchaseNotConfirmed  PurchaseFailureReason = "purchase_not_confirmed"
	PurchaseReasonAlreadyInProgress     PurchaseFailureReason = "already_in_progress"
)

var validPurchaseFailureReasons = []PurchaseFailureReason{
	PurchaseReasonNotReady,
	PurchaseReasonNoIdentity,
	PurchaseReasonSelfPurchaseRejected,
	PurchaseReasonAllowanceRejected,
	PurchaseReasonAllowanceNotConfirmed,
	PurchaseReasonPurchaseRejected,
	PurchaseReasonPurchaseNotConfirmed,
	PurchaseReasonAlreadyInProgress,
}

func (r PurchaseFailureReason) String() string {
	return string(r)
}

func (r PurchaseFailureReason) IsValid() bool {
	for _, candidate := range validPurchaseFailureReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// LeavesAllowance reports whether the reason is reached after the allowance was
// confirmed, meaning the granted spend is still outstanding on the ledger.
func (r PurchaseFailureReason) LeavesAllowance() bool {
	return r == PurchaseReasonPurchaseRejected || r == PurchaseReasonPurchaseNotConfirmed
}

// ParsePurchaseFailureReason converts raw input into a PurchaseFailureReason.
func ParsePurchaseFailureReason(value string) (PurchaseFailureReason, error) {
	for _, candidate := range validPurchaseFailureReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase failure reason %q", value)
}
