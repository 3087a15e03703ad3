package enums

import "fmt"

// PurchasePhase tracks where a purchase intent sits in the allowance-then-buy protocol.
type PurchasePhase string

const (
	PurchasePhaseIdle                          PurchasePhase = "idle"
	PurchasePhaseAwaitingConnection            PurchasePhase = "awaiting_connection"
	PurchasePhaseAwaitingAllowance             PurchasePhase = "awaiting_allowance"
	PurchasePhaseAwaitingAllowanceConfirmation PurchasePhase = "awaiting_allowance_confirmation"
	PurchasePhaseAwaitingPurchase              PurchasePhase = "awaiting_purchase"
	PurchasePhaseAwaitingPurchaseConfirmation  PurchasePhase = "awaiting_purchase_confirmation"
	PurchasePhaseSucceeded                     PurchasePhase = "succeeded"
	PurchasePhaseFailed                        PurchasePhase = "failed"
)

var validPurchasePhases = []PurchasePhase{
	PurchasePhaseIdle,
	PurchasePhaseAwaitingConnection,
	PurchasePhaseAwaitingAllowance,
	PurchasePhaseAwaitingAllowanceConfirmation,
	PurchasePhaseAwaitingPurchase,
	PurchasePhaseAwaitingPurchaseConfirmation,
	PurchasePhaseSucceeded,
	PurchasePhaseFailed,
}

// String implements fmt.Stringer.
func (p PurchasePhase) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PurchasePhase.
func (p PurchasePhase) IsValid() bool {
	for _, candidate := range validPurchasePhases {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (p PurchasePhase) IsTerminal() bool {
	return p == PurchasePhaseSucceeded || p == PurchasePhaseFailed
}

// InFlight reports whether the phase holds the per-item purchase slot.
func (p PurchasePhase) InFlight() bool {
	return p != PurchasePhaseIdle && !p.IsTerminal()
}

// Ordinal is the phase's position in the protocol. An intent passes through
// each phase at most once, so the ordinal orders its events.
func (p PurchasePhase) Ordinal() int {
	for i, candidate := range validPurchasePhases {
		if candidate == p {
			return i
		}
	}
	return -1
}

// ParsePurchasePhase converts raw input into a PurchasePhase.
func ParsePurchasePhase(value string) (PurchasePhase, error) {
	for _, candidate := range validPurchasePhases {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase phase %q", value)
}
