package escrow

import (
	"fmt"
	"math/big"
)

// Listing captures the state of a single-asset sale mediated by the ledger.
// Exactly one listing is active per asset identifier; re-listing an asset
// overwrites the prior record. Deposited tracks the value the listing's buyer
// has actually paid into the custodial pool; refunds and cancellation payouts
// are capped by it so one listing can never drain value contributed by
// unrelated buyers.
type Listing struct {
	AssetID          uint64
	Listed           bool
	PurchasePrice    *big.Int
	EscrowAmount     *big.Int
	Buyer            [20]byte
	Deposited        *big.Int
	InspectionPassed bool
	LegalPassed      bool
	Approvals        map[[20]byte]bool
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.PurchasePrice = cloneBigInt(l.PurchasePrice)
	clone.EscrowAmount = cloneBigInt(l.EscrowAmount)
	clone.Deposited = cloneBigInt(l.Deposited)
	clone.Approvals = make(map[[20]byte]bool, len(l.Approvals))
	for addr, ok := range l.Approvals {
		if ok {
			clone.Approvals[addr] = true
		}
	}
	return &clone
}

// Approved reports whether the given identity has recorded its consent on the
// listing.
func (l *Listing) Approved(identity [20]byte) bool {
	if l == nil {
		return false
	}
	return l.Approvals[identity]
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with non-nil amount fields. The function does not mutate the
// original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("nil listing")
	}
	clone := l.Clone()
	if clone.PurchasePrice.Sign() < 0 {
		return nil, fmt.Errorf("listing purchase price must be non-negative")
	}
	if clone.EscrowAmount.Sign() < 0 {
		return nil, fmt.Errorf("listing escrow amount must be non-negative")
	}
	if clone.Deposited.Sign() < 0 {
		return nil, fmt.Errorf("listing deposited amount must be non-negative")
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
