package escrow

import (
	"encoding/hex"
	"strconv"

	"deedvault/core/types"
)

const (
	EventTypeSaleListed        = "escrow.sale.listed"
	EventTypeEarnestDeposited  = "escrow.sale.earnest_deposited"
	EventTypeInspectionUpdated = "escrow.sale.inspection_updated"
	EventTypeLegalUpdated      = "escrow.sale.legal_updated"
	EventTypeSaleApproved      = "escrow.sale.approved"
	EventTypePoolFunded        = "escrow.pool.funded"
	EventTypeSaleFinalized     = "escrow.sale.finalized"
	EventTypeSaleCancelled     = "escrow.sale.cancelled"
)

// NewSaleListedEvent returns the canonical event payload for a freshly listed
// asset.
func NewSaleListedEvent(l *Listing, seller [20]byte) *types.Event {
	attrs := listingAttributes(l)
	attrs["seller"] = hex.EncodeToString(seller[:])
	return &types.Event{Type: EventTypeSaleListed, Attributes: attrs}
}

// NewEarnestDepositedEvent returns the event payload emitted when the buyer
// pays earnest money into the custodial pool.
func NewEarnestDepositedEvent(l *Listing, amount string) *types.Event {
	attrs := listingAttributes(l)
	attrs["amount"] = amount
	return &types.Event{Type: EventTypeEarnestDeposited, Attributes: attrs}
}

// NewInspectionUpdatedEvent returns the event payload emitted when the
// inspector records an inspection outcome.
func NewInspectionUpdatedEvent(l *Listing, passed bool) *types.Event {
	attrs := listingAttributes(l)
	attrs["passed"] = strconv.FormatBool(passed)
	return &types.Event{Type: EventTypeInspectionUpdated, Attributes: attrs}
}

// NewLegalUpdatedEvent returns the event payload emitted when the legal
// reviewer records a review outcome.
func NewLegalUpdatedEvent(l *Listing, passed bool) *types.Event {
	attrs := listingAttributes(l)
	attrs["passed"] = strconv.FormatBool(passed)
	return &types.Event{Type: EventTypeLegalUpdated, Attributes: attrs}
}

// NewSaleApprovedEvent returns the event payload emitted when a sanctioned
// party records its consent.
func NewSaleApprovedEvent(l *Listing, approver [20]byte) *types.Event {
	attrs := listingAttributes(l)
	attrs["approver"] = hex.EncodeToString(approver[:])
	return &types.Event{Type: EventTypeSaleApproved, Attributes: attrs}
}

// NewPoolFundedEvent returns the event payload emitted when the pool accepts
// an unsolicited value transfer (e.g. the lender funding ahead of finalize).
func NewPoolFundedEvent(from [20]byte, amount string) *types.Event {
	return &types.Event{Type: EventTypePoolFunded, Attributes: map[string]string{
		"from":   hex.EncodeToString(from[:]),
		"amount": amount,
	}}
}

// NewSaleFinalizedEvent returns the event payload consumed by external
// monitoring when a sale settles.
func NewSaleFinalizedEvent(assetID uint64, buyer, seller [20]byte, price string) *types.Event {
	return &types.Event{Type: EventTypeSaleFinalized, Attributes: map[string]string{
		"assetId": strconv.FormatUint(assetID, 10),
		"buyer":   hex.EncodeToString(buyer[:]),
		"seller":  hex.EncodeToString(seller[:]),
		"price":   price,
	}}
}

// NewSaleCancelledEvent returns the event payload emitted when a listing is
// cancelled, carrying the recipient and amount of the compensating payout.
func NewSaleCancelledEvent(assetID uint64, recipient [20]byte, amount string) *types.Event {
	return &types.Event{Type: EventTypeSaleCancelled, Attributes: map[string]string{
		"assetId":   strconv.FormatUint(assetID, 10),
		"recipient": hex.EncodeToString(recipient[:]),
		"amount":    amount,
	}}
}

func listingAttributes(l *Listing) map[string]string {
	attrs := make(map[string]string)
	if l == nil {
		return attrs
	}
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return attrs
	}
	attrs["assetId"] = strconv.FormatUint(sanitized.AssetID, 10)
	attrs["buyer"] = hex.EncodeToString(sanitized.Buyer[:])
	attrs["purchasePrice"] = sanitized.PurchasePrice.String()
	attrs["escrowAmount"] = sanitized.EscrowAmount.String()
	return attrs
}
