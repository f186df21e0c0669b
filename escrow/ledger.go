package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"deedvault/core/events"
	"deedvault/core/types"
	"deedvault/registry"
)

var (
	errNilState    = errors.New("escrow ledger: state not configured")
	errNilRegistry = errors.New("escrow ledger: asset registry not configured")
)

// Roles fixes the four identities sanctioned to act on listings. They are set
// at construction and immutable for the ledger's lifetime.
type Roles struct {
	Seller        [20]byte
	Inspector     [20]byte
	Lender        [20]byte
	LegalReviewer [20]byte
}

// Config carries the immutable construction parameters of a ledger.
// RequireLegalApproval controls whether Finalize demands the legal reviewer's
// recorded approval in addition to a passing legal review; the reference
// behaviour treats that approval as advisory only, which looks like an
// oversight, so the requirement is configurable rather than hardcoded either
// way.
type Config struct {
	Roles
	Custodian            [20]byte
	RequireLegalApproval bool
}

// LedgerState is the persistence surface the ledger mutates. The custodian's
// account balance is the pooled custodial balance.
type LedgerState interface {
	ListingPut(*Listing) error
	ListingGet(assetID uint64) (*Listing, bool)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Ledger mediates a single-asset sale between the fixed seller, a designated
// buyer, and the verifying parties. Mutating operations are serialized by a
// per-ledger lock and commit all local state before any external transfer, so
// a callback re-entering the ledger can only observe terminal state.
type Ledger struct {
	mu       sync.RWMutex
	cfg      Config
	state    LedgerState
	registry registry.AssetRegistry
	emitter  events.Emitter
}

// NewLedger constructs a ledger over the supplied state backend and asset
// registry. Events are discarded until SetEmitter is called.
func NewLedger(cfg Config, state LedgerState, reg registry.AssetRegistry) (*Ledger, error) {
	if state == nil {
		return nil, errNilState
	}
	if reg == nil {
		return nil, errNilRegistry
	}
	if cfg.Custodian == ([20]byte{}) {
		return nil, fmt.Errorf("escrow ledger: custodian address required")
	}
	for name, addr := range map[string][20]byte{
		"seller":         cfg.Seller,
		"inspector":      cfg.Inspector,
		"lender":         cfg.Lender,
		"legal reviewer": cfg.LegalReviewer,
	} {
		if addr == ([20]byte{}) {
			return nil, fmt.Errorf("escrow ledger: %s address required", name)
		}
	}
	return &Ledger{cfg: cfg, state: state, registry: reg, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(event *types.Event) {
	if l == nil || l.emitter == nil || event == nil {
		return
	}
	l.emitter.Emit(ledgerEvent{evt: event})
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (l *Ledger) loadActive(assetID uint64) (*Listing, error) {
	listing, ok := l.state.ListingGet(assetID)
	if !ok || !listing.Listed {
		return nil, fmt.Errorf("%w: asset %d", ErrNotListed, assetID)
	}
	return listing, nil
}

func (l *Ledger) storeListing(listing *Listing) error {
	return l.state.ListingPut(listing)
}

// transferValue is the push-payment primitive: it moves amount between
// accounts, failing without effect when the source balance cannot cover it.
func (l *Ledger) transferValue(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow: negative transfer amount")
	}
	if from == to {
		return nil
	}
	fromAcc, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := l.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to, toAcc)
}

func (l *Ledger) balanceOf(addr [20]byte) (*big.Int, error) {
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(ensureAccount(acc).Balance), nil
}

// List creates (or overwrites) the listing for an asset. Only the fixed
// seller may list, and custody of the asset moves to the ledger as part of
// the call; when the registry rejects the transfer no record is created.
func (l *Ledger) List(caller [20]byte, assetID uint64, buyer [20]byte, purchasePrice, escrowAmount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.cfg.Seller {
		return fmt.Errorf("%w: only the seller may list", ErrUnauthorized)
	}
	if buyer == ([20]byte{}) {
		return fmt.Errorf("escrow: buyer identity required")
	}
	price := cloneBigInt(purchasePrice)
	escrow := cloneBigInt(escrowAmount)
	if price.Sign() < 0 || escrow.Sign() < 0 {
		return fmt.Errorf("escrow: amounts must be non-negative")
	}
	if err := l.registry.Transfer(assetID, l.cfg.Custodian, caller, l.cfg.Custodian); err != nil {
		return fmt.Errorf("escrow: registry transfer: %w", err)
	}
	listing := &Listing{
		AssetID:       assetID,
		Listed:        true,
		PurchasePrice: price,
		EscrowAmount:  escrow,
		Buyer:         buyer,
		Deposited:     big.NewInt(0),
		Approvals:     make(map[[20]byte]bool),
	}
	if err := l.storeListing(listing); err != nil {
		// Hand the asset back rather than leave it stranded with the
		// custodian and no record.
		_ = l.registry.Transfer(assetID, l.cfg.Custodian, l.cfg.Custodian, caller)
		return err
	}
	l.emit(NewSaleListedEvent(listing, caller))
	return nil
}

// DepositEarnest accepts the buyer's earnest payment. The amount must meet
// the listing's required escrow; any excess is retained in the pool and
// credited to the listing's deposit.
func (l *Ledger) DepositEarnest(caller [20]byte, assetID uint64, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, err := l.loadActive(assetID)
	if err != nil {
		return err
	}
	if caller != listing.Buyer {
		return fmt.Errorf("%w: only the designated buyer may deposit", ErrUnauthorized)
	}
	// EscrowAmount is never negative, so this also rejects negative deposits.
	// A zero deposit on a zero-escrow listing is a valid no-cost commitment.
	amt := cloneBigInt(amount)
	if amt.Cmp(listing.EscrowAmount) < 0 {
		return fmt.Errorf("%w: got %s, need %s", ErrInsufficientFunds, amt, listing.EscrowAmount)
	}
	if err := l.transferValue(caller, l.cfg.Custodian, amt); err != nil {
		return err
	}
	listing.Deposited = new(big.Int).Add(listing.Deposited, amt)
	if err := l.storeListing(listing); err != nil {
		_ = l.transferValue(l.cfg.Custodian, caller, amt)
		return err
	}
	l.emit(NewEarnestDepositedEvent(listing, amt.String()))
	return nil
}

// SetInspectionStatus records the inspector's verdict. Idempotent.
func (l *Ledger) SetInspectionStatus(caller [20]byte, assetID uint64, passed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.cfg.Inspector {
		return fmt.Errorf("%w: only the inspector may update inspection status", ErrUnauthorized)
	}
	listing, err := l.loadActive(assetID)
	if err != nil {
		return err
	}
	listing.InspectionPassed = passed
	if err := l.storeListing(listing); err != nil {
		return err
	}
	l.emit(NewInspectionUpdatedEvent(listing, passed))
	return nil
}

// SetLegalStatus records the legal reviewer's verdict. Idempotent.
func (l *Ledger) SetLegalStatus(caller [20]byte, assetID uint64, passed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.cfg.LegalReviewer {
		return fmt.Errorf("%w: only the legal reviewer may update legal status", ErrUnauthorized)
	}
	listing, err := l.loadActive(assetID)
	if err != nil {
		return err
	}
	listing.LegalPassed = passed
	if err := l.storeListing(listing); err != nil {
		return err
	}
	l.emit(NewLegalUpdatedEvent(listing, passed))
	return nil
}

// ApproveSale records the caller's consent. Only the listing's buyer, the
// seller, the lender, or the legal reviewer may approve; anyone else is
// rejected outright instead of being recorded as a silent no-op. Approvals
// are monotonic within a listing's lifetime.
func (l *Ledger) ApproveSale(caller [20]byte, assetID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, err := l.loadActive(assetID)
	if err != nil {
		return err
	}
	switch caller {
	case listing.Buyer, l.cfg.Seller, l.cfg.Lender, l.cfg.LegalReviewer:
	default:
		return fmt.Errorf("%w: approval restricted to sale participants", ErrUnauthorized)
	}
	if listing.Approvals[caller] {
		return nil
	}
	listing.Approvals[caller] = true
	if err := l.storeListing(listing); err != nil {
		return err
	}
	l.emit(NewSaleApprovedEvent(listing, caller))
	return nil
}

// Finalize settles the sale: the purchase price moves from the pool to the
// seller and the asset moves from the custodian to the buyer. All
// preconditions are validated first and the record is made terminal before
// either external transfer; a failed transfer rolls the whole operation
// back.
func (l *Ledger) Finalize(assetID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, err := l.loadActive(assetID)
	if err != nil {
		return err
	}
	if !listing.InspectionPassed {
		return fmt.Errorf("%w: inspection not passed", ErrPreconditionNotMet)
	}
	if !listing.LegalPassed {
		return fmt.Errorf("%w: legal review not passed", ErrPreconditionNotMet)
	}
	if !listing.Approved(listing.Buyer) {
		return fmt.Errorf("%w: buyer approval missing", ErrPreconditionNotMet)
	}
	if !listing.Approved(l.cfg.Seller) {
		return fmt.Errorf("%w: seller approval missing", ErrPreconditionNotMet)
	}
	if !listing.Approved(l.cfg.Lender) {
		return fmt.Errorf("%w: lender approval missing", ErrPreconditionNotMet)
	}
	if l.cfg.RequireLegalApproval && !listing.Approved(l.cfg.LegalReviewer) {
		return fmt.Errorf("%w: legal reviewer approval missing", ErrPreconditionNotMet)
	}
	pool, err := l.balanceOf(l.cfg.Custodian)
	if err != nil {
		return err
	}
	price := cloneBigInt(listing.PurchasePrice)
	if pool.Cmp(price) < 0 {
		return fmt.Errorf("%w: custodial balance %s below purchase price %s", ErrPreconditionNotMet, pool, price)
	}
	buyer := listing.Buyer
	snapshot := listing.Clone()

	listing.Listed = false
	listing.PurchasePrice = big.NewInt(0)
	listing.EscrowAmount = big.NewInt(0)
	listing.Deposited = big.NewInt(0)
	if err := l.storeListing(listing); err != nil {
		return err
	}
	if err := l.transferValue(l.cfg.Custodian, l.cfg.Seller, price); err != nil {
		_ = l.storeListing(snapshot)
		return fmt.Errorf("escrow: seller payout: %w", err)
	}
	if err := l.registry.Transfer(assetID, l.cfg.Custodian, l.cfg.Custodian, buyer); err != nil {
		_ = l.transferValue(l.cfg.Seller, l.cfg.Custodian, price)
		_ = l.storeListing(snapshot)
		return fmt.Errorf("escrow: registry transfer: %w", err)
	}
	l.emit(NewSaleFinalizedEvent(assetID, buyer, l.cfg.Seller, price.String()))
	return nil
}

// CancelSale unwinds a listing. Before inspection passes only the buyer may
// cancel and is refunded; after inspection passes only the seller may cancel
// and receives the earnest money. The payout is capped by the deposit the
// listing's buyer actually made, never by the ambient pool, and the asset
// returns to the seller.
func (l *Ledger) CancelSale(caller [20]byte, assetID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, err := l.loadActive(assetID)
	if err != nil {
		return err
	}
	if caller != listing.Buyer && caller != l.cfg.Seller {
		return fmt.Errorf("%w: only the buyer or the seller may cancel", ErrUnauthorized)
	}
	var recipient [20]byte
	if !listing.InspectionPassed {
		if caller != listing.Buyer {
			return fmt.Errorf("%w: only the buyer may cancel before inspection passes", ErrUnauthorized)
		}
		recipient = listing.Buyer
	} else {
		if caller != l.cfg.Seller {
			return fmt.Errorf("%w: only the seller may cancel after inspection passes", ErrUnauthorized)
		}
		recipient = l.cfg.Seller
	}
	amount := cloneBigInt(listing.EscrowAmount)
	if amount.Cmp(listing.Deposited) > 0 {
		amount = cloneBigInt(listing.Deposited)
	}
	pool, err := l.balanceOf(l.cfg.Custodian)
	if err != nil {
		return err
	}
	if pool.Cmp(amount) < 0 {
		return fmt.Errorf("%w: custodial balance %s below payout %s", ErrInsufficientBalance, pool, amount)
	}
	seller := l.cfg.Seller
	snapshot := listing.Clone()

	listing.Listed = false
	listing.Buyer = [20]byte{}
	listing.PurchasePrice = big.NewInt(0)
	listing.EscrowAmount = big.NewInt(0)
	listing.Deposited = big.NewInt(0)
	if err := l.storeListing(listing); err != nil {
		return err
	}
	if err := l.transferValue(l.cfg.Custodian, recipient, amount); err != nil {
		_ = l.storeListing(snapshot)
		return err
	}
	if err := l.registry.Transfer(assetID, l.cfg.Custodian, l.cfg.Custodian, seller); err != nil {
		_ = l.transferValue(recipient, l.cfg.Custodian, amount)
		_ = l.storeListing(snapshot)
		return fmt.Errorf("escrow: registry transfer: %w", err)
	}
	l.emit(NewSaleCancelledEvent(assetID, recipient, amount.String()))
	return nil
}

// Receive accepts an unsolicited value transfer into the custodial pool, such
// as the lender funding the sale ahead of finalize.
func (l *Ledger) Receive(from [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("escrow: amount must be positive")
	}
	if err := l.transferValue(from, l.cfg.Custodian, amt); err != nil {
		return err
	}
	l.emit(NewPoolFundedEvent(from, amt.String()))
	return nil
}

// --- Read-only accessors ---

// Listing returns a copy of the stored record for an asset, listed or not.
func (l *Ledger) Listing(assetID uint64) (*Listing, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	if !ok {
		return nil, false
	}
	return listing.Clone(), true
}

func (l *Ledger) IsListed(assetID uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	return ok && listing.Listed
}

func (l *Ledger) PurchasePrice(assetID uint64) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	if !ok {
		return big.NewInt(0)
	}
	return cloneBigInt(listing.PurchasePrice)
}

func (l *Ledger) EscrowAmount(assetID uint64) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	if !ok {
		return big.NewInt(0)
	}
	return cloneBigInt(listing.EscrowAmount)
}

func (l *Ledger) Buyer(assetID uint64) [20]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	if !ok {
		return [20]byte{}
	}
	return listing.Buyer
}

func (l *Ledger) InspectionPassed(assetID uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	return ok && listing.InspectionPassed
}

func (l *Ledger) LegalPassed(assetID uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	return ok && listing.LegalPassed
}

func (l *Ledger) Approval(assetID uint64, identity [20]byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	return ok && listing.Approved(identity)
}

// Deposited reports how much the listing's buyer has actually paid into the
// pool for this specific record.
func (l *Ledger) Deposited(assetID uint64) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	listing, ok := l.state.ListingGet(assetID)
	if !ok {
		return big.NewInt(0)
	}
	return cloneBigInt(listing.Deposited)
}

// Balance returns the pooled custodial balance.
func (l *Ledger) Balance() (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceOf(l.cfg.Custodian)
}

// RequiresLegalApproval reports whether Finalize demands the legal reviewer's
// recorded approval.
func (l *Ledger) RequiresLegalApproval() bool { return l.cfg.RequireLegalApproval }

func (l *Ledger) Seller() [20]byte        { return l.cfg.Seller }
func (l *Ledger) Inspector() [20]byte     { return l.cfg.Inspector }
func (l *Ledger) Lender() [20]byte        { return l.cfg.Lender }
func (l *Ledger) LegalReviewer() [20]byte { return l.cfg.LegalReviewer }
func (l *Ledger) Custodian() [20]byte     { return l.cfg.Custodian }
