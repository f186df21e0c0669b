// Package state persists ledger state — listings, accounts, and the event
// journal — over a storage.Database, and satisfies the escrow ledger's
// persistence interface.
package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"deedvault/core/events"
	"deedvault/core/types"
	"deedvault/escrow"
	"deedvault/storage"
)

const (
	listingKeyPrefix = "listing:"
	accountKeyPrefix = "account:"
	eventKeyPrefix   = "events:entry:"
	eventSeqKey      = "events:seq"
)

// Manager is the concrete LedgerState implementation. All records are stored
// as JSON values in the underlying key-value database.
type Manager struct {
	db storage.Database

	mu  sync.Mutex
	seq uint64
}

func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("state: nil database")
	}
	m := &Manager{db: db}
	if raw, err := db.Get([]byte(eventSeqKey)); err == nil && len(raw) == 8 {
		m.seq = binary.BigEndian.Uint64(raw)
	}
	return m, nil
}

// storedListing is the JSON wire form of a listing. Addresses are hex encoded
// and amounts are decimal strings so records stay readable in dumps.
type storedListing struct {
	AssetID          uint64   `json:"assetId"`
	Listed           bool     `json:"listed"`
	PurchasePrice    string   `json:"purchasePrice"`
	EscrowAmount     string   `json:"escrowAmount"`
	Buyer            string   `json:"buyer"`
	Deposited        string   `json:"deposited"`
	InspectionPassed bool     `json:"inspectionPassed"`
	LegalPassed      bool     `json:"legalPassed"`
	Approvals        []string `json:"approvals,omitempty"`
}

func listingKey(assetID uint64) []byte {
	return []byte(listingKeyPrefix + strconv.FormatUint(assetID, 10))
}

func accountKey(addr [20]byte) []byte {
	return []byte(accountKeyPrefix + hex.EncodeToString(addr[:]))
}

// ListingPut sanitizes and persists a listing record.
func (m *Manager) ListingPut(l *escrow.Listing) error {
	sanitized, err := escrow.SanitizeListing(l)
	if err != nil {
		return err
	}
	stored := storedListing{
		AssetID:          sanitized.AssetID,
		Listed:           sanitized.Listed,
		PurchasePrice:    sanitized.PurchasePrice.String(),
		EscrowAmount:     sanitized.EscrowAmount.String(),
		Buyer:            hex.EncodeToString(sanitized.Buyer[:]),
		Deposited:        sanitized.Deposited.String(),
		InspectionPassed: sanitized.InspectionPassed,
		LegalPassed:      sanitized.LegalPassed,
	}
	for addr, ok := range sanitized.Approvals {
		if ok {
			stored.Approvals = append(stored.Approvals, hex.EncodeToString(addr[:]))
		}
	}
	sort.Strings(stored.Approvals)
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return m.db.Put(listingKey(sanitized.AssetID), raw)
}

// ListingGet loads the stored record for an asset, reporting false when no
// record exists or the stored payload cannot be decoded.
func (m *Manager) ListingGet(assetID uint64) (*escrow.Listing, bool) {
	raw, err := m.db.Get(listingKey(assetID))
	if err != nil {
		return nil, false
	}
	var stored storedListing
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false
	}
	listing := &escrow.Listing{
		AssetID:          stored.AssetID,
		Listed:           stored.Listed,
		InspectionPassed: stored.InspectionPassed,
		LegalPassed:      stored.LegalPassed,
		Approvals:        make(map[[20]byte]bool, len(stored.Approvals)),
	}
	var ok bool
	if listing.PurchasePrice, ok = parseAmount(stored.PurchasePrice); !ok {
		return nil, false
	}
	if listing.EscrowAmount, ok = parseAmount(stored.EscrowAmount); !ok {
		return nil, false
	}
	if listing.Deposited, ok = parseAmount(stored.Deposited); !ok {
		return nil, false
	}
	buyer, err := parseAddress(stored.Buyer)
	if err != nil {
		return nil, false
	}
	listing.Buyer = buyer
	for _, encoded := range stored.Approvals {
		addr, err := parseAddress(encoded)
		if err != nil {
			return nil, false
		}
		listing.Approvals[addr] = true
	}
	return listing, true
}

// GetAccount loads the account for an address, returning a zero-balance
// account when none has been persisted yet.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if err != nil {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	var acc types.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("state: decode account %x: %w", addr, err)
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return &acc, nil
}

func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	raw, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), raw)
}

// JournalEntry is a single recorded event with its assigned sequence number
// and identifier.
type JournalEntry struct {
	Sequence   uint64            `json:"sequence"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventKeyPrefix, seq))
}

// AppendEvent records an emitted event in the journal.
func (m *Manager) AppendEvent(evt *types.Event) error {
	if evt == nil {
		return fmt.Errorf("state: nil event")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := JournalEntry{
		Sequence:   m.seq + 1,
		ID:         uuid.NewString(),
		Type:       evt.Type,
		Attributes: evt.Attributes,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := m.db.Put(eventKey(entry.Sequence), raw); err != nil {
		return err
	}
	var seqRaw [8]byte
	binary.BigEndian.PutUint64(seqRaw[:], entry.Sequence)
	if err := m.db.Put([]byte(eventSeqKey), seqRaw[:]); err != nil {
		return err
	}
	m.seq = entry.Sequence
	return nil
}

// Events returns journal entries in emission order, optionally filtered by a
// type prefix. When limit is positive only the most recent matches are
// returned.
func (m *Manager) Events(prefix string, limit int) ([]JournalEntry, error) {
	m.mu.Lock()
	last := m.seq
	m.mu.Unlock()
	entries := make([]JournalEntry, 0)
	for seq := uint64(1); seq <= last; seq++ {
		raw, err := m.db.Get(eventKey(seq))
		if err != nil {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("state: decode journal entry %d: %w", seq, err)
		}
		if prefix != "" && !strings.HasPrefix(entry.Type, prefix) {
			continue
		}
		entries = append(entries, entry)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Emit implements events.Emitter by journaling any event that exposes a
// canonical payload. Journal write failures are swallowed: the journal is an
// observability surface, not a correctness one.
func (m *Manager) Emit(evt events.Event) {
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	_ = m.AppendEvent(payload.Event())
}

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}
	return new(big.Int).SetString(s, 10)
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	if s == "" {
		return addr, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, err
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("state: address must be 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
