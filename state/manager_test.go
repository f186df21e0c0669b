package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deedvault/core/types"
	"deedvault/escrow"
	"deedvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestListingRoundTrip(t *testing.T) {
	m, err := NewManager(storage.NewMemDB())
	require.NoError(t, err)

	buyer := testAddr(0xB1)
	approver := testAddr(0xA1)
	listing := &escrow.Listing{
		AssetID:          7,
		Listed:           true,
		PurchasePrice:    big.NewInt(100),
		EscrowAmount:     big.NewInt(20),
		Buyer:            buyer,
		Deposited:        big.NewInt(25),
		InspectionPassed: true,
		Approvals:        map[[20]byte]bool{approver: true},
	}
	require.NoError(t, m.ListingPut(listing))

	loaded, ok := m.ListingGet(7)
	require.True(t, ok)
	require.Equal(t, uint64(7), loaded.AssetID)
	require.True(t, loaded.Listed)
	require.Zero(t, loaded.PurchasePrice.Cmp(big.NewInt(100)))
	require.Zero(t, loaded.EscrowAmount.Cmp(big.NewInt(20)))
	require.Zero(t, loaded.Deposited.Cmp(big.NewInt(25)))
	require.Equal(t, buyer, loaded.Buyer)
	require.True(t, loaded.InspectionPassed)
	require.False(t, loaded.LegalPassed)
	require.True(t, loaded.Approved(approver))
	require.False(t, loaded.Approved(buyer))
}

func TestListingGetUnknownAsset(t *testing.T) {
	m, err := NewManager(storage.NewMemDB())
	require.NoError(t, err)

	_, ok := m.ListingGet(42)
	require.False(t, ok)
}

func TestAccountDefaultsToZeroBalance(t *testing.T) {
	m, err := NewManager(storage.NewMemDB())
	require.NoError(t, err)

	acc, err := m.GetAccount(testAddr(0x01))
	require.NoError(t, err)
	require.NotNil(t, acc.Balance)
	require.Zero(t, acc.Balance.Sign())

	acc.Balance = big.NewInt(123)
	acc.Nonce = 4
	require.NoError(t, m.PutAccount(testAddr(0x01), acc))

	loaded, err := m.GetAccount(testAddr(0x01))
	require.NoError(t, err)
	require.Zero(t, loaded.Balance.Cmp(big.NewInt(123)))
	require.Equal(t, uint64(4), loaded.Nonce)
}

func TestJournalSequencesEvents(t *testing.T) {
	db := storage.NewMemDB()
	m, err := NewManager(db)
	require.NoError(t, err)

	require.NoError(t, m.AppendEvent(&types.Event{Type: "escrow.sale.listed", Attributes: map[string]string{"assetId": "1"}}))
	require.NoError(t, m.AppendEvent(&types.Event{Type: "escrow.pool.funded", Attributes: map[string]string{"amount": "5"}}))
	require.NoError(t, m.AppendEvent(&types.Event{Type: "escrow.sale.finalized", Attributes: map[string]string{"assetId": "1"}}))

	entries, err := m.Events("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, uint64(1), entries[0].Sequence)
	require.Equal(t, uint64(3), entries[2].Sequence)
	require.NotEmpty(t, entries[0].ID)

	sales, err := m.Events("escrow.sale.", 0)
	require.NoError(t, err)
	require.Len(t, sales, 2)

	limited, err := m.Events("", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "escrow.sale.finalized", limited[0].Type)

	// The sequence survives a manager restart over the same database.
	reopened, err := NewManager(db)
	require.NoError(t, err)
	require.NoError(t, reopened.AppendEvent(&types.Event{Type: "escrow.sale.cancelled"}))
	entries, err = reopened.Events("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, uint64(4), entries[3].Sequence)
}
