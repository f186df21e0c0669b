package registry

import (
	"errors"
	"testing"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestTransferRequiresOwnershipAndApproval(t *testing.T) {
	reg := NewMemory()
	seller := addr(0x01)
	custodian := addr(0x02)
	buyer := addr(0x03)

	if _, err := reg.OwnerOf(1); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
	reg.Mint(1, seller)

	// Unapproved operator cannot take custody.
	if err := reg.Transfer(1, custodian, seller, custodian); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	// Only the owner can grant an approval.
	if err := reg.Approve(1, custodian, custodian); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if err := reg.Approve(1, seller, custodian); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := reg.Transfer(1, custodian, seller, custodian); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	owner, err := reg.OwnerOf(1)
	if err != nil || owner != custodian {
		t.Fatalf("custodian should own the asset, got %x (%v)", owner, err)
	}

	// The approval was consumed; the old owner cannot move it back.
	if err := reg.Transfer(1, seller, custodian, seller); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	// The owner can always move its own asset.
	if err := reg.Transfer(1, custodian, custodian, buyer); err != nil {
		t.Fatalf("owner transfer: %v", err)
	}
	owner, _ = reg.OwnerOf(1)
	if owner != buyer {
		t.Fatalf("buyer should own the asset, got %x", owner)
	}
}

func TestTransferRejectsWrongOwner(t *testing.T) {
	reg := NewMemory()
	reg.Mint(1, addr(0x01))
	if err := reg.Transfer(1, addr(0x02), addr(0x02), addr(0x03)); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
}
