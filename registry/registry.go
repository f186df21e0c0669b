// Package registry defines the external asset registry the escrow ledger
// settles against. The registry is the system of record for ownership of the
// asset being sold; the ledger only ever interacts with it through the
// AssetRegistry interface.
package registry

import "errors"

var (
	// ErrUnknownAsset is returned when an asset has never been registered.
	ErrUnknownAsset = errors.New("registry: unknown asset")
	// ErrTransferRejected is returned when a transfer is attempted by a party
	// that neither owns the asset nor holds an approval for it.
	ErrTransferRejected = errors.New("registry: transfer rejected")
)

// AssetRegistry is the ownership registry collaborator. Transfer moves custody
// of an asset and fails with ErrTransferRejected when from is not the current
// owner or the operator has not been approved by the owner.
type AssetRegistry interface {
	OwnerOf(assetID uint64) ([20]byte, error)
	Approve(assetID uint64, owner, operator [20]byte) error
	Transfer(assetID uint64, operator, from, to [20]byte) error
}
