package types

import "math/big"

// Account tracks the spendable balance held for an address. The escrow
// custodian itself is an ordinary account; its balance is the pooled
// custodial balance.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}
