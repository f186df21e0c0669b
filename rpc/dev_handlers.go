package rpc

import (
	"encoding/json"
	"math/big"

	"deedvault/core/types"
)

// Dev-mode helpers: when the daemon runs against the in-process registry these
// methods seed assets and account balances so a full sale can be exercised
// end to end without an external registry or bank.

type registryMintParams struct {
	AssetID uint64 `json:"assetId"`
	Owner   string `json:"owner"`
}

type registryApproveParams struct {
	AssetID  uint64 `json:"assetId"`
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
}

type bankMintParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type bankBalanceParams struct {
	Address string `json:"address"`
}

var errDevRegistryUnavailable = &rpcError{Code: codeMethodNotFound, Message: "registry methods unavailable: daemon is wired to an external registry"}

func (s *Server) handleRegistryMint(raw json.RawMessage) (any, *rpcError) {
	if s.devReg == nil {
		return nil, errDevRegistryUnavailable
	}
	var params registryMintParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	s.devReg.Mint(params.AssetID, owner)
	return acked, nil
}

func (s *Server) handleRegistryApprove(raw json.RawMessage) (any, *rpcError) {
	if s.devReg == nil {
		return nil, errDevRegistryUnavailable
	}
	var params registryApproveParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddr("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	operator, rpcErr := parseAddr("operator", params.Operator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.devReg.Approve(params.AssetID, owner, operator); err != nil {
		return nil, mapLedgerError("registry_approve", err)
	}
	return acked, nil
}

func (s *Server) handleRegistryOwnerOf(raw json.RawMessage) (any, *rpcError) {
	if s.devReg == nil {
		return nil, errDevRegistryUnavailable
	}
	var params assetParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := s.devReg.OwnerOf(params.AssetID)
	if err != nil {
		return nil, mapLedgerError("registry_ownerOf", err)
	}
	return map[string]string{"owner": formatAddr(owner)}, nil
}

func (s *Server) handleBankMint(raw json.RawMessage) (any, *rpcError) {
	var params bankMintParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if amount.Sign() <= 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: "amount must be positive"}
	}
	acc, err := s.st.GetAccount(addr)
	if err != nil {
		return nil, &rpcError{Code: codeServerError, Message: err.Error()}
	}
	if acc == nil {
		acc = &types.Account{Balance: big.NewInt(0)}
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	if err := s.st.PutAccount(addr, acc); err != nil {
		return nil, &rpcError{Code: codeServerError, Message: err.Error()}
	}
	return acked, nil
}

func (s *Server) handleBankGetBalance(raw json.RawMessage) (any, *rpcError) {
	var params bankBalanceParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, err := s.st.GetAccount(addr)
	if err != nil {
		return nil, &rpcError{Code: codeServerError, Message: err.Error()}
	}
	balance := big.NewInt(0)
	if acc != nil && acc.Balance != nil {
		balance = acc.Balance
	}
	return map[string]string{"balance": balance.String()}, nil
}
