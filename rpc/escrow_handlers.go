package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"deedvault/crypto"
	"deedvault/escrow"
	"deedvault/observability"
	"deedvault/registry"
)

type listParams struct {
	Caller        string `json:"caller"`
	AssetID       uint64 `json:"assetId"`
	Buyer         string `json:"buyer"`
	PurchasePrice string `json:"purchasePrice"`
	EscrowAmount  string `json:"escrowAmount"`
}

type depositParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Amount  string `json:"amount"`
}

type statusParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
	Passed  bool   `json:"passed"`
}

type approveParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
}

type assetParams struct {
	AssetID uint64 `json:"assetId"`
}

type cancelParams struct {
	Caller  string `json:"caller"`
	AssetID uint64 `json:"assetId"`
}

type fundParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ListingResult is the RPC view of a stored listing record.
type ListingResult struct {
	AssetID          uint64   `json:"assetId"`
	Listed           bool     `json:"listed"`
	PurchasePrice    string   `json:"purchasePrice"`
	EscrowAmount     string   `json:"escrowAmount"`
	Buyer            string   `json:"buyer,omitempty"`
	Deposited        string   `json:"deposited"`
	InspectionPassed bool     `json:"inspectionPassed"`
	LegalPassed      bool     `json:"legalPassed"`
	Approvals        []string `json:"approvals,omitempty"`
}

// RolesResult exposes the ledger's fixed identities.
type RolesResult struct {
	Seller               string `json:"seller"`
	Inspector            string `json:"inspector"`
	Lender               string `json:"lender"`
	LegalReviewer        string `json:"legalReviewer"`
	Custodian            string `json:"custodian"`
	RequireLegalApproval bool   `json:"requireLegalApproval"`
}

type ackResult struct {
	Status string `json:"status"`
}

var acked = ackResult{Status: "ok"}

func decodeParams(raw json.RawMessage, dst any) *rpcError {
	if len(raw) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func parseAddr(field, value string) ([20]byte, *rpcError) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return out, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("%s: %v", field, err)}
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAmountParam(field, value string) (*big.Int, *rpcError) {
	amt, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: field + ": expected a base-10 amount"}
	}
	return amt, nil
}

func formatAddr(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return crypto.NewAddress(crypto.DVPrefix, addr[:]).String()
}

// mapLedgerError translates the escrow error taxonomy into RPC codes.
func mapLedgerError(operation string, err error) *rpcError {
	var code int
	switch {
	case errors.Is(err, escrow.ErrUnauthorized):
		code = codeEscrowForbidden
	case errors.Is(err, escrow.ErrNotListed):
		code = codeEscrowNotListed
	case errors.Is(err, escrow.ErrPreconditionNotMet):
		code = codeEscrowPrecondition
	case errors.Is(err, escrow.ErrInsufficientFunds), errors.Is(err, escrow.ErrInsufficientBalance):
		code = codeEscrowInsufficient
	case errors.Is(err, registry.ErrTransferRejected), errors.Is(err, registry.ErrUnknownAsset):
		code = codeEscrowTransferRejected
	default:
		code = codeServerError
	}
	observability.Escrow().RecordError(operation, fmt.Sprintf("%d", code))
	return &rpcError{Code: code, Message: err.Error()}
}

func (s *Server) handleList(raw json.RawMessage) (any, *rpcError) {
	var params listParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	buyer, rpcErr := parseAddr("buyer", params.Buyer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmountParam("purchasePrice", params.PurchasePrice)
	if rpcErr != nil {
		return nil, rpcErr
	}
	escrowAmount, rpcErr := parseAmountParam("escrowAmount", params.EscrowAmount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.List(caller, params.AssetID, buyer, price, escrowAmount); err != nil {
		return nil, mapLedgerError("escrow_list", err)
	}
	return acked, nil
}

func (s *Server) handleDepositEarnest(raw json.RawMessage) (any, *rpcError) {
	var params depositParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.DepositEarnest(caller, params.AssetID, amount); err != nil {
		return nil, mapLedgerError("escrow_depositEarnest", err)
	}
	return acked, nil
}

func (s *Server) handleSetInspectionStatus(raw json.RawMessage) (any, *rpcError) {
	var params statusParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.SetInspectionStatus(caller, params.AssetID, params.Passed); err != nil {
		return nil, mapLedgerError("escrow_setInspectionStatus", err)
	}
	return acked, nil
}

func (s *Server) handleSetLegalStatus(raw json.RawMessage) (any, *rpcError) {
	var params statusParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.SetLegalStatus(caller, params.AssetID, params.Passed); err != nil {
		return nil, mapLedgerError("escrow_setLegalStatus", err)
	}
	return acked, nil
}

func (s *Server) handleApproveSale(raw json.RawMessage) (any, *rpcError) {
	var params approveParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.ApproveSale(caller, params.AssetID); err != nil {
		return nil, mapLedgerError("escrow_approveSale", err)
	}
	return acked, nil
}

func (s *Server) handleFinalize(raw json.RawMessage) (any, *rpcError) {
	var params assetParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Finalize(params.AssetID); err != nil {
		return nil, mapLedgerError("escrow_finalize", err)
	}
	return acked, nil
}

func (s *Server) handleCancelSale(raw json.RawMessage) (any, *rpcError) {
	var params cancelParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.CancelSale(caller, params.AssetID); err != nil {
		return nil, mapLedgerError("escrow_cancelSale", err)
	}
	return acked, nil
}

func (s *Server) handleFund(raw json.RawMessage) (any, *rpcError) {
	var params fundParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddr("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Receive(from, amount); err != nil {
		return nil, mapLedgerError("escrow_fund", err)
	}
	return acked, nil
}

func (s *Server) handleGetListing(raw json.RawMessage) (any, *rpcError) {
	var params assetParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	listing, ok := s.ledger.Listing(params.AssetID)
	if !ok {
		return nil, &rpcError{Code: codeEscrowNotListed, Message: fmt.Sprintf("no record for asset %d", params.AssetID)}
	}
	result := ListingResult{
		AssetID:          listing.AssetID,
		Listed:           listing.Listed,
		PurchasePrice:    listing.PurchasePrice.String(),
		EscrowAmount:     listing.EscrowAmount.String(),
		Buyer:            formatAddr(listing.Buyer),
		Deposited:        listing.Deposited.String(),
		InspectionPassed: listing.InspectionPassed,
		LegalPassed:      listing.LegalPassed,
	}
	for addr, approved := range listing.Approvals {
		if approved {
			result.Approvals = append(result.Approvals, formatAddr(addr))
		}
	}
	sort.Strings(result.Approvals)
	return result, nil
}

func (s *Server) handleGetBalance() (any, *rpcError) {
	balance, err := s.ledger.Balance()
	if err != nil {
		return nil, mapLedgerError("escrow_getBalance", err)
	}
	return map[string]string{"balance": balance.String()}, nil
}

func (s *Server) handleRoles() (any, *rpcError) {
	return RolesResult{
		Seller:               formatAddr(s.ledger.Seller()),
		Inspector:            formatAddr(s.ledger.Inspector()),
		Lender:               formatAddr(s.ledger.Lender()),
		LegalReviewer:        formatAddr(s.ledger.LegalReviewer()),
		Custodian:            formatAddr(s.ledger.Custodian()),
		RequireLegalApproval: s.ledger.RequiresLegalApproval(),
	}, nil
}

func (s *Server) handleListEvents(raw json.RawMessage) (any, *rpcError) {
	params := listEventsParams{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
		}
	}
	entries, err := s.st.Events(params.Prefix, params.Limit)
	if err != nil {
		return nil, &rpcError{Code: codeServerError, Message: err.Error()}
	}
	return entries, nil
}
