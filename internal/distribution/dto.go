package distribution

import (
	"encoding/json"
	"time"
)

type sumRequest struct {
	Amounts []json.Number `json:"amounts"`
}

type sumResponse struct {
	Sum string `json:"sum"`
}

type batchTransferRequest struct {
	Holders []string      `json:"holders"`
	Amounts []json.Number `json:"amounts"`
}

type withdrawRequest struct {
	Amount json.Number `json:"amount"`
}

type infoResponse struct {
	TokenAddress  string `json:"token_address"`
	LedgerAddress string `json:"ledger_address"`
	Owner         string `json:"owner"`
	VaultAddress  string `json:"vault_address"`
	BatchPolicy   string `json:"batch_policy"`
	Balance       string `json:"balance"`
	Idempotency   bool   `json:"idempotency"`
}

type balanceResponse struct {
	Account string    `json:"account"`
	Balance string    `json:"balance"`
	AsOf    time.Time `json:"timestamp"`
}

// TransferResponse is the wire form of a token transfer.
type TransferResponse struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// ReceiptResponse is the wire form of a Receipt.
type ReceiptResponse struct {
	ReceiptID     string             `json:"receipt_id"`
	Kind          string             `json:"kind"`
	Caller        string             `json:"caller"`
	Total         string             `json:"total"`
	LedgerBalance string             `json:"ledger_balance"`
	Transfers     []TransferResponse `json:"transfers"`
	CompletedAt   time.Time          `json:"completed_at"`
}

func toReceiptResponse(r Receipt) ReceiptResponse {
	out := ReceiptResponse{
		ReceiptID:   r.ID,
		Kind:        r.Kind,
		Caller:      r.Caller.Hex(),
		Total:       r.Total.Dec(),
		Transfers:   make([]TransferResponse, 0, len(r.Transfers)),
		CompletedAt: r.CompletedAt,
	}
	if r.Balance != nil {
		out.LedgerBalance = r.Balance.Dec()
	}
	for _, t := range r.Transfers {
		out.Transfers = append(out.Transfers, TransferResponse{
			ID:        t.ID.String(),
			From:      t.From.Hex(),
			To:        t.To.Hex(),
			Amount:    t.Amount.Dec(),
			CreatedAt: t.CreatedAt,
		})
	}
	return out
}

func numbersToStrings(values []json.Number) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}
