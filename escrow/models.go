// Package escrow tracks per-account deposits in the reference currency.
// Deposits arrive through the transfer webhook, leave through withdrawals,
// and are consumed by case operations (filing fees, arbitrator costs).
// A balance row exists only while the amount is strictly positive.
package escrow

import "time"

// Balance mirrors one balances row.
type Balance struct {
	Account   string
	Amount    int64
	UpdatedAt time.Time
}

// Deposit is the inbound transfer notification as delivered by the ledger
// gateway. Amount is int64 at four decimal places.
type Deposit struct {
	TransferID string
	From       string
	To         string
	Amount     int64
	Token      string
	Memo       string
}
