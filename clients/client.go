// Package clients provides read-only ledger access. The gateway never
// writes to the ledger; it only resolves transaction receipts it is
// handed references to.
package clients

import (
	"context"
	"math/big"
)

// TokenTransfer is one value movement decoded from a confirmed
// transaction: either an ERC-20 Transfer event or the native value of
// the transaction itself (Contract empty).
type TokenTransfer struct {
	Contract string
	From     string
	To       string
	Amount   *big.Int
}

// TxStatus is the ledger's view of one transaction. Transfers is only
// populated by readers configured to decode them.
type TxStatus struct {
	Found     bool
	Succeeded bool
	BlockNum  uint64
	Transfers []TokenTransfer
}

// LedgerReader resolves transaction hashes against a ledger. Lookups
// are read-only and idempotent: the same hash yields the same status
// for as long as the underlying transaction state is unchanged.
type LedgerReader interface {
	TransactionStatus(ctx context.Context, txHash string) (*TxStatus, error)
	Close()
}
