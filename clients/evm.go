package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	paytypes "github.com/radiodial/paygate/types"
)

var _ LedgerReader = (*EVMLedger)(nil)

// transferTopic is keccak256("Transfer(address,address,uint256)"), the
// event signature every ERC-20 emits on a value movement.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// DefaultLookupTimeout bounds one receipt resolution.
const DefaultLookupTimeout = 10 * time.Second

// EVMLedger reads transaction receipts from an EVM RPC endpoint.
type EVMLedger struct {
	network   paytypes.Network
	rpcURL    string
	client    *ethclient.Client
	timeout   time.Duration
	transfers bool
}

// EVMOption configures an EVMLedger.
type EVMOption func(*EVMLedger)

// WithTransferDecoding makes TransactionStatus populate Transfers for
// successful transactions. Off by default: resolving a plain value
// transfer costs an extra RPC round trip, and only strict verification
// consumes the decoded movements.
func WithTransferDecoding() EVMOption {
	return func(e *EVMLedger) { e.transfers = true }
}

// NewEVMLedger connects to the given RPC endpoint.
func NewEVMLedger(network paytypes.Network, rpcURL string, opts ...EVMOption) (*EVMLedger, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger RPC: %w", err)
	}

	e := &EVMLedger{
		network: network,
		rpcURL:  rpcURL,
		client:  client,
		timeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Network returns the ledger this client reads.
func (e *EVMLedger) Network() paytypes.Network {
	return e.network
}

// TransactionStatus resolves a transaction hash to its execution status
// and, with transfer decoding enabled, the decoded value movements. A
// hash the ledger has never seen yields Found=false with a nil error;
// RPC failures are returned as errors so the verifier can distinguish
// "not there" from "could not look".
func (e *EVMLedger) TransactionStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	hash := common.HexToHash(txHash)

	receipt, err := e.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &TxStatus{Found: false}, nil
		}
		return nil, fmt.Errorf("receipt lookup failed: %w", err)
	}

	status := &TxStatus{
		Found:     true,
		Succeeded: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		status.BlockNum = receipt.BlockNumber.Uint64()
	}
	if !status.Succeeded || !e.transfers {
		return status, nil
	}

	status.Transfers = decodeTransfers(receipt.Logs)

	// A plain value transfer carries no logs; resolve the native
	// movement so verification can still compare amounts. The extra
	// lookup is skipped when the receipt already yielded transfers.
	if len(status.Transfers) == 0 {
		native, err := e.nativeTransfer(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("native transfer lookup failed: %w", err)
		}
		if native != nil {
			status.Transfers = append(status.Transfers, *native)
		}
	}

	return status, nil
}

// decodeTransfers extracts ERC-20 Transfer events from receipt logs.
// Indexed from/to land in topics 1 and 2; the amount is the unindexed
// data word.
func decodeTransfers(logs []*types.Log) []TokenTransfer {
	var transfers []TokenTransfer
	for _, l := range logs {
		if len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		if len(l.Data) != 32 {
			continue
		}
		transfers = append(transfers, TokenTransfer{
			Contract: strings.ToLower(l.Address.Hex()),
			From:     strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
			To:       strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
			Amount:   new(big.Int).SetBytes(l.Data),
		})
	}
	return transfers
}

func (e *EVMLedger) nativeTransfer(ctx context.Context, hash common.Hash) (*TokenTransfer, error) {
	tx, _, err := e.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tx.Value().Sign() <= 0 || tx.To() == nil {
		return nil, nil
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, err
	}

	return &TokenTransfer{
		From:   strings.ToLower(from.Hex()),
		To:     strings.ToLower(tx.To().Hex()),
		Amount: new(big.Int).Set(tx.Value()),
	}, nil
}

// Close releases the RPC connection.
func (e *EVMLedger) Close() {
	e.client.Close()
}
