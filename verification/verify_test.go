package verification

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiodial/paygate/clients"
	"github.com/radiodial/paygate/types"
)

const (
	hashOK    = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	hashGone  = "0x0000000000000000000000000000000000000000000000000000000000000001"
	recipient = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

// fakeLedger serves canned transaction statuses.
type fakeLedger struct {
	statuses map[string]*clients.TxStatus
	err      error
	lookups  int
}

func (f *fakeLedger) TransactionStatus(_ context.Context, txHash string) (*clients.TxStatus, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.statuses[txHash]; ok {
		return s, nil
	}
	return &clients.TxStatus{Found: false}, nil
}

func (f *fakeLedger) Close() {}

func successfulTx() *clients.TxStatus {
	return &clients.TxStatus{Found: true, Succeeded: true}
}

func proofFor(amount string) *types.PaymentProof {
	return &types.PaymentProof{
		TxHash: hashOK,
		Payer:  "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Amount: amount,
		Token:  types.TokenRadio,
	}
}

func expected() types.Expected {
	return types.Expected{Amount: 3334, Token: types.TokenRadio, Recipient: recipient}
}

func TestVerify_Accepts(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger)

	result := s.Verify(context.Background(), proofFor("3334"), expected())
	require.True(t, result.Valid)
	assert.Empty(t, result.Code)
	assert.Equal(t, "3334", result.Amount)
	assert.Equal(t, types.TokenRadio, result.Token)
	assert.Equal(t, hashOK, result.TxHash)
}

func TestVerify_OverpaymentAccepted(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger)

	result := s.Verify(context.Background(), proofFor("5000"), expected())
	assert.True(t, result.Valid)
}

func TestVerify_InsufficientAmount(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger)

	result := s.Verify(context.Background(), proofFor("3000"), expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrInsufficientAmount, result.Code)
}

func TestVerify_TxNotFound(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{}}
	s := NewService(ledger)

	pr := proofFor("3334")
	pr.TxHash = hashGone
	result := s.Verify(context.Background(), pr, expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrTxNotFound, result.Code)
}

func TestVerify_TxFailed(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{
		hashOK: {Found: true, Succeeded: false},
	}}
	s := NewService(ledger)

	result := s.Verify(context.Background(), proofFor("3334"), expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrTxFailed, result.Code)
}

func TestVerify_WrongToken(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger)

	pr := proofFor("3334")
	pr.Token = types.TokenUSDC
	result := s.Verify(context.Background(), pr, expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrWrongToken, result.Code)
}

func TestVerify_AmountCheckedBeforeToken(t *testing.T) {
	// A proof short on amount and wrong on token reports the amount
	// shortfall: the checks run in that order.
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger)

	pr := proofFor("3000")
	pr.Token = types.TokenUSDC
	result := s.Verify(context.Background(), pr, expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrInsufficientAmount, result.Code)
}

func TestVerify_MalformedAmount(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger)

	pr := proofFor("lots")
	result := s.Verify(context.Background(), pr, expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrMalformedProof, result.Code)
}

func TestVerify_LedgerUnavailable(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("rpc timeout")}
	s := NewService(ledger)

	result := s.Verify(context.Background(), proofFor("3334"), expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrLedgerUnavailable, result.Code,
		"an unreachable ledger is not a missing transaction")
}

func TestVerify_Idempotent(t *testing.T) {
	// Re-verifying the same proof against unchanged ledger state must
	// yield an identical result, accept and reject alike.
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger)

	first := s.Verify(context.Background(), proofFor("3334"), expected())
	second := s.Verify(context.Background(), proofFor("3334"), expected())
	assert.Equal(t, first, second)
	assert.Equal(t, 2, ledger.lookups, "each verification consults the ledger")

	reject1 := s.Verify(context.Background(), proofFor("3000"), expected())
	reject2 := s.Verify(context.Background(), proofFor("3000"), expected())
	assert.Equal(t, reject1, reject2)
}

func TestVerify_ChallengeExpired(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	now := time.Unix(1_900_000_000, 0)
	s := NewService(ledger, WithClock(func() time.Time { return now }))

	exp := expected()
	exp.ExpiresAt = now.Unix() - 1
	result := s.Verify(context.Background(), proofFor("3334"), exp)
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrChallengeExpired, result.Code)
	assert.Zero(t, ledger.lookups, "expired challenges never reach the ledger")

	exp.ExpiresAt = now.Unix() + 60
	result = s.Verify(context.Background(), proofFor("3334"), exp)
	assert.True(t, result.Valid)
}

func TestVerify_ReplayGuard(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger, WithReplayGuard(NewReplayGuard(time.Hour)))

	first := s.Verify(context.Background(), proofFor("3334"), expected())
	require.True(t, first.Valid)

	second := s.Verify(context.Background(), proofFor("3334"), expected())
	require.False(t, second.Valid)
	assert.Equal(t, types.ErrProofReplayed, second.Code)
}

func TestVerify_ReplayGuardIgnoresRejectedProofs(t *testing.T) {
	// Only accepted proofs consume their hash; a rejected attempt can
	// be retried after topping up.
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{hashOK: successfulTx()}}
	s := NewService(ledger, WithReplayGuard(NewReplayGuard(time.Hour)))

	rejected := s.Verify(context.Background(), proofFor("3000"), expected())
	require.False(t, rejected.Valid)

	accepted := s.Verify(context.Background(), proofFor("3334"), expected())
	assert.True(t, accepted.Valid)
}

func TestVerify_StrictModeUsesLedgerTransfers(t *testing.T) {
	radioContract := types.TokenRadio.ContractAddress()
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{
		hashOK: {
			Found:     true,
			Succeeded: true,
			Transfers: []clients.TokenTransfer{{
				Contract: radioContract,
				From:     "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
				To:       recipient,
				Amount:   big.NewInt(3334),
			}},
		},
	}}
	s := NewService(ledger, WithStrictVerification())

	// The claimed amount is inflated; strict mode ignores it and reads
	// the on-ledger transfer instead.
	pr := proofFor("999999")
	result := s.Verify(context.Background(), pr, expected())
	require.True(t, result.Valid)
	assert.Equal(t, "3334", result.Amount)
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", result.Payer)
}

func TestVerify_StrictModeRejectsUnrelatedTx(t *testing.T) {
	// A genuine, successful transaction that paid someone else must not
	// satisfy the gate, however large the claimed amount.
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{
		hashOK: {
			Found:     true,
			Succeeded: true,
			Transfers: []clients.TokenTransfer{{
				Contract: types.TokenRadio.ContractAddress(),
				From:     "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
				To:       "0x000000000000000000000000000000000000dead",
				Amount:   big.NewInt(1000000),
			}},
		},
	}}
	s := NewService(ledger, WithStrictVerification())

	result := s.Verify(context.Background(), proofFor("1000000"), expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrInsufficientAmount, result.Code)
}

func TestVerify_StrictModeRejectsShortTransfer(t *testing.T) {
	ledger := &fakeLedger{statuses: map[string]*clients.TxStatus{
		hashOK: {
			Found:     true,
			Succeeded: true,
			Transfers: []clients.TokenTransfer{{
				Contract: types.TokenRadio.ContractAddress(),
				From:     "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
				To:       recipient,
				Amount:   big.NewInt(3000),
			}},
		},
	}}
	s := NewService(ledger, WithStrictVerification())

	result := s.Verify(context.Background(), proofFor("3334"), expected())
	require.False(t, result.Valid)
	assert.Equal(t, types.ErrInsufficientAmount, result.Code)
}

func TestReplayGuard_Expiry(t *testing.T) {
	g := NewReplayGuard(time.Minute)
	now := time.Unix(1_900_000_000, 0)
	g.now = func() time.Time { return now }

	require.True(t, g.MarkIfNew(hashOK))
	assert.False(t, g.MarkIfNew(hashOK))
	assert.True(t, g.Seen(hashOK))

	now = now.Add(2 * time.Minute)
	assert.False(t, g.Seen(hashOK), "entries expire after the window")
	assert.True(t, g.MarkIfNew(hashOK))
}
