// Package ledger keeps token balances and allowances, the only mutable
// money state in the system. Tokens are registered once and addressed by
// small integer handles so lookups cannot go stringly-typed sideways.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	MinDecimals = 0
	MaxDecimals = 18
)

var (
	ErrInvalidAmount         = errors.New("amount must not be negative")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnknownToken          = errors.New("unknown token")
	ErrInvalidDecimals       = errors.New("decimals out of range")
)

// Address identifies a balance holder. Plain strings are fine here; it is
// the tokens that needed typed handles.
type Address string

// TokenID is the handle issued by Register.
type TokenID int32

type allowanceKey struct {
	owner   Address
	spender Address
}

// tokenState is one token's books. Every mutation happens under mu, so a
// transfer is atomic: no partial debit is ever observable.
type tokenState struct {
	mu         sync.RWMutex
	symbol     string
	decimals   int32
	balances   map[Address]*big.Int
	allowances map[allowanceKey]*big.Int
	supply     *big.Int
}

// Ledger owns all registered tokens.
type Ledger struct {
	mu     sync.RWMutex
	tokens []*tokenState
}

func New() *Ledger {
	return &Ledger{}
}

// Register creates a token and returns its handle. Decimals must lie in
// [0, 18].
func (l *Ledger) Register(symbol string, decimals int32) (TokenID, error) {
	if decimals < MinDecimals || decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: %s has %d", ErrInvalidDecimals, symbol, decimals)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens = append(l.tokens, &tokenState{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		supply:     new(big.Int),
	})
	return TokenID(len(l.tokens) - 1), nil
}

func (l *Ledger) token(id TokenID) (*tokenState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id < 0 || int(id) >= len(l.tokens) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownToken, id)
	}
	return l.tokens[id], nil
}

// Symbol returns the token's display symbol, or "?" for unknown handles so
// log formatting never fails.
func (l *Ledger) Symbol(id TokenID) string {
	t, err := l.token(id)
	if err != nil {
		return "?"
	}
	return t.symbol
}

// Decimals returns the token's decimal exponent.
func (l *Ledger) Decimals(id TokenID) (int32, error) {
	t, err := l.token(id)
	if err != nil {
		return 0, err
	}
	return t.decimals, nil
}

// Mint credits addr unconditionally. It is the funding entry point for
// setup and tests, not part of any settlement path, and the only operation
// that changes a token's total supply.
func (l *Ledger) Mint(id TokenID, addr Address, raw *big.Int) error {
	t, err := l.token(id)
	if err != nil {
		return err
	}
	if raw == nil || raw.Sign() < 0 {
		return fmt.Errorf("%w: mint %s", ErrInvalidAmount, raw)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(addr, raw)
	t.supply.Add(t.supply, raw)
	return nil
}

// Transfer moves raw units from one holder to another. Zero-sum: the two
// balances change together or not at all.
func (l *Ledger) Transfer(id TokenID, from, to Address, raw *big.Int) error {
	t, err := l.token(id)
	if err != nil {
		return err
	}
	if raw == nil || raw.Sign() < 0 {
		return fmt.Errorf("%w: transfer %s", ErrInvalidAmount, raw)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.move(from, to, raw)
}

// Approve sets the owner->spender allowance to raw. Overwrite semantics,
// not additive.
func (l *Ledger) Approve(id TokenID, owner, spender Address, raw *big.Int) error {
	t, err := l.token(id)
	if err != nil {
		return err
	}
	if raw == nil || raw.Sign() < 0 {
		return fmt.Errorf("%w: approve %s", ErrInvalidAmount, raw)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.allowances[allowanceKey{owner: owner, spender: spender}] = new(big.Int).Set(raw)
	return nil
}

// TransferFrom lets spender pull raw units from owner, gated by allowance.
// The allowance check runs before the balance check; a failed pull leaves
// balances and the allowance untouched. On success the allowance drops by
// exactly raw.
func (l *Ledger) TransferFrom(id TokenID, spender, owner, to Address, raw *big.Int) error {
	t, err := l.token(id)
	if err != nil {
		return err
	}
	if raw == nil || raw.Sign() < 0 {
		return fmt.Errorf("%w: transferFrom %s", ErrInvalidAmount, raw)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{owner: owner, spender: spender}
	allowed := t.allowances[key]
	if allowed == nil || allowed.Cmp(raw) < 0 {
		return fmt.Errorf("%w: %s allowed %s, need %s", ErrInsufficientAllowance, t.symbol, allowed, raw)
	}

	if err := t.move(owner, to, raw); err != nil {
		return err
	}

	t.allowances[key] = new(big.Int).Sub(allowed, raw)
	return nil
}

// Allowance returns the owner->spender allowance as a copy.
func (l *Ledger) Allowance(id TokenID, owner, spender Address) (*big.Int, error) {
	t, err := l.token(id)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if a := t.allowances[allowanceKey{owner: owner, spender: spender}]; a != nil {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

// BalanceOf returns addr's balance as a copy.
func (l *Ledger) BalanceOf(id TokenID, addr Address) (*big.Int, error) {
	t, err := l.token(id)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if b := t.balances[addr]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// TotalSupply returns the sum of all balances, which only Mint changes.
func (l *Ledger) TotalSupply(id TokenID) (*big.Int, error) {
	t, err := l.token(id)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	return new(big.Int).Set(t.supply), nil
}

// HumanToRaw converts a human-unit decimal string ("42.5") to raw units.
// Precision beyond the token's decimals truncates toward zero.
func (l *Ledger) HumanToRaw(id TokenID, human string) (*big.Int, error) {
	t, err := l.token(id)
	if err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(human)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, human)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, human)
	}

	return d.Shift(t.decimals).Truncate(0).BigInt(), nil
}

// RawToHuman converts raw units back to a human-unit decimal.
func (l *Ledger) RawToHuman(id TokenID, raw *big.Int) (decimal.Decimal, error) {
	t, err := l.token(id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromBigInt(raw, -t.decimals), nil
}

// credit adds raw to addr's balance. Caller holds t.mu.
func (t *tokenState) credit(addr Address, raw *big.Int) {
	if b := t.balances[addr]; b != nil {
		b.Add(b, raw)
		return
	}
	t.balances[addr] = new(big.Int).Set(raw)
}

// move debits from and credits to, or does neither. Caller holds t.mu.
func (t *tokenState) move(from, to Address, raw *big.Int) error {
	b := t.balances[from]
	if b == nil || b.Cmp(raw) < 0 {
		return fmt.Errorf("%w: %s balance of %s below %s", ErrInsufficientBalance, t.symbol, from, raw)
	}

	b.Sub(b, raw)
	t.credit(to, raw)
	return nil
}
