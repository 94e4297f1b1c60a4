package token

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Ledger moves fungible token balances on behalf of the escrow engine. Both
// methods fail loudly on insufficient balance or missing approval; the engine
// never suppresses a transfer failure.
type Ledger interface {
	Transfer(token string, from, to [20]byte, amount *big.Int) error
	TransferFrom(token string, spender, from, to [20]byte, amount *big.Int) error
}

var (
	ErrInvalidToken          = fmt.Errorf("token: invalid token identifier")
	ErrInvalidAmount         = fmt.Errorf("token: amount must be positive")
	ErrInsufficientBalance   = fmt.Errorf("token: insufficient balance")
	ErrInsufficientAllowance = fmt.Errorf("token: insufficient allowance")
)

// NormalizeToken canonicalises a token identifier. Identifiers are opaque to
// the escrow engine; only emptiness is rejected.
func NormalizeToken(token string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(token))
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	return trimmed, nil
}

// BookLedger is an in-process Ledger keeping per-token balance books with
// owner/spender allowances. It backs tests and single-node deployments;
// production deployments inject whatever Ledger fronts the real token system.
type BookLedger struct {
	mu         sync.Mutex
	balances   map[string]map[[20]byte]*big.Int
	allowances map[string]map[[20]byte]map[[20]byte]*big.Int
}

func NewBookLedger() *BookLedger {
	return &BookLedger{
		balances:   make(map[string]map[[20]byte]*big.Int),
		allowances: make(map[string]map[[20]byte]map[[20]byte]*big.Int),
	}
}

// Mint credits freshly issued units to the given holder.
func (l *BookLedger) Mint(token string, to [20]byte, amount *big.Int) error {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(normalized, to, amount)
	return nil
}

// Approve authorises spender to move up to amount of owner's balance.
func (l *BookLedger) Approve(token string, owner, spender [20]byte, amount *big.Int) error {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	book, ok := l.allowances[normalized]
	if !ok {
		book = make(map[[20]byte]map[[20]byte]*big.Int)
		l.allowances[normalized] = book
	}
	owners, ok := book[owner]
	if !ok {
		owners = make(map[[20]byte]*big.Int)
		book[owner] = owners
	}
	owners[spender] = new(big.Int).Set(amount)
	return nil
}

// BalanceOf reports the current balance of addr for the given token.
func (l *BookLedger) BalanceOf(token string, addr [20]byte) *big.Int {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return big.NewInt(0)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	book, ok := l.balances[normalized]
	if !ok {
		return big.NewInt(0)
	}
	bal, ok := book[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

// Allowance reports how much spender may still move from owner's balance.
func (l *BookLedger) Allowance(token string, owner, spender [20]byte) *big.Int {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return big.NewInt(0)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	allowed := l.allowance(normalized, owner, spender)
	if allowed == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(allowed)
}

func (l *BookLedger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(normalized, from, to, amount)
}

func (l *BookLedger) TransferFrom(token string, spender, from, to [20]byte, amount *big.Int) error {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if spender != from {
		allowed := l.allowance(normalized, from, spender)
		if allowed == nil || allowed.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := l.move(normalized, from, to, amount); err != nil {
			return err
		}
		allowed.Sub(allowed, amount)
		return nil
	}
	return l.move(normalized, from, to, amount)
}

func (l *BookLedger) allowance(token string, owner, spender [20]byte) *big.Int {
	book, ok := l.allowances[token]
	if !ok {
		return nil
	}
	owners, ok := book[owner]
	if !ok {
		return nil
	}
	return owners[spender]
}

func (l *BookLedger) move(token string, from, to [20]byte, amount *big.Int) error {
	book, ok := l.balances[token]
	if !ok {
		return ErrInsufficientBalance
	}
	balance, ok := book[from]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	l.credit(token, to, amount)
	return nil
}

func (l *BookLedger) credit(token string, to [20]byte, amount *big.Int) {
	book, ok := l.balances[token]
	if !ok {
		book = make(map[[20]byte]*big.Int)
		l.balances[token] = book
	}
	balance, ok := book[to]
	if !ok {
		balance = big.NewInt(0)
		book[to] = balance
	}
	balance.Add(balance, amount)
}
