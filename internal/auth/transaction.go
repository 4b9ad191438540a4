package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// TransactionTTL bounds how long a login may take at the provider
const TransactionTTL = 10 * time.Minute

var (
	ErrInvalidTransaction = errors.New("invalid login transaction")
	ErrInvalidState       = errors.New("login state mismatch")
)

// Transaction is what /login remembers for /callback
type Transaction struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	ReturnTo     string    `json:"return_to"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewTransaction creates fresh state, nonce and PKCE verifier values
func NewTransaction(returnTo string, verifier string) (*Transaction, error) {
	state, err := GenerateRandomString(StateLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	nonce, err := GenerateRandomString(StateLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return &Transaction{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		ReturnTo:     SafeReturnTo(returnTo),
		CreatedAt:    time.Now(),
	}, nil
}

// SealTransaction encodes a transaction into a cookie value
func SealTransaction(s *Sealer, tx *Transaction) (string, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return s.Seal(raw)
}

// OpenTransaction decodes a cookie value and checks its age
func OpenTransaction(s *Sealer, value string, now time.Time) (*Transaction, error) {
	raw, err := s.Open(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if now.Sub(tx.CreatedAt) > TransactionTTL {
		return nil, fmt.Errorf("%w: expired", ErrInvalidTransaction)
	}
	return &tx, nil
}

// SafeReturnTo only allows same-origin absolute paths. Browsers drop tab
// and newline from URLs, so any control character is rejected outright.
func SafeReturnTo(returnTo string) string {
	if returnTo == "" ||
		strings.ContainsFunc(returnTo, unicode.IsControl) ||
		!strings.HasPrefix(returnTo, "/") ||
		strings.HasPrefix(returnTo, "//") ||
		strings.HasPrefix(returnTo, "/\\") {
		return "/"
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return returnTo
}
