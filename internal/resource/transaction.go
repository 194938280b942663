package resource

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
	Shared  TransactionType = "shared"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

// Transaction is the typed view of a transactions resource.
type Transaction struct {
	ID          string          `json:"id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	AccountID   string          `json:"accountId"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
}

// Validate checks the fields every backend tier relies on.
func (t Transaction) Validate() error {
	switch t.Type {
	case Income, Expense, Shared:
	default:
		return fmt.Errorf("%w: type must be income, expense or shared, got %q", ErrInvalidTransaction, t.Type)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidTransaction)
	}
	if t.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidTransaction)
	}
	if t.AccountID == "" {
		return fmt.Errorf("%w: accountId is required", ErrInvalidTransaction)
	}
	return nil
}

// TransactionFrom converts a generic resource into a Transaction.
func TransactionFrom(r Resource) (Transaction, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return Transaction{}, err
	}
	var t Transaction
	if err := json.Unmarshal(b, &t); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return t, nil
}
