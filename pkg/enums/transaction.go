package enums

import "fmt"

// TransactionType classifies a money movement recorded against an order.
type TransactionType string

const (
	TransactionTypeAuthorize TransactionType = "AUTHORIZE"
	TransactionTypeCharge    TransactionType = "CHARGE"
	TransactionTypeRefund    TransactionType = "REFUND"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeAuthorize,
	TransactionTypeCharge,
	TransactionTypeRefund,
}

func (t TransactionType) String() string {
	return string(t)
}

func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus is the provider outcome for a transaction row.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "PENDING"
	TransactionStatusSuccess  TransactionStatus = "SUCCESS"
	TransactionStatusFailed   TransactionStatus = "FAILED"
	TransactionStatusRefunded TransactionStatus = "REFUNDED"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusSuccess,
	TransactionStatusFailed,
	TransactionStatusRefunded,
}

func (s TransactionStatus) String() string {
	return string(s)
}

func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
