package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller left it empty.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Product{},
		&ProductVariant{},
		&ProductImage{},
		&InventoryItem{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Transaction{},
		&Refund{},
		&ReturnRequest{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
