package cartcache

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/contracts"
)

// LineState tracks whether a local line agrees with the server.
type LineState int

const (
	// LineSynced matches the last applied server cart.
	LineSynced LineState = iota
	// LinePendingWrite carries an optimistic change the server has not confirmed.
	LinePendingWrite
	// LineReverting was rejected by the server and waits for a resync or rollback.
	LineReverting
)

func (s LineState) String() string {
	switch s {
	case LineSynced:
		return "synced"
	case LinePendingWrite:
		return "pending"
	case LineReverting:
		return "reverting"
	default:
		return "unknown"
	}
}

const tempIDPrefix = "tmp-"

// Line is one cart line as the cache presents it.
type Line struct {
	ID             string
	ProductID      uuid.UUID
	VariantID      uuid.UUID
	Quantity       int
	UnitPriceCents int64
	Name           string
	Size           string
	Color          string
	Image          string
	AvailableQty   int
	State          LineState
}

func (l Line) Key() contracts.LineKey {
	return contracts.LineKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

// Temporary reports whether the line has not been assigned a server id yet.
func (l Line) Temporary() bool {
	return strings.HasPrefix(l.ID, tempIDPrefix)
}

func (l Line) LineTotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// NewLine is the input to AddItem.
type NewLine struct {
	ProductID      uuid.UUID
	VariantID      uuid.UUID
	Quantity       int
	UnitPriceCents int64
	Name           string
	Size           string
	Color          string
	Image          string
}

func (n NewLine) key() contracts.LineKey {
	return contracts.LineKey{ProductID: n.ProductID, VariantID: n.VariantID}
}

func (n NewLine) line() Line {
	return Line{
		ID:             newTempID(),
		ProductID:      n.ProductID,
		VariantID:      n.VariantID,
		Quantity:       n.Quantity,
		UnitPriceCents: n.UnitPriceCents,
		Name:           n.Name,
		Size:           n.Size,
		Color:          n.Color,
		Image:          n.Image,
		State:          LinePendingWrite,
	}
}

func newTempID() string {
	return tempIDPrefix + uuid.NewString()
}

func lineFromServer(l contracts.CartLine) Line {
	return Line{
		ID:             l.ID,
		ProductID:      l.ProductID,
		VariantID:      l.VariantID,
		Quantity:       l.Quantity,
		UnitPriceCents: l.UnitPriceCents,
		Name:           l.Name,
		Size:           l.Size,
		Color:          l.Color,
		Image:          l.Image,
		AvailableQty:   l.AvailableQty,
		State:          LineSynced,
	}
}

// State is a point-in-time copy of the cache.
type State struct {
	Items   []Line
	Version int64
	Loading bool
	Err     error
}

func (s State) TotalItems() int {
	total := 0
	for _, line := range s.Items {
		total += line.Quantity
	}
	return total
}

func (s State) SubtotalCents() int64 {
	var total int64
	for _, line := range s.Items {
		total += line.LineTotalCents()
	}
	return total
}

// Find returns the line for the given product and variant.
func (s State) Find(productID, variantID uuid.UUID) (Line, bool) {
	idx := indexOf(s.Items, contracts.LineKey{ProductID: productID, VariantID: variantID})
	if idx < 0 {
		return Line{}, false
	}
	return s.Items[idx], true
}

func indexOf(lines []Line, key contracts.LineKey) int {
	for i, line := range lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

func cloneLines(lines []Line) []Line {
	if lines == nil {
		return []Line{}
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

func removeAt(lines []Line, idx int) []Line {
	out := make([]Line, 0, len(lines)-1)
	out = append(out, lines[:idx]...)
	return append(out, lines[idx+1:]...)
}
