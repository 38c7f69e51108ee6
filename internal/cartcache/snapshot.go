package cartcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront/pkg/contracts"
)

// SnapshotVersion is the persisted envelope version written by EncodeSnapshot.
const SnapshotVersion = 1

// ErrCorruptSnapshot is returned for snapshots that cannot be decoded or
// carry an unknown version.
var ErrCorruptSnapshot = errors.New("corrupt cart snapshot")

type envelope struct {
	Version *int            `json:"version"`
	State   json.RawMessage `json:"state"`
}

type snapshotState struct {
	Items []snapshotLine `json:"items"`
}

// snapshotLine keeps ids as strings so v0 rows with blank variants decode.
type snapshotLine struct {
	ID             string `json:"id,omitempty"`
	ProductID      string `json:"productId"`
	VariantID      string `json:"variantId,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Name           string `json:"name,omitempty"`
	Size           string `json:"size,omitempty"`
	Color          string `json:"color,omitempty"`
	Image          string `json:"image,omitempty"`
}

// EncodeSnapshot persists the line list only; loading and error flags are
// runtime state.
func EncodeSnapshot(lines []Line) ([]byte, error) {
	items := make([]snapshotLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, snapshotLine{
			ID:             line.ID,
			ProductID:      line.ProductID.String(),
			VariantID:      line.VariantID.String(),
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			Name:           line.Name,
			Size:           line.Size,
			Color:          line.Color,
			Image:          line.Image,
		})
	}
	state, err := json.Marshal(snapshotState{Items: items})
	if err != nil {
		return nil, err
	}
	version := SnapshotVersion
	return json.Marshal(envelope{Version: &version, State: state})
}

// DecodeSnapshot reads a persisted envelope, migrating v0 snapshots forward.
// A missing version field is read as v0.
func DecodeSnapshot(data []byte) ([]Line, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	version := 0
	if env.Version != nil {
		version = *env.Version
	}
	var state snapshotState
	if len(env.State) > 0 && string(env.State) != "null" {
		if err := json.Unmarshal(env.State, &state); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	}

	switch version {
	case 0:
		return migrateV0(state.Items), nil
	case SnapshotVersion:
		return decodeV1(state.Items)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}
}

func decodeV1(items []snapshotLine) ([]Line, error) {
	lines := make([]Line, 0, len(items))
	for i, item := range items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d product id: %v", ErrCorruptSnapshot, i, err)
		}
		variantID, err := uuid.Parse(item.VariantID)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d variant id: %v", ErrCorruptSnapshot, i, err)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d quantity %d", ErrCorruptSnapshot, i, item.Quantity)
		}
		line := item.line(productID, variantID)
		if idx := indexOf(lines, line.Key()); idx >= 0 {
			return nil, fmt.Errorf("%w: duplicate line for product %s", ErrCorruptSnapshot, productID)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// migrateV0 defaults blank variants to DefaultVariantID, assigns temporary ids,
// drops unusable rows and merges rows that collapse onto one key.
func migrateV0(items []snapshotLine) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		productID, err := uuid.Parse(strings.TrimSpace(item.ProductID))
		if err != nil {
			continue
		}
		variantID := contracts.DefaultVariantID
		if raw := strings.TrimSpace(item.VariantID); raw != "" {
			if parsed, err := uuid.Parse(raw); err == nil {
				variantID = parsed
			}
		}
		line := item.line(productID, variantID)
		if idx := indexOf(lines, line.Key()); idx >= 0 {
			lines[idx].Quantity += line.Quantity
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func (item snapshotLine) line(productID, variantID uuid.UUID) Line {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		id = newTempID()
	}
	return Line{
		ID:             id,
		ProductID:      productID,
		VariantID:      variantID,
		Quantity:       item.Quantity,
		UnitPriceCents: item.UnitPriceCents,
		Name:           item.Name,
		Size:           item.Size,
		Color:          item.Color,
		Image:          item.Image,
		State:          LineSynced,
	}
}
