package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
)

// Inventory is the bundled station inventory, read once per process.
// A failed read is not cached.
type Inventory struct {
	path string

	mu      sync.Mutex
	records []domain.InventoryRecord
}

// NewInventory creates an Inventory backed by the JSON file at path.
func NewInventory(path string) *Inventory {
	return &Inventory{path: path}
}

// Load returns the inventory records, reading the file on first use.
func (inv *Inventory) Load(_ context.Context) ([]domain.InventoryRecord, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.records != nil {
		return inv.records, nil
	}

	data, err := os.ReadFile(inv.path)
	if err != nil {
		return nil, fmt.Errorf("read station inventory: %w", err)
	}
	records, err := decodeInventory(data)
	if err != nil {
		return nil, fmt.Errorf("parse station inventory %s: %w", inv.path, err)
	}
	inv.records = records
	return records, nil
}

// Invalidate forces the next Load to re-read the file.
func (inv *Inventory) Invalidate() {
	inv.mu.Lock()
	inv.records = nil
	inv.mu.Unlock()
}

// decodeInventory accepts a bare array or an {"items": [...]} envelope.
func decodeInventory(data []byte) ([]domain.InventoryRecord, error) {
	data = bytes.TrimSpace(data)
	records := []domain.InventoryRecord{}
	if len(data) > 0 && data[0] == '{' {
		var envelope struct {
			Items []domain.InventoryRecord `json:"items"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, err
		}
		if envelope.Items != nil {
			records = envelope.Items
		}
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
