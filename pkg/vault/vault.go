// Package vault provides the capacity-bounded, in-memory storage engine for CellVault.
//
// A Vault holds a fixed number of numbered cells. Each Cell holds named, sized
// items up to its own byte capacity. Two independent limits apply:
//   - Vault capacity: the maximum number of distinct cell ids ever created
//   - Cell capacity: the maximum total size of the items inside one cell
//
// Cells are created lazily on the first Put to an unseen id and are never
// removed, even after every item has been taken out. An id, once used, keeps
// its slot for the lifetime of the Vault.
//
// Example usage:
//
//	v := vault.New(10)
//
//	if err := v.Put(1, vault.Item{Name: "gold", Size: 10}, 100); err != nil {
//		log.Fatal(err)
//	}
//
//	desc, ok, err := v.Get(1)
//	// desc == "Items: gold: 10 | Used: 10/100", ok == true
//
//	item, err := v.Take(1, "gold")
//	// item == Item{Name: "gold", Size: 10}
//
// All Vault operations are safe for concurrent use. A single mutex covers the
// whole Vault and is held for exactly one operation at a time.
package vault

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Cell-level errors.
var (
	ErrNoSpace = errors.New("not enough space in cell")
	ErrNoItem  = errors.New("no such item in cell")
)

// Vault-level errors. The messages double as the wire text sent to clients.
var (
	ErrVaultFull    = errors.New("vault is full")
	ErrCellFull     = errors.New("cell is full")
	ErrCellNotFound = errors.New("cell not found")
	ErrItemNotFound = errors.New("item not found")
)

// Item is a named, sized unit of data stored inside a Cell.
type Item struct {
	Name string
	Size uint32
}

// Cell is a bounded container of items.
// UsedSpace always equals the sum of the item sizes and never exceeds Capacity.
// A Cell does no locking of its own; the owning Vault serializes access.
type Cell struct {
	items     []Item
	capacity  uint32
	usedSpace uint32
}

// NewCell creates an empty cell with the given byte capacity.
func NewCell(capacity uint32) *Cell {
	return &Cell{capacity: capacity}
}

// Capacity returns the maximum total item size the cell accepts.
func (c *Cell) Capacity() uint32 { return c.capacity }

// UsedSpace returns the total size of the items currently held.
func (c *Cell) UsedSpace() uint32 { return c.usedSpace }

// Items returns a copy of the items in insertion order.
func (c *Cell) Items() []Item { return slices.Clone(c.items) }

// PutItem appends item to the cell.
// It returns ErrNoSpace, leaving the cell untouched, when the item does not fit.
// There is no partial accept.
func (c *Cell) PutItem(item Item) error {
	if uint64(c.usedSpace)+uint64(item.Size) > uint64(c.capacity) {
		return ErrNoSpace
	}
	c.usedSpace += item.Size
	c.items = append(c.items, item)
	return nil
}

// ListItems describes the cell contents as
//
//	Items: gold: 10, silver: 5 | Used: 15/100
//
// The second return value is false when the cell holds no items.
func (c *Cell) ListItems() (string, bool) {
	if len(c.items) == 0 {
		return "", false
	}

	parts := make([]string, 0, len(c.items))
	for _, item := range c.items {
		parts = append(parts, fmt.Sprintf("%s: %d", item.Name, item.Size))
	}

	return fmt.Sprintf("Items: %s | Used: %d/%d", strings.Join(parts, ", "), c.usedSpace, c.capacity), true
}

// Take removes the first item named name and returns it.
// Later items with the same name stay in place. Used space shrinks by the
// item's size and saturates at zero. ErrNoItem is returned when nothing matches.
func (c *Cell) Take(name string) (Item, error) {
	idx := slices.IndexFunc(c.items, func(item Item) bool { return item.Name == name })
	if idx < 0 {
		return Item{}, ErrNoItem
	}

	item := c.items[idx]
	c.items = slices.Delete(c.items, idx, idx+1)
	if item.Size > c.usedSpace {
		c.usedSpace = 0
	} else {
		c.usedSpace -= item.Size
	}
	return item, nil
}

// Stats is a point-in-time summary of a Vault.
type Stats struct {
	Cells     int    // Number of cell ids in use
	Capacity  int    // Maximum number of cell ids
	Items     int    // Items across all cells
	UsedSpace uint64 // Sum of used space across all cells
	CellSpace uint64 // Sum of cell capacities
}

// Vault is a slot-bounded collection of cells keyed by numeric id.
//
// Example:
//
//	v := vault.New(2)
//	_ = v.Put(1, vault.Item{Name: "gold", Size: 10}, 100)
//	_ = v.Put(2, vault.Item{Name: "rock", Size: 50}, 100)
//
//	err := v.Put(3, vault.Item{Name: "gem", Size: 1}, 100)
//	// errors.Is(err, vault.ErrVaultFull) == true
//
//	err = v.Put(1, vault.Item{Name: "gem", Size: 1}, 100)
//	// err == nil: existing ids are always writable
type Vault struct {
	cells    map[uint32]*Cell // Cells keyed by id
	capacity int              // Maximum number of distinct ids
	mu       sync.Mutex       // Covers every cell and the map
}

// New creates an empty Vault that can hold up to capacity distinct cell ids.
func New(capacity int) *Vault {
	return &Vault{
		cells:    make(map[uint32]*Cell),
		capacity: capacity,
	}
}

// Capacity returns the maximum number of distinct cell ids.
func (v *Vault) Capacity() int { return v.capacity }

// Put stores item in the cell identified by id.
//
// A previously unseen id on a full vault fails with ErrVaultFull and creates
// nothing. Otherwise the cell is fetched or created with cellCapacity; the
// capacity of an existing cell never changes. If the item does not fit the
// result is ErrCellFull, and a freshly created cell is kept even though it is
// empty.
//
// Parameters:
//   - id: Cell identifier
//   - item: Item to store
//   - cellCapacity: Capacity used only when the cell has to be created
//
// Returns:
//   - nil on success
//   - ErrVaultFull or ErrCellFull
func (v *Vault) Put(id uint32, item Item, cellCapacity uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	cell, exists := v.cells[id]
	if !exists {
		if len(v.cells) >= v.capacity {
			return ErrVaultFull
		}
		cell = NewCell(cellCapacity)
		v.cells[id] = cell
	}

	if err := cell.PutItem(item); err != nil {
		return ErrCellFull
	}
	return nil
}

// Get describes the contents of cell id.
// The boolean is false when the cell exists but is empty.
// ErrCellNotFound is returned when no cell was ever created for id.
func (v *Vault) Get(id uint32) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cell, exists := v.cells[id]
	if !exists {
		return "", false, ErrCellNotFound
	}

	desc, ok := cell.ListItems()
	return desc, ok, nil
}

// List describes the occupied cell ids in ascending order:
//
//	Occupied cells: 1, 4, 7
//
// The boolean is false when the vault holds no cells.
func (v *Vault) List() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.cells) == 0 {
		return "", false
	}

	ids := make([]uint32, 0, len(v.cells))
	for id := range v.cells {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}

	return "Occupied cells: " + strings.Join(parts, ", "), true
}

// Take removes the first item named name from cell id.
// It returns ErrCellNotFound when the cell does not exist and
// ErrItemNotFound when the cell holds no such item. The cell itself is
// never removed, even when it becomes empty.
func (v *Vault) Take(id uint32, name string) (Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cell, exists := v.cells[id]
	if !exists {
		return Item{}, ErrCellNotFound
	}

	item, err := cell.Take(name)
	if err != nil {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

// Stats returns a summary of the current vault contents.
func (v *Vault) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	stats := Stats{
		Cells:    len(v.cells),
		Capacity: v.capacity,
	}
	for _, cell := range v.cells {
		stats.Items += len(cell.items)
		stats.UsedSpace += uint64(cell.usedSpace)
		stats.CellSpace += uint64(cell.capacity)
	}
	return stats
}
