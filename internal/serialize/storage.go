// Package serialize implements C2: the item-to-text serializer that
// walks possibly-nested container trees and emits deterministic
// (embedding_text, storage_record) pairs (spec.md §4.2).
package serialize

import (
	"encoding/json"
	"sort"

	"github.com/kitsune-search/containerindex/internal/item"
)

// MaxDepth caps container-tree recursion (§4.2 invariant i).
const MaxDepth = 10

// DurabilityRecord mirrors item.Durability for storage-record encoding.
type DurabilityRecord struct {
	Current int     `json:"current"`
	Max     int     `json:"max"`
	Percent float64 `json:"percent"`
}

// EnchantmentRecord is one entry of the sorted enchantment list carried
// in the storage record (sorted so the JSON encoding is deterministic,
// satisfying §8 P7).
type EnchantmentRecord struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// ContainerRefRecord mirrors item.ContainerRef for JSON encoding.
type ContainerRefRecord struct {
	ContainerType   string `json:"container_type"`
	Color           string `json:"color,omitempty"`
	CustomName      string `json:"custom_name,omitempty"`
	ParentSlotIndex int    `json:"parent_slot_index"`
}

// StorageRecord is the opaque-to-most-components record produced per
// leaf item (§3). It is serialized to JSON bytes for persistence in C6.
type StorageRecord struct {
	FormattedName    string               `json:"formatted_name"`
	MaterialID       string               `json:"material_id"`
	Amount           int                  `json:"amount"`
	Slot             int                  `json:"slot"`
	DisplayName      string               `json:"display_name,omitempty"`
	CustomName       string               `json:"custom_name,omitempty"`
	Lore             []string             `json:"lore,omitempty"`
	Enchantments     []EnchantmentRecord  `json:"enchantments,omitempty"`
	Durability       *DurabilityRecord    `json:"durability,omitempty"`
	Rarity           string               `json:"rarity,omitempty"`
	CreativeCategory string               `json:"creative_category,omitempty"`
	MaterialType     string               `json:"material_type"` // "block" or "item"
	Unbreakable      bool                 `json:"unbreakable,omitempty"`
	ContainerPath    []ContainerRefRecord `json:"container_path,omitempty"`
}

// Marshal produces the deterministic JSON bytes for this record. Map
// fields are pre-sorted by the caller so the same logical content always
// yields byte-identical output (§8 P7).
func (r StorageRecord) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func sortedEnchantments(ench map[string]int) []EnchantmentRecord {
	if len(ench) == 0 {
		return nil
	}
	names := make([]string, 0, len(ench))
	for name := range ench {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]EnchantmentRecord, len(names))
	for i, name := range names {
		out[i] = EnchantmentRecord{Name: name, Level: ench[name]}
	}
	return out
}

func refRecord(ref item.ContainerRef) ContainerRefRecord {
	return ContainerRefRecord{
		ContainerType:   ref.ContainerType,
		Color:           ref.Color,
		CustomName:      ref.CustomName,
		ParentSlotIndex: ref.ParentSlotIndex,
	}
}

func pathRecords(path item.ContainerPath) []ContainerRefRecord {
	if len(path) == 0 {
		return nil
	}
	out := make([]ContainerRefRecord, len(path))
	for i, ref := range path {
		out[i] = refRecord(ref)
	}
	return out
}
