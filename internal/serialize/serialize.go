package serialize

import (
	"strings"

	"github.com/kitsune-search/containerindex/internal/item"
	"github.com/kitsune-search/containerindex/internal/tags"
)

// SerializedItem is C2's output unit: the embedding input text paired
// with the opaque storage record and the container path it lives at.
type SerializedItem struct {
	EmbeddingText string
	StorageRecord []byte
	ContainerPath item.ContainerPath
	Slot          int
}

// Serializer walks container trees and emits SerializedItems (§4.2).
type Serializer struct {
	registry *tags.Registry
}

// New creates a Serializer backed by the given tag registry.
func New(registry *tags.Registry) *Serializer {
	return &Serializer{registry: registry}
}

// Serialize walks items depth-first, skipping empty slots, and returns
// one SerializedItem per non-empty item encountered: container items
// (bundles/shulkers) get their own entry, followed by entries for the
// items nested inside them, up to MaxDepth.
//
// Slot indices are the caller's original inventory slot indices; empty
// slots are elided without shifting them (§4.2 invariant iii).
func (s *Serializer) Serialize(items []item.Item) []SerializedItem {
	var out []SerializedItem
	for slot, it := range items {
		if it == nil || it.IsEmpty() {
			continue
		}
		s.walk(it, slot, item.Root, 0, &out)
	}
	return out
}

func (s *Serializer) walk(it item.Item, slot int, path item.ContainerPath, depth int, out *[]SerializedItem) {
	embedText := s.embeddingText(it)
	record := s.buildRecord(it, slot, path)

	bytes, err := record.Marshal()
	if err != nil {
		// Programmer error: a well-formed record always marshals.
		bytes = []byte("{}")
	}

	*out = append(*out, SerializedItem{
		EmbeddingText: embedText,
		StorageRecord: bytes,
		ContainerPath: path,
		Slot:          slot,
	})

	if depth >= MaxDepth {
		return
	}

	childPath := func(containerType, color, customName string) item.ContainerPath {
		return path.Append(item.ContainerRef{
			ContainerType:   containerType,
			Color:           color,
			CustomName:      customName,
			ParentSlotIndex: slot,
		})
	}

	if contents := it.BundleContents(); len(contents) > 0 {
		cp := childPath("bundle", "", displayOrCustom(it))
		s.walkChildren(contents, cp, depth+1, out)
	}
	if contents := it.ContainerContents(); len(contents) > 0 {
		containerType, color := containerTypeAndColor(it)
		cp := childPath(containerType, color, displayOrCustom(it))
		s.walkChildren(contents, cp, depth+1, out)
	}
}

func (s *Serializer) walkChildren(children []item.Item, path item.ContainerPath, depth int, out *[]SerializedItem) {
	for slot, child := range children {
		if child == nil || child.IsEmpty() {
			continue
		}
		s.walk(child, slot, path, depth, out)
	}
}

func displayOrCustom(it item.Item) string {
	if name, ok := it.CustomName(); ok {
		return name
	}
	return ""
}

// containerTypeAndColor returns the item's container type and, for a
// shulker, the color derived by stripping the "_SHULKER_BOX" suffix from
// its material id, per §4.2 step 3.
func containerTypeAndColor(it item.Item) (string, string) {
	ct := it.ContainerType()
	if ct == "" {
		ct = "container"
	}
	id := strings.ToUpper(it.MaterialID())
	if strings.HasSuffix(id, "_SHULKER_BOX") {
		color := strings.ToLower(strings.TrimSuffix(id, "_SHULKER_BOX"))
		return "shulker_box", color
	}
	if id == "SHULKER_BOX" {
		return "shulker_box", ""
	}
	return ct, ""
}

// embeddingText builds "<title-cased material> #<tag> #<tag> ..." in
// lowercase, per §4.2 step 1.
func (s *Serializer) embeddingText(it item.Item) string {
	titled := tags.FormatName(it.MaterialID())
	collected := s.registry.CollectTags(it)

	var b strings.Builder
	b.WriteString(strings.ToLower(titled))
	for _, t := range collected {
		b.WriteString(" #")
		b.WriteString(t)
	}
	return b.String()
}

func (s *Serializer) buildRecord(it item.Item, slot int, path item.ContainerPath) StorageRecord {
	materialType := "item"
	if it.Flags().IsBlock {
		materialType = "block"
	}

	record := StorageRecord{
		FormattedName: tags.FormatName(it.MaterialID()),
		MaterialID:    it.MaterialID(),
		Amount:        it.Amount(),
		Slot:          slot,
		Lore:          it.Lore(),
		Enchantments:  sortedEnchantments(it.Enchantments()),
		MaterialType:  materialType,
		Unbreakable:   it.Flags().Unbreakable,
	}

	if name, ok := it.CustomName(); ok {
		record.CustomName = name
	}
	record.DisplayName = it.DisplayName()

	if dur, ok := it.Durability(); ok {
		record.Durability = &DurabilityRecord{Current: dur.Current, Max: dur.Max, Percent: dur.Percent}
	}
	if rarity, ok := it.Rarity(); ok {
		record.Rarity = rarity
	}
	if cat, ok := it.CreativeCategory(); ok {
		record.CreativeCategory = cat
	}
	if len(path) > 0 {
		record.ContainerPath = pathRecords(path)
	}

	return record
}
