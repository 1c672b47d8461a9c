// Package item defines the capability-shaped Item interface that
// platform adapters implement (spec.md §3, §9 "Capability polymorphism").
// Tag providers (internal/tags) and the serializer (internal/serialize)
// consume items only through this interface.
package item

// Durability describes a damageable item's current wear state.
type Durability struct {
	Current int
	Max     int
	Percent float64
}

// Flags captures the small boolean capability set tag providers and the
// serializer need (§3).
type Flags struct {
	Unbreakable bool
	Solid       bool
	Occluding   bool
	HasGravity  bool
	IsBlock     bool
}

// Item is a read-only handle onto a single item-stack instance. Empty/air
// items are skipped by the caller before reaching any component.
type Item interface {
	MaterialID() string
	Amount() int
	DisplayName() string
	CustomName() (string, bool)
	Lore() []string
	Enchantments() map[string]int
	Durability() (Durability, bool)
	Rarity() (string, bool)
	Flags() Flags

	// ContainerContents returns the items held by a block-container item
	// (e.g. a shulker box), or nil if this item is not a container.
	ContainerContents() []Item
	// BundleContents returns the items held by a bundle item, or nil.
	BundleContents() []Item

	// ContainerType returns the container kind this item represents when
	// it holds ContainerContents or BundleContents (e.g. "shulker_box",
	// "bundle"), or "" if this item is not itself a container.
	ContainerType() string
	CreativeCategory() (string, bool)

	// IsEmpty reports whether this is an air/empty slot. Callers filter
	// these out before handing items to the serializer.
	IsEmpty() bool
}
