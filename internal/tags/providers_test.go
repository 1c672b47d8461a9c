package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitsune-search/containerindex/internal/item"
)

type fakeItem struct {
	materialID   string
	amount       int
	customName   string
	hasCustom    bool
	lore         []string
	enchantments map[string]int
	durability   item.Durability
	hasDur       bool
	rarity       string
	hasRarity    bool
	flags        item.Flags
	containerC   []item.Item
	bundleC      []item.Item
	containerT   string
}

func (f *fakeItem) MaterialID() string               { return f.materialID }
func (f *fakeItem) Amount() int                      { return f.amount }
func (f *fakeItem) DisplayName() string              { return f.materialID }
func (f *fakeItem) CustomName() (string, bool)       { return f.customName, f.hasCustom }
func (f *fakeItem) Lore() []string                   { return f.lore }
func (f *fakeItem) Enchantments() map[string]int     { return f.enchantments }
func (f *fakeItem) Durability() (item.Durability, bool) { return f.durability, f.hasDur }
func (f *fakeItem) Rarity() (string, bool)           { return f.rarity, f.hasRarity }
func (f *fakeItem) Flags() item.Flags                { return f.flags }
func (f *fakeItem) ContainerContents() []item.Item   { return f.containerC }
func (f *fakeItem) BundleContents() []item.Item      { return f.bundleC }
func (f *fakeItem) ContainerType() string            { return f.containerT }
func (f *fakeItem) CreativeCategory() (string, bool) { return "", false }
func (f *fakeItem) IsEmpty() bool                    { return f.materialID == "" }

func TestEnchantmentTags(t *testing.T) {
	it := &fakeItem{enchantments: map[string]int{"Sharpness": 5}}
	got := EnchantmentTags(it)
	assert.Contains(t, got, "enchanted")
	assert.Contains(t, got, "sharpness")
	assert.Contains(t, got, "sharpness_5")
}

func TestEnchantmentTags_Empty(t *testing.T) {
	assert.Nil(t, EnchantmentTags(&fakeItem{}))
}

func TestBlockFlagTags(t *testing.T) {
	it := &fakeItem{flags: item.Flags{Solid: true, Occluding: true, HasGravity: true, IsBlock: true}}
	got := BlockFlagTags(it)
	assert.Contains(t, got, "solid")
	assert.Contains(t, got, "occluding")
	assert.Contains(t, got, "gravity")
	assert.Contains(t, got, "falling")
	assert.Contains(t, got, "block")
	assert.NotContains(t, got, "transparent")
}

func TestMaterialBucketTags_Wood(t *testing.T) {
	got := MaterialBucketTags(&fakeItem{materialID: "OAK_PLANKS"})
	assert.Contains(t, got, "wood")
	assert.Contains(t, got, "wood_oak")
}

func TestMaterialBucketTags_OreClass(t *testing.T) {
	got := MaterialBucketTags(&fakeItem{materialID: "DEEPSLATE_IRON_ORE"})
	assert.Contains(t, got, "oreclass")
	assert.Contains(t, got, "stone")
}

func TestCategoricalKindTags_Weapon(t *testing.T) {
	got := CategoricalKindTags(&fakeItem{materialID: "DIAMOND_SWORD"})
	assert.Contains(t, got, "weapon")
	assert.Contains(t, got, "sword")
}

func TestCategoricalKindTags_Armor(t *testing.T) {
	got := CategoricalKindTags(&fakeItem{materialID: "IRON_CHESTPLATE"})
	assert.Contains(t, got, "armor")
	assert.Contains(t, got, "armor_chestplate")
	assert.Contains(t, got, "armor_iron")
}

func TestStorageTags(t *testing.T) {
	assert.Contains(t, StorageTags(&fakeItem{materialID: "RED_SHULKER_BOX"}), "shulkerbox")
	assert.Contains(t, StorageTags(&fakeItem{materialID: "BUNDLE"}), "bundle")
	assert.Empty(t, StorageTags(&fakeItem{materialID: "DIAMOND_SWORD"}))
}

func TestUnbreakableTag(t *testing.T) {
	assert.Equal(t, []string{"unbreakable"}, UnbreakableTag(&fakeItem{flags: item.Flags{Unbreakable: true}}))
	assert.Nil(t, UnbreakableTag(&fakeItem{}))
}

func TestFormatName(t *testing.T) {
	assert.Equal(t, "Diamond Sword", FormatName("DIAMOND_SWORD"))
}

func TestRegistry_CollectTags_DedupesAndLowercases(t *testing.T) {
	r := NewRegistry(nil).
		WithProvider(func(it item.Item) []string { return []string{"Foo", "foo"} }).
		WithProvider(func(it item.Item) []string { return []string{"BAR"} })

	got := r.CollectTags(&fakeItem{materialID: "x"})
	assert.Equal(t, []string{"foo", "bar"}, got)
}

func TestRegistry_CollectTags_SkipsPanickingProvider(t *testing.T) {
	r := NewRegistry(nil).
		WithProvider(func(it item.Item) []string { panic("boom") }).
		WithProvider(func(it item.Item) []string { return []string{"ok"} })

	got := r.CollectTags(&fakeItem{materialID: "x"})
	assert.Equal(t, []string{"ok"}, got)
}

func TestDefaultRegistry_CollectsAcrossProviders(t *testing.T) {
	r := DefaultRegistry(nil)
	it := &fakeItem{
		materialID:   "DIAMOND_SWORD",
		enchantments: map[string]int{"Sharpness": 5},
		flags:        item.Flags{Unbreakable: true},
	}
	got := r.CollectTags(it)
	assert.Contains(t, got, "weapon")
	assert.Contains(t, got, "enchanted")
	assert.Contains(t, got, "unbreakable")
}
