package tags

import (
	"strconv"
	"strings"

	"github.com/kitsune-search/containerindex/internal/item"
)

// EnchantmentTags emits "enchanted", "<ench>", and "<ench>_<level>" for
// every enchantment on the item (§4.1).
func EnchantmentTags(it item.Item) []string {
	ench := it.Enchantments()
	if len(ench) == 0 {
		return nil
	}
	tags := make([]string, 0, len(ench)*3+1)
	tags = append(tags, "enchanted")
	for name, level := range ench {
		norm := normalize(name)
		tags = append(tags, norm, norm+"_"+strconv.Itoa(level))
	}
	return tags
}

// BlockFlagTags emits tags derived from the item's boolean flag set.
func BlockFlagTags(it item.Item) []string {
	f := it.Flags()
	var tags []string
	if f.Solid {
		tags = append(tags, "solid")
	}
	if f.Occluding {
		tags = append(tags, "occluding")
	} else {
		tags = append(tags, "transparent")
	}
	if f.HasGravity {
		tags = append(tags, "gravity", "falling")
	}
	if f.IsBlock {
		tags = append(tags, "block")
	} else {
		tags = append(tags, "item")
	}
	return tags
}

// woodSpecies lists species recognized for "wood/<species>" tags.
var woodSpecies = []string{
	"oak", "spruce", "birch", "jungle", "acacia", "dark_oak",
	"mangrove", "cherry", "bamboo", "crimson", "warped", "pale_oak",
}

// oreSuffixes identify ore-class materials for "oreclass" tagging.
var oreSuffixes = []string{"_ore", "_ores"}

// MaterialBucketTags buckets the material id into broad categories:
// stone, wood/<species>, glass, wool, terracotta, concrete, shulker,
// oreclass, ingot/nugget/gem, candle, banner, carpet.
func MaterialBucketTags(it item.Item) []string {
	id := normalize(it.MaterialID())
	var tags []string

	switch {
	case strings.Contains(id, "stone") || strings.Contains(id, "cobblestone") || strings.Contains(id, "deepslate"):
		tags = append(tags, "stone")
	}

	for _, species := range woodSpecies {
		if strings.Contains(id, species) && (strings.Contains(id, "plank") || strings.Contains(id, "log") ||
			strings.Contains(id, "wood") || strings.Contains(id, "door") || strings.Contains(id, "fence") ||
			strings.Contains(id, "boat") || strings.Contains(id, "sign")) {
			tags = append(tags, "wood", "wood_"+species)
		}
	}

	if strings.Contains(id, "glass") {
		tags = append(tags, "glass")
	}
	if strings.Contains(id, "wool") {
		tags = append(tags, "wool")
	}
	if strings.Contains(id, "terracotta") {
		tags = append(tags, "terracotta")
	}
	if strings.Contains(id, "concrete") {
		tags = append(tags, "concrete")
	}
	if strings.Contains(id, "shulker") {
		tags = append(tags, "shulker")
	}
	for _, suffix := range oreSuffixes {
		if strings.HasSuffix(id, suffix) {
			tags = append(tags, "oreclass")
			break
		}
	}
	if strings.HasSuffix(id, "_ingot") {
		tags = append(tags, "ingot")
	}
	if strings.HasSuffix(id, "_nugget") {
		tags = append(tags, "nugget")
	}
	if strings.Contains(id, "emerald") || strings.Contains(id, "diamond") || strings.Contains(id, "amethyst") {
		tags = append(tags, "gem")
	}
	if strings.Contains(id, "candle") {
		tags = append(tags, "candle")
	}
	if strings.Contains(id, "banner") {
		tags = append(tags, "banner")
	}
	if strings.Contains(id, "carpet") {
		tags = append(tags, "carpet")
	}

	return tags
}

var weaponKinds = map[string]string{
	"sword":     "sword",
	"axe":       "axe",
	"bow":       "bow",
	"crossbow":  "crossbow",
	"trident":   "trident",
	"mace":      "mace",
}

var toolKinds = map[string]string{
	"pickaxe":    "pickaxe",
	"shovel":     "shovel",
	"hoe":        "hoe",
	"shears":     "shears",
	"fishing_rod": "fishingrod",
	"compass":    "compass",
	"bucket":     "bucket",
}

var armorSlots = []string{"helmet", "chestplate", "leggings", "boots"}

var fluids = []string{"water", "lava", "milk", "powder_snow"}

// CategoricalKindTags classifies the item into the weapon/tool/armor/
// elytra/head taxonomy of §4.1.
func CategoricalKindTags(it item.Item) []string {
	id := normalize(it.MaterialID())
	var tags []string

	for needle, tag := range weaponKinds {
		if strings.Contains(id, needle) {
			tags = append(tags, "weapon", tag)
		}
	}
	for needle, tag := range toolKinds {
		if strings.Contains(id, needle) {
			tags = append(tags, "tool", tag)
			if tag == "bucket" {
				for _, fluid := range fluids {
					if strings.Contains(id, fluid) {
						tags = append(tags, fluid)
					}
				}
			}
		}
	}
	for _, slot := range armorSlots {
		if strings.Contains(id, slot) {
			material := strings.TrimSuffix(id, "_"+slot)
			tags = append(tags, "armor", "armor_"+slot, "armor_"+material)
		}
	}
	if strings.Contains(id, "elytra") {
		tags = append(tags, "elytra")
	}
	if strings.Contains(id, "head") || strings.Contains(id, "skull") {
		tags = append(tags, "head")
	}

	return tags
}

// StorageTags emits tags for container-like items (§4.1).
func StorageTags(it item.Item) []string {
	id := normalize(it.MaterialID())
	var tags []string
	switch {
	case strings.Contains(id, "bundle"):
		tags = append(tags, "bundle")
	case strings.Contains(id, "shulker_box"):
		tags = append(tags, "shulkerbox")
	case strings.Contains(id, "chest"):
		tags = append(tags, "chest")
	case strings.Contains(id, "barrel"):
		tags = append(tags, "barrel")
	}
	return tags
}

// UnbreakableTag emits "unbreakable" when the item's PDC flag is set.
func UnbreakableTag(it item.Item) []string {
	if it.Flags().Unbreakable {
		return []string{"unbreakable"}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// titleCase formats a snake/upper material id as readable title text,
// e.g. "DIAMOND_SWORD" -> "Diamond Sword". Shared with the serializer.
func titleCase(materialID string) string {
	parts := strings.Split(strings.ToLower(materialID), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// FormatName is exported for C2's storage_record formatted-name field.
func FormatName(materialID string) string {
	return titleCase(materialID)
}
