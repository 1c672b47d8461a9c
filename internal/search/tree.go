package search

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kitsune-search/containerindex/internal/item"
	"github.com/kitsune-search/containerindex/internal/metadata"
)

// ItemNode is a leaf result: one matched item with its percent score.
type ItemNode struct {
	Row   metadata.ItemRow
	Score int
}

// ContainerNode is an intermediate tree node representing one nesting
// step (a shulker box, bundle, etc). Score is non-nil only when the
// container item itself was a hit in the same result set (§4.8 step 5).
type ContainerNode struct {
	Ref        item.ContainerRef
	Score      *int
	Containers []*ContainerNode
	Items      []*ItemNode
}

// LocationNode groups every hit sharing a (world, block_coords) location.
type LocationNode struct {
	World      string
	Coords     []metadata.BlockCoord
	ContainerID string
	Containers []*ContainerNode
	Items      []*ItemNode
}

// scoredHit is one ranked ordinal paired with its resolved row, the unit
// passed into TreeBuilder after C6.get_rows (§4.8 step 3).
type scoredHit struct {
	Row   metadata.ItemRow
	Score int
}

// TreeBuilder reconstructs the location -> nested-container -> item
// hierarchy from a flat, score-ordered hit list (§4.8 step 4-5).
type TreeBuilder struct{}

// NewTreeBuilder constructs a TreeBuilder. It holds no state; it exists
// as a named type so callers can extend it (e.g. with rendering options)
// without changing Build's signature.
func NewTreeBuilder() *TreeBuilder { return &TreeBuilder{} }

type locationKey struct {
	world string
	coord metadata.BlockCoord
}

// Build groups hits by (world, block_coords) preserving hit order, then
// builds one nested tree per group.
func (b *TreeBuilder) Build(hits []scoredHit, coordsOf func(containerID string) (string, []metadata.BlockCoord)) []*LocationNode {
	order := []locationKey{}
	groups := map[locationKey][]scoredHit{}
	containerIDs := map[locationKey]string{}
	coordsByKey := map[locationKey][]metadata.BlockCoord{}

	for _, h := range hits {
		world, coords := coordsOf(h.Row.ContainerID)
		primary := smallest(coords)
		key := locationKey{world: world, coord: primary}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
			containerIDs[key] = h.Row.ContainerID
			coordsByKey[key] = coords
		}
		groups[key] = append(groups[key], h)
	}

	nodes := make([]*LocationNode, 0, len(order))
	for _, key := range order {
		nodes = append(nodes, b.buildLocation(key.world, coordsByKey[key], containerIDs[key], groups[key]))
	}
	return nodes
}

func smallest(coords []metadata.BlockCoord) metadata.BlockCoord {
	if len(coords) == 0 {
		return metadata.BlockCoord{}
	}
	best := coords[0]
	for _, c := range coords[1:] {
		if c.X < best.X || (c.X == best.X && c.Y < best.Y) || (c.X == best.X && c.Y == best.Y && c.Z < best.Z) {
			best = c
		}
	}
	return best
}

func (b *TreeBuilder) buildLocation(world string, coords []metadata.BlockCoord, containerID string, hits []scoredHit) *LocationNode {
	loc := &LocationNode{World: world, Coords: coords, ContainerID: containerID}

	byPathKey := map[string]*ContainerNode{}

	// First pass: materialize every container node implied by any hit's
	// path, so a hit representing the container itself (found in the
	// second pass) has somewhere to attach its score.
	for _, h := range hits {
		path := h.Row.ContainerPath
		parent := (*ContainerNode)(nil)
		accum := ""
		for _, ref := range path {
			accum += "#" + ref.ContainerType + "|" + ref.Color + "|" + ref.CustomName + "|" + strconv.Itoa(ref.ParentSlotIndex)
			node, ok := byPathKey[accum]
			if !ok {
				node = &ContainerNode{Ref: ref}
				byPathKey[accum] = node
				if parent == nil {
					loc.Containers = append(loc.Containers, node)
				} else {
					parent.Containers = append(parent.Containers, node)
				}
			}
			parent = node
		}
	}

	// Second pass: attach each hit either as a container's own score (if
	// some other hit's path shows it has children) or as an item leaf.
	for _, h := range hits {
		path := h.Row.ContainerPath
		parentKey := pathAccum(path)
		containerNode := findContainerRepresenting(byPathKey, parentKey, h.Row.Slot)
		if containerNode != nil {
			score := h.Score
			containerNode.Score = &score
			continue
		}

		leaf := &ItemNode{Row: h.Row, Score: h.Score}
		if len(path) == 0 {
			loc.Items = append(loc.Items, leaf)
			continue
		}
		parent := byPathKey[parentKey]
		parent.Items = append(parent.Items, leaf)
	}

	sortContainers(loc.Containers)
	return loc
}

// findContainerRepresenting looks for a container node whose path prefix
// is parentKey and whose ParentSlotIndex equals slot — i.e. a container
// that some other hit's path shows living at exactly this item's slot.
func findContainerRepresenting(byPathKey map[string]*ContainerNode, parentKey string, slot int) *ContainerNode {
	for key, node := range byPathKey {
		if node.Ref.ParentSlotIndex != slot {
			continue
		}
		if parentPrefix(key) == parentKey {
			return node
		}
	}
	return nil
}

func pathAccum(path item.ContainerPath) string {
	accum := ""
	for _, ref := range path {
		accum += "#" + ref.ContainerType + "|" + ref.Color + "|" + ref.CustomName + "|" + strconv.Itoa(ref.ParentSlotIndex)
	}
	return accum
}

func parentPrefix(key string) string {
	idx := strings.LastIndexByte(key, '#')
	if idx <= 0 {
		return ""
	}
	return key[:idx]
}

func sortContainers(nodes []*ContainerNode) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Ref.ParentSlotIndex < nodes[j].Ref.ParentSlotIndex })
	for _, n := range nodes {
		sortContainers(n.Containers)
	}
}
