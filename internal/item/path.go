package item

import (
	"strconv"
	"strings"
)

// ContainerRef locates one nesting step inside a container tree (§3).
type ContainerRef struct {
	ContainerType   string // "shulker_box", "bundle", "chest", ...
	Color           string // "" when not applicable
	CustomName      string // "" when not set
	ParentSlotIndex int
}

// ContainerPath is an ordered list of ContainerRef; an empty path is the
// root of the outer container. Equality is structural.
type ContainerPath []ContainerRef

// Root is the shared empty-path constant (§3).
var Root = ContainerPath(nil)

// Append returns a new path with ref appended, never mutating p.
func (p ContainerPath) Append(ref ContainerRef) ContainerPath {
	out := make(ContainerPath, len(p)+1)
	copy(out, p)
	out[len(p)] = ref
	return out
}

// Equal reports structural equality.
func (p ContainerPath) Equal(other ContainerPath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Key returns a stable cache key for deduplicating tree nodes built from
// this path's final segment, in the form "<type>|<slot>,<type>|<slot>".
func (p ContainerPath) Key() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, ref := range p {
		parts[i] = ref.ContainerType + "|" + strconv.Itoa(ref.ParentSlotIndex)
	}
	return strings.Join(parts, ",")
}
