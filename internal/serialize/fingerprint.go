package serialize

import (
	"encoding/binary"
	"encoding/json"
	"hash/fnv"
	"math"
	"sort"
)

// fingerprintInput is the canonical, amount-excluding view of a storage
// record used to compute its content fingerprint (§3 invariant F1). Field
// order here is fixed and enchantments are sorted by name so that two
// items agreeing on indexable content always hash identically regardless
// of amount or incidental field ordering.
type fingerprintInput struct {
	MaterialID   string              `json:"m"`
	DisplayName  string              `json:"d"`
	CustomName   string              `json:"c"`
	Lore         []string            `json:"l"`
	Enchantments []EnchantmentRecord `json:"e"`
}

// Fingerprint computes the 64-bit content-derived key described in §3
// (Open Question 1 of SPEC_FULL.md: FNV-1a 64 over a canonical encoding).
// It is the single fingerprint function, reached by C7 (the diff
// algorithm, §4.7 step 3) through FingerprintFromBytes, satisfying P1
// and P7.
func Fingerprint(record StorageRecord) uint64 {
	ench := make([]EnchantmentRecord, len(record.Enchantments))
	copy(ench, record.Enchantments)
	sort.Slice(ench, func(i, j int) bool { return ench[i].Name < ench[j].Name })

	input := fingerprintInput{
		MaterialID:   record.MaterialID,
		DisplayName:  record.DisplayName,
		CustomName:   record.CustomName,
		Lore:         record.Lore,
		Enchantments: ench,
	}

	// json.Marshal on a struct with fixed field order and pre-sorted
	// slices is deterministic, giving us a stable byte sequence to hash.
	data, err := json.Marshal(input)
	if err != nil {
		data = []byte(record.MaterialID)
	}

	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}

// FingerprintFromBytes computes a fingerprint from a marshaled
// storage_record, used by C7 to fingerprint each incoming item's
// StorageRecord before diffing it against the fingerprints already
// stored on existing ItemRows (§4.7 step 3).
func FingerprintFromBytes(storageRecord []byte) (uint64, error) {
	var record StorageRecord
	if err := json.Unmarshal(storageRecord, &record); err != nil {
		return 0, err
	}
	return Fingerprint(record), nil
}

// VectorBytes encodes a float32 vector as raw little-endian bytes, the
// wire format persisted by C4's durable tier (§4.4).
func VectorBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToVector is the inverse of VectorBytes.
func BytesToVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
