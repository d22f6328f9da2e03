// Package fingerprint computes the content hashes that version datasets and
// key the persisted cache.
//
// A fingerprint is a hex encoded xxh3-128 digest. Hashing is order-sensitive
// and every variable-length component is length-prefixed, so two different
// input sequences can only share a fingerprint through a genuine hash
// collision. Collisions are not handled.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/ajitpratap0/datalab/pkg/json"
)

// Fingerprint is an opaque content hash.
type Fingerprint string

// String implements fmt.Stringer.
func (f Fingerprint) String() string { return string(f) }

// IsZero reports whether the fingerprint was never computed.
func (f Fingerprint) IsZero() bool { return f == "" }

// Short returns the first 12 characters for log output.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// ErrUnhashable is returned when a value has no canonical serialization.
var ErrUnhashable = errors.New("value cannot be canonically serialized")

// Hasher accumulates components into a fingerprint.
type Hasher struct {
	h   *xxh3.Hasher
	buf [8]byte
}

// NewHasher returns an empty hasher. The domain string separates hash
// namespaces (dataset content vs. operation lineage).
func NewHasher(domain string) *Hasher {
	hs := &Hasher{h: xxh3.New()}
	hs.WriteString(domain)
	return hs
}

// WriteString appends a length-prefixed string.
func (hs *Hasher) WriteString(s string) {
	hs.writeLen(len(s))
	_, _ = hs.h.WriteString(s)
}

// WriteBytes appends a length-prefixed byte slice.
func (hs *Hasher) WriteBytes(b []byte) {
	hs.writeLen(len(b))
	_, _ = hs.h.Write(b)
}

// WriteStrings appends a length-prefixed list of strings.
func (hs *Hasher) WriteStrings(ss []string) {
	hs.writeLen(len(ss))
	for _, s := range ss {
		hs.WriteString(s)
	}
}

// Type tags written ahead of each value by WriteValue.
const (
	tagNull   byte = 'n'
	tagBool   byte = 'b'
	tagInt    byte = 'i'
	tagUint   byte = 'u'
	tagFloat  byte = 'f'
	tagString byte = 's'
	tagList   byte = 'l'
	tagMap    byte = 'm'
	tagJSON   byte = 'j'
)

// WriteValue appends v preceded by a type tag, so values that share a JSON
// form but not a type (2 and 2.0) hash differently. Lists and string-keyed
// maps are walked with sorted keys; anything else is written as canonical
// JSON.
func (hs *Hasher) WriteValue(v interface{}) error {
	switch x := v.(type) {
	case nil:
		hs.writeTag(tagNull)
	case bool:
		hs.writeTag(tagBool)
		if x {
			hs.writeLen(1)
		} else {
			hs.writeLen(0)
		}
	case int:
		hs.writeInt(int64(x))
	case int8:
		hs.writeInt(int64(x))
	case int16:
		hs.writeInt(int64(x))
	case int32:
		hs.writeInt(int64(x))
	case int64:
		hs.writeInt(x)
	case uint8:
		hs.writeInt(int64(x))
	case uint16:
		hs.writeInt(int64(x))
	case uint32:
		hs.writeInt(int64(x))
	case uint:
		hs.writeUint(uint64(x))
	case uint64:
		hs.writeUint(x)
	case float32:
		hs.writeFloat(float64(x))
	case float64:
		hs.writeFloat(x)
	case string:
		hs.writeTag(tagString)
		hs.WriteString(x)
	case []interface{}:
		hs.writeTag(tagList)
		hs.writeLen(len(x))
		for i, e := range x {
			if err := hs.WriteValue(e); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
	case map[string]interface{}:
		hs.writeTag(tagMap)
		return writeSortedMap(hs, x)
	default:
		b, err := Canonical(v)
		if err != nil {
			return err
		}
		hs.writeTag(tagJSON)
		hs.WriteBytes(b)
	}
	return nil
}

func (hs *Hasher) writeTag(t byte) {
	_, _ = hs.h.Write([]byte{t})
}

func (hs *Hasher) writeInt(n int64) {
	hs.writeTag(tagInt)
	binary.LittleEndian.PutUint64(hs.buf[:], uint64(n))
	_, _ = hs.h.Write(hs.buf[:])
}

// writeUint keeps values that fit int64 equal to their signed form.
func (hs *Hasher) writeUint(n uint64) {
	if n <= math.MaxInt64 {
		hs.writeInt(int64(n))
		return
	}
	hs.writeTag(tagUint)
	binary.LittleEndian.PutUint64(hs.buf[:], n)
	_, _ = hs.h.Write(hs.buf[:])
}

func (hs *Hasher) writeFloat(f float64) {
	hs.writeTag(tagFloat)
	binary.LittleEndian.PutUint64(hs.buf[:], math.Float64bits(f))
	_, _ = hs.h.Write(hs.buf[:])
}

func (hs *Hasher) writeLen(n int) {
	binary.LittleEndian.PutUint64(hs.buf[:], uint64(n))
	_, _ = hs.h.Write(hs.buf[:])
}

// Sum returns the fingerprint of everything written so far.
func (hs *Hasher) Sum() Fingerprint {
	sum := hs.h.Sum128().Bytes()
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Canonical serializes v as JSON with sorted map keys. Values that JSON cannot
// represent (functions, channels, cyclic structures) yield ErrUnhashable.
func Canonical(v interface{}) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("%w: %v", ErrUnhashable, r)
		}
	}()
	b, err = json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnhashable, err)
	}
	return b, nil
}

// Input is everything that identifies one application of an operation.
type Input struct {
	// Base is the fingerprint of the dataset the operation is applied to.
	Base Fingerprint
	// Operation is the operation's registered name.
	Operation string
	// Version optionally distinguishes revisions of the same operation.
	Version string
	// Category is the operation category tag.
	Category string
	// Resources are the static keyword parameters of the operation.
	Resources map[string]interface{}
	// ProcessedFields are the record fields fed to the operation.
	ProcessedFields []string
	// GeneratedField is the declared output field, if any.
	GeneratedField string
	// Mode is the execution mode.
	Mode string
	// Params holds mode-specific parameters such as the shard count.
	Params map[string]interface{}
}

// Compute hashes an Input in a fixed order: base fingerprint, operation name,
// version, category, resources, processed fields, generated field, mode and
// mode parameters. It is pure and deterministic.
func Compute(in Input) (Fingerprint, error) {
	hs := NewHasher("datalab/apply/v2")
	hs.WriteString(string(in.Base))
	hs.WriteString(in.Operation)
	hs.WriteString(in.Version)
	hs.WriteString(in.Category)
	if err := writeSortedMap(hs, in.Resources); err != nil {
		return "", fmt.Errorf("resources of %s: %w", in.Operation, err)
	}
	hs.WriteStrings(in.ProcessedFields)
	hs.WriteString(in.GeneratedField)
	hs.WriteString(in.Mode)
	if err := writeSortedMap(hs, in.Params); err != nil {
		return "", fmt.Errorf("params of %s: %w", in.Operation, err)
	}
	return hs.Sum(), nil
}

// writeSortedMap writes keys in sorted order, each followed by its tagged value.
func writeSortedMap(hs *Hasher, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hs.writeLen(len(keys))
	for _, k := range keys {
		hs.WriteString(k)
		if err := hs.WriteValue(m[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return nil
}

// Random returns a fingerprint that matches nothing else. It is used for
// outputs whose lineage cannot be hashed, which also keeps them out of the cache.
func Random() Fingerprint {
	hs := NewHasher("datalab/random/v1")
	hs.WriteString(uuid.NewString())
	return hs.Sum()
}
