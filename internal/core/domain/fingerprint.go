package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"strconv"
	"time"

	"go.trai.ch/zerr"
)

// CacheKey is the fingerprint of a logical request.
// Its text form is "<operation>:<sha256 hex>", so every key of one operation
// shares the "<operation>:" prefix.
type CacheKey string

// String returns the key text.
func (k CacheKey) String() string { return string(k) }

// Prefix returns the invalidation prefix shared by every key of the operation.
func Prefix(operation string) string { return operation + ":" }

// DeriveKey computes the cache key for an operation invoked on a partition with params.
// The result does not depend on map iteration order.
//
// Supported parameter values are strings, booleans, integers, floats,
// time.Time, time.Duration, nil, and slices or string-keyed maps of those.
func DeriveKey(operation, partition string, params map[string]any) (CacheKey, error) {
	h := sha256.New()
	writeField(h, "op", operation)
	writeField(h, "partition", partition)

	if err := writeMap(h, params); err != nil {
		return "", err
	}

	return CacheKey(Prefix(operation) + hex.EncodeToString(h.Sum(nil))), nil
}

// MustDeriveKey is DeriveKey for parameters known to be supported. It panics otherwise.
func MustDeriveKey(operation, partition string, params map[string]any) CacheKey {
	k, err := DeriveKey(operation, partition, params)
	if err != nil {
		panic(err)
	}
	return k
}

// Every field is written as tag, length, bytes so that no two distinct
// inputs produce the same byte stream.
func writeField(h hash.Hash, tag, value string) {
	writeLen(h, len(tag))
	_, _ = h.Write([]byte(tag))
	writeLen(h, len(value))
	_, _ = h.Write([]byte(value))
}

func writeLen(h hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n)) //nolint:gosec // lengths are non-negative
	_, _ = h.Write(buf[:])
}

//nolint:cyclop // one case per supported kind
func writeValue(h hash.Hash, v any) error {
	switch x := v.(type) {
	case nil:
		writeField(h, "nil", "")
	case string:
		writeField(h, "s", x)
	case bool:
		writeField(h, "b", strconv.FormatBool(x))
	case int:
		writeField(h, "i", strconv.FormatInt(int64(x), 10))
	case int8:
		writeField(h, "i", strconv.FormatInt(int64(x), 10))
	case int16:
		writeField(h, "i", strconv.FormatInt(int64(x), 10))
	case int32:
		writeField(h, "i", strconv.FormatInt(int64(x), 10))
	case int64:
		writeField(h, "i", strconv.FormatInt(x, 10))
	case uint:
		writeField(h, "u", strconv.FormatUint(uint64(x), 10))
	case uint8:
		writeField(h, "u", strconv.FormatUint(uint64(x), 10))
	case uint16:
		writeField(h, "u", strconv.FormatUint(uint64(x), 10))
	case uint32:
		writeField(h, "u", strconv.FormatUint(uint64(x), 10))
	case uint64:
		writeField(h, "u", strconv.FormatUint(x, 10))
	case float32:
		writeField(h, "f", strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		writeField(h, "f", strconv.FormatFloat(x, 'g', -1, 64))
	case time.Time:
		writeField(h, "t", x.UTC().Format(time.RFC3339Nano))
	case time.Duration:
		writeField(h, "d", strconv.FormatInt(int64(x), 10))
	case []string:
		writeField(h, "list", "")
		writeLen(h, len(x))
		for _, s := range x {
			writeField(h, "s", s)
		}
	case []any:
		writeField(h, "list", "")
		writeLen(h, len(x))
		for _, e := range x {
			if err := writeValue(h, e); err != nil {
				return err
			}
		}
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		return writeMap(h, m)
	case map[string]any:
		return writeMap(h, x)
	default:
		return zerr.With(ErrUnsupportedParam, "type", fmt.Sprintf("%T", v))
	}
	return nil
}

func writeMap(h hash.Hash, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	writeField(h, "map", "")
	writeLen(h, len(keys))
	for _, k := range keys {
		writeField(h, "name", k)
		if err := writeValue(h, m[k]); err != nil {
			return err
		}
	}
	return nil
}
