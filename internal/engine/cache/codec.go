package cache

import (
	"encoding/binary"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/zerr"
)

// Payload envelope: magic, format version, codec id, xxhash64 of the body, body.
const (
	magic         = "STZ"
	formatVersion = byte(1)
	codecCBOR     = byte(1)
	headerSize    = len(magic) + 2 + 8
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// encode serializes v into a checksummed envelope.
func encode(v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrEncodeFailed.Error())
	}

	buf := make([]byte, headerSize, headerSize+len(body))
	copy(buf, magic)
	buf[len(magic)] = formatVersion
	buf[len(magic)+1] = codecCBOR
	binary.BigEndian.PutUint64(buf[len(magic)+2:], xxhash.Sum64(body))
	return append(buf, body...), nil
}

// decode verifies the envelope and decodes its body into dst.
// Any mismatch is reported as domain.ErrCacheCorruption.
func decode(data []byte, dst any) error {
	if len(data) < headerSize {
		return zerr.With(domain.ErrCacheCorruption, "reason", "short payload")
	}
	if string(data[:len(magic)]) != magic {
		return zerr.With(domain.ErrCacheCorruption, "reason", "bad magic")
	}
	if v := data[len(magic)]; v != formatVersion {
		return zerr.With(domain.ErrCacheCorruption, "version", int(v))
	}
	if c := data[len(magic)+1]; c != codecCBOR {
		return zerr.With(domain.ErrCacheCorruption, "codec", int(c))
	}

	body := data[headerSize:]
	if binary.BigEndian.Uint64(data[len(magic)+2:headerSize]) != xxhash.Sum64(body) {
		return zerr.With(domain.ErrCacheCorruption, "reason", "checksum mismatch")
	}
	if err := decMode.Unmarshal(body, dst); err != nil {
		return zerr.Wrap(err, domain.ErrCacheCorruption.Error())
	}
	return nil
}
