// Package wire frames the stored record {value, tags} that either backend
// persists verbatim. The external codec only ever sees the value; tags are
// sideband at commit time and are folded into this envelope so a fetch can
// recover prevTags without a second round-trip to the tag relation.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindRecord byte = 1
)

var (
	// ErrCorrupt is returned for any structurally invalid blob: bad magic,
	// unknown version/kind, truncated length fields, or trailing bytes.
	ErrCorrupt = errors.New("tagcache: corrupt entry")
	magic4     = [...]byte{'T', 'C', 'R', 'D'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeRecord frames a stored record:
//
//	magic(4) | ver(1) | kind(1) | tagCount(u16 be)
//	[ tagLen(u16 be) | tag(tagLen) ]*tagCount
//	vlen(u32 be) | payload(vlen)
func EncodeRecord(tags []string, payload []byte) []byte {
	total := 4 + 1 + 1 + 2
	for _, t := range tags {
		total += 2 + len(t)
	}
	total += 4 + len(payload)

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindRecord)

	var u2 [2]byte
	var u4 [4]byte

	if len(tags) > 0xFFFF {
		panic("tagcache: too many tags for one record")
	}
	binary.BigEndian.PutUint16(u2[:], uint16(len(tags)))
	buf.Write(u2[:])

	for _, t := range tags {
		if len(t) > 0xFFFF {
			panic("tagcache: tag too long")
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(t)))
		buf.Write(u2[:])
		buf.WriteString(t)
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)

	return buf.Bytes()
}

// DecodeRecord reverses EncodeRecord. Any structural problem (bad magic,
// version, kind, truncated fields, or trailing bytes after the payload)
// returns ErrCorrupt; callers treat that as a miss and self-heal.
func DecodeRecord(b []byte) (tags []string, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindRecord {
		return nil, nil, ErrCorrupt
	}

	off := 6
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	tags = make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, nil, ErrCorrupt
		}
		tlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if tlen < 0 || tlen > len(b)-off {
			return nil, nil, ErrCorrupt
		}
		tags = append(tags, string(b[off:off+tlen]))
		off += tlen
	}

	if off+4 > len(b) {
		return nil, nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off {
		return nil, nil, ErrCorrupt
	}
	payload = b[off : off+vlen]
	off += vlen

	if off != len(b) {
		return nil, nil, ErrCorrupt
	}

	return tags, payload, nil
}
