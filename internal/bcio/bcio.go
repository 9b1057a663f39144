// Package bcio persists compiled bytecode to disk in the unframed
// format §6 specifies: a raw byte dump of the instruction buffer and a
// raw dump of uint32 entries for the line cross-reference. There is no
// magic number, version tag, or length prefix - compatibility across
// engine versions is explicitly a non-goal for the core, so any framing
// here would be ceremony the spec doesn't ask for.
package bcio

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/value"
)

// SaveBytecode writes buf's raw bytes to path.
func SaveBytecode(path string, buf *value.Buffer) error {
	if err := os.WriteFile(path, buf.Code, 0o644); err != nil {
		return errors.Wrapf(err, "bcio: writing bytecode to %s", path)
	}
	return nil
}

// LoadBytecode reads path's raw bytes back into a fresh Buffer.
func LoadBytecode(path string) (*value.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "bcio: reading bytecode from %s", path)
	}
	return &value.Buffer{Code: data}, nil
}

// SaveXref writes xref as a flat sequence of uint32 pairs
// (offset, line), little-endian, one pair per entry.
func SaveXref(path string, xref []bytecode.XrefEntry) error {
	out := make([]byte, 0, len(xref)*8)
	var tmp [4]byte
	for _, e := range xref {
		binary.LittleEndian.PutUint32(tmp[:], e.Offset)
		out = append(out, tmp[:]...)
		binary.LittleEndian.PutUint32(tmp[:], uint32(e.Line))
		out = append(out, tmp[:]...)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "bcio: writing xref to %s", path)
	}
	return nil
}

// LoadXref reads back the (offset, line) pairs SaveXref wrote.
func LoadXref(path string) ([]bytecode.XrefEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "bcio: reading xref from %s", path)
	}
	if len(data)%8 != 0 {
		return nil, errors.Errorf("bcio: xref file %s has truncated trailing entry", path)
	}
	entries := make([]bytecode.XrefEntry, 0, len(data)/8)
	for i := 0; i < len(data); i += 8 {
		offset := binary.LittleEndian.Uint32(data[i : i+4])
		line := binary.LittleEndian.Uint32(data[i+4 : i+8])
		entries = append(entries, bytecode.XrefEntry{Offset: offset, Line: int(line)})
	}
	return entries, nil
}
