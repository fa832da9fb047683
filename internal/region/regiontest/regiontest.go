// Package regiontest builds region container fixtures for tests.
package regiontest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/petward/server/internal/nbt"
	"github.com/petward/server/internal/region"
)

// Chunk is one fixture payload at an absolute chunk coordinate.
type Chunk struct {
	X, Z        int
	Root        nbt.Compound
	Compression region.Compression // zero means zlib
	External    bool               // store payload in c.<x>.<z>.mcc
	Raw         []byte             // if set, written as-is instead of Root
}

// EntityChunk wraps entities in the "Entities" layout used by entity containers.
func EntityChunk(x, z int, entities ...nbt.Compound) Chunk {
	return Chunk{X: x, Z: z, Root: nbt.Compound{
		"DataVersion": int32(3700),
		"Position":    []int32{int32(x), int32(z)},
		"Entities":    nbt.Compounds(entities...),
	}}
}

// Pet builds a tamed entity record owned by owner standing at (x, y, z).
// Entries in extra override or add tags.
func Pet(id uuid.UUID, typ string, owner uuid.UUID, x, y, z float64, extra nbt.Compound) nbt.Compound {
	n := nbt.Compound{
		"id":    typ,
		"UUID":  nbt.UUIDToInts(id),
		"Owner": nbt.UUIDToInts(owner),
		"Pos":   nbt.Doubles(x, y, z),
		"Tame":  int8(1),
	}
	for k, v := range extra {
		n[k] = v
	}
	return n
}

// Compress encodes data with comp.
func Compress(t testing.TB, comp region.Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch comp {
	case region.CompressionGzip:
		w := gzip.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case region.CompressionZlib:
		w := zlib.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.Write(data)
	}
	return buf.Bytes()
}

// Write creates dir/r.<x>.<z>.mca holding chunks and returns its path.
func Write(t testing.TB, dir string, coord region.Coord, chunks ...Chunk) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	header := make([]byte, region.HeaderSize)
	body := make([]byte, 0, len(chunks)*region.SectorSize)
	nextSector := region.HeaderSize / region.SectorSize

	for _, ch := range chunks {
		require.Equal(t, coord, region.ContainerOf(ch.X, ch.Z), "chunk %d,%d outside container", ch.X, ch.Z)
		comp := ch.Compression
		if comp == 0 {
			comp = region.CompressionZlib
		}
		payload := ch.Raw
		if payload == nil {
			raw, err := nbt.EncodeBytes("", ch.Root)
			require.NoError(t, err)
			payload = Compress(t, comp, raw)
		}

		stored := payload
		flag := comp
		if ch.External {
			ext := filepath.Join(dir, fmt.Sprintf("c.%d.%d.mcc", ch.X, ch.Z))
			require.NoError(t, os.WriteFile(ext, payload, 0o644))
			stored = nil
			flag |= region.ExternalFlag
		}

		record := make([]byte, 5, 5+len(stored))
		binary.BigEndian.PutUint32(record, uint32(len(stored)+1))
		record[4] = byte(flag)
		record = append(record, stored...)
		sectors := (len(record) + region.SectorSize - 1) / region.SectorSize
		padded := make([]byte, sectors*region.SectorSize)
		copy(padded, record)

		idx := region.SlotIndex(region.SlotOf(ch.X, ch.Z))
		binary.BigEndian.PutUint32(header[idx*4:], uint32(nextSector)<<8|uint32(sectors))
		binary.BigEndian.PutUint32(header[region.SectorSize+idx*4:], 1700000000)
		body = append(body, padded...)
		nextSector += sectors
	}

	path := filepath.Join(dir, region.FileName(coord))
	require.NoError(t, os.WriteFile(path, append(header, body...), 0o644))
	return path
}
