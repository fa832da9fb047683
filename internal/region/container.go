// Package region reads region containers: on-disk files holding a 32x32 grid
// of compressed chunk payloads. Containers are opened read-only, queried and
// closed by the caller; nothing here writes or caches across calls.
package region

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/petward/server/internal/nbt"
)

const (
	SlotsPerSide = 32
	SlotCount    = SlotsPerSide * SlotsPerSide

	SectorSize = 4096
	HeaderSize = 2 * SectorSize

	// maxPayload caps one decompressed chunk; real chunks stay well below 8 MiB.
	maxPayload = 64 << 20
)

// Compression is the per-chunk compression id stored before each payload.
type Compression byte

const (
	CompressionGzip Compression = 1
	CompressionZlib Compression = 2
	CompressionNone Compression = 3
	CompressionLZ4  Compression = 4

	// ExternalFlag marks a payload stored in a sibling c.<x>.<z>.mcc file.
	ExternalFlag Compression = 0x80
)

var (
	ErrNotContainer = errors.New("region: not a region container name")
	ErrUnallocated  = errors.New("region: slot not allocated")
	ErrTruncated    = errors.New("region: chunk data truncated")
)

// Coord is a container's own position in region units (32 chunks).
type Coord struct {
	X, Z int
}

// ParseFileName parses "r.<x>.<z>.mca". The name without its extension must
// split into exactly three dot-separated parts.
func ParseFileName(name string) (Coord, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, ".mca") {
		return Coord{}, false
	}
	parts := strings.Split(strings.TrimSuffix(base, ".mca"), ".")
	if len(parts) != 3 || parts[0] != "r" {
		return Coord{}, false
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return Coord{}, false
	}
	z, err := strconv.Atoi(parts[2])
	if err != nil {
		return Coord{}, false
	}
	return Coord{X: x, Z: z}, true
}

// FileName is the inverse of ParseFileName.
func FileName(c Coord) string {
	return fmt.Sprintf("r.%d.%d.mca", c.X, c.Z)
}

// ContainerOf returns the container holding an absolute chunk coordinate.
func ContainerOf(chunkX, chunkZ int) Coord {
	return Coord{X: floorDiv(chunkX, SlotsPerSide), Z: floorDiv(chunkZ, SlotsPerSide)}
}

// SlotOf maps an absolute chunk coordinate to its in-container offset.
func SlotOf(chunkX, chunkZ int) (int, int) {
	return floorMod(chunkX, SlotsPerSide), floorMod(chunkZ, SlotsPerSide)
}

// SlotIndex is the header index of an in-container offset.
func SlotIndex(x, z int) int { return x + z*SlotsPerSide }

func floorMod(v, m int) int {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

func floorDiv(v, m int) int {
	q := v / m
	if v%m != 0 && v < 0 {
		q--
	}
	return q
}

// Stats counts what reads against one container produced.
type Stats struct {
	Allocated     int
	Decoded       int
	Failed        int
	External      int
	ByCompression map[Compression]int
	LastFailure   string
}

// Container is an open region file. Not safe for concurrent use.
type Container struct {
	path  string
	coord Coord
	f     *os.File
	size  int64

	locations  [SlotCount]uint32
	timestamps [SlotCount]uint32

	stats Stats
}

// Open reads the container header. The caller must Close the container;
// prefer With, which guarantees release on every path.
func Open(path string) (*Container, error) {
	coord, ok := ParseFileName(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotContainer)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open region: %w", err)
	}
	c := &Container{path: path, coord: coord, f: f, stats: Stats{ByCompression: make(map[Compression]int)}}
	if err := c.readHeader(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// With opens path, runs fn and always closes the container.
func With(path string, fn func(*Container) error) (err error) {
	c, err := Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return fn(c)
}

func (c *Container) readHeader() error {
	fi, err := c.f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	c.size = fi.Size()
	if c.size == 0 {
		return nil // freshly created, no chunks yet
	}
	if c.size < HeaderSize {
		return fmt.Errorf("header: %w (%d bytes)", ErrTruncated, c.size)
	}
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(c.f, hdr); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	for i := 0; i < SlotCount; i++ {
		c.locations[i] = binary.BigEndian.Uint32(hdr[i*4:])
		c.timestamps[i] = binary.BigEndian.Uint32(hdr[SectorSize+i*4:])
		if c.locations[i] != 0 {
			c.stats.Allocated++
		}
	}
	return nil
}

func (c *Container) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

func (c *Container) Path() string { return c.path }
func (c *Container) Coord() Coord { return c.coord }
func (c *Container) Stats() Stats { return c.stats }
func (c *Container) Size() int64  { return c.size }

// Allocated reports whether header slot i points at data.
func (c *Container) Allocated(i int) bool {
	return i >= 0 && i < SlotCount && c.locations[i] != 0
}

// Timestamp is the last-write time recorded for slot i.
func (c *Container) Timestamp(i int) time.Time {
	if i < 0 || i >= SlotCount || c.timestamps[i] == 0 {
		return time.Time{}
	}
	return time.Unix(int64(c.timestamps[i]), 0)
}

// ChunkCoord converts slot i to an absolute chunk coordinate.
func (c *Container) ChunkCoord(i int) (int, int) {
	return c.coord.X*SlotsPerSide + i%SlotsPerSide, c.coord.Z*SlotsPerSide + i/SlotsPerSide
}

// ReadChunk decodes the chunk at an absolute coordinate. Coordinates outside
// the container's span wrap to the same slot offset.
func (c *Container) ReadChunk(chunkX, chunkZ int) (nbt.Compound, bool) {
	return c.ReadSlot(SlotIndex(SlotOf(chunkX, chunkZ)))
}

// ReadSlot decodes slot i. It returns false when the slot is unallocated or
// its data is truncated, compressed with an unsupported scheme or not a
// valid tree.
func (c *Container) ReadSlot(i int) (nbt.Compound, bool) {
	root, err := c.readSlot(i)
	if err != nil {
		if !errors.Is(err, ErrUnallocated) {
			c.stats.Failed++
			c.stats.LastFailure = err.Error()
		}
		return nil, false
	}
	c.stats.Decoded++
	return root, true
}

func (c *Container) readSlot(i int) (nbt.Compound, error) {
	if c.f == nil {
		return nil, os.ErrClosed
	}
	if !c.Allocated(i) {
		return nil, ErrUnallocated
	}
	loc := c.locations[i]
	sector := int64(loc >> 8)
	count := int64(loc & 0xff)
	if sector < HeaderSize/SectorSize || count == 0 {
		return nil, fmt.Errorf("slot %d: bad location sector=%d count=%d", i, sector, count)
	}
	start := sector * SectorSize
	if start+5 > c.size {
		return nil, fmt.Errorf("slot %d: %w", i, ErrTruncated)
	}

	var head [5]byte
	if _, err := c.f.ReadAt(head[:], start); err != nil {
		return nil, fmt.Errorf("slot %d: read header: %w", i, err)
	}
	length := int64(binary.BigEndian.Uint32(head[:4]))
	comp := Compression(head[4])
	if length < 1 || length+4 > count*SectorSize || start+4+length > c.size {
		return nil, fmt.Errorf("slot %d: %w (length %d)", i, ErrTruncated, length)
	}

	var raw []byte
	if comp&ExternalFlag != 0 {
		comp &^= ExternalFlag
		x, z := c.ChunkCoord(i)
		ext := filepath.Join(filepath.Dir(c.path), fmt.Sprintf("c.%d.%d.mcc", x, z))
		b, err := os.ReadFile(ext)
		if err != nil {
			return nil, fmt.Errorf("slot %d: external payload: %w", i, err)
		}
		raw = b
		c.stats.External++
	} else {
		raw = make([]byte, length-1)
		if _, err := c.f.ReadAt(raw, start+5); err != nil {
			return nil, fmt.Errorf("slot %d: read payload: %w", i, err)
		}
	}
	c.stats.ByCompression[comp]++

	data, err := Decompress(comp, raw)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", i, err)
	}
	root, _, err := nbt.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", i, err)
	}
	return root, nil
}

// Decompress expands a payload compressed with comp.
func Decompress(comp Compression, raw []byte) ([]byte, error) {
	var r io.Reader
	switch comp {
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionNone:
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", comp)
	}
	out, err := io.ReadAll(io.LimitReader(r, maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if len(out) > maxPayload {
		return nil, fmt.Errorf("decompress: payload over %d bytes", maxPayload)
	}
	return out, nil
}
