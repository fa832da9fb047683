// Package discovery finds a player's companions in persisted world containers
// and merges them with the companions currently resident in the host.
package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/region"
)

// ProgressFunc receives (processed, total) container counts.
type ProgressFunc func(processed, total int)

// DiskResult is the worker-side outcome of a disk scan.
type DiskResult struct {
	Snapshots []companion.Snapshot

	Files        int // containers found with a valid name
	FilesSkipped int // *.mca files with an unparseable name
	FilesFailed  int // containers that could not be opened
	Chunks       int // chunk records decoded
	ChunksFailed int // allocated slots that failed to decode
	Elapsed      time.Duration
}

// Scanner reads region containers. It never writes and holds no state
// between scans, so one Scanner may serve concurrent scans.
type Scanner struct {
	Extractor *companion.Extractor
	Log       *zap.Logger
}

func NewScanner(ex *companion.Extractor, log *zap.Logger) *Scanner {
	if ex == nil {
		ex = &companion.Extractor{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{Extractor: ex, Log: log}
}

type containerFile struct {
	path      string
	partition string
}

// ScanDisk walks every container of every partition and returns the
// companions owned by owner. Identities are unique across the result; the
// first container (in enumeration order) that yields an identity wins.
// Failures of single files or chunks are counted and skipped. Only a
// cancelled ctx stops the scan early, returning the partial result.
func (s *Scanner) ScanDisk(ctx context.Context, owner companion.Identity, parts []Partition, progress ProgressFunc) (DiskResult, error) {
	start := time.Now()
	var res DiskResult

	files, skipped := listContainers(parts, s.Log)
	res.FilesSkipped = skipped
	res.Files = len(files)

	found := mapset.NewThreadUnsafeSet[companion.Identity]()
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("scan cancelled after %d/%d containers: %w", i, len(files), err)
		}
		s.scanFile(f, owner, found, &res)
		if progress != nil {
			progress(i+1, len(files))
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func (s *Scanner) scanFile(f containerFile, owner companion.Identity, found mapset.Set[companion.Identity], res *DiskResult) {
	defer func() {
		if r := recover(); r != nil {
			res.FilesFailed++
			s.Log.Error("容器解析 panic", zap.String("file", f.path), zap.Any("panic", r))
		}
	}()

	err := region.With(f.path, func(c *region.Container) error {
		for i := 0; i < region.SlotCount; i++ {
			if !c.Allocated(i) {
				continue
			}
			root, ok := c.ReadSlot(i)
			if !ok {
				res.ChunksFailed++
				continue
			}
			res.Chunks++
			for _, snap := range s.Extractor.Extract(root, owner, f.partition) {
				if found.Contains(snap.ID) {
					continue
				}
				found.Add(snap.ID)
				res.Snapshots = append(res.Snapshots, snap)
			}
		}
		if st := c.Stats(); st.Failed > 0 {
			s.Log.Warn("容器內有損壞區塊",
				zap.String("file", f.path),
				zap.Int("failed", st.Failed),
				zap.String("last", st.LastFailure))
		}
		return nil
	})
	if err != nil {
		res.FilesFailed++
		s.Log.Warn("無法開啟容器", zap.String("file", f.path), zap.Error(err))
	}
}

// listContainers enumerates *.mca files in directory order. Files whose name
// does not parse as a container coordinate are counted and dropped.
func listContainers(parts []Partition, log *zap.Logger) ([]containerFile, int) {
	var files []containerFile
	skipped := 0
	for _, p := range parts {
		for _, dir := range p.Dirs {
			entries, err := os.ReadDir(dir)
			if err != nil {
				log.Warn("無法列出目錄", zap.String("dir", dir), zap.Error(err))
				continue
			}
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() || !strings.HasSuffix(name, ".mca") {
					continue
				}
				if _, ok := region.ParseFileName(name); !ok {
					skipped++
					log.Debug("略過非容器檔名", zap.String("file", name))
					continue
				}
				files = append(files, containerFile{path: filepath.Join(dir, name), partition: p.Key})
			}
		}
	}
	return files, skipped
}
