package discovery

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/core/sched"
)

var (
	// ErrAlreadyScanning rejects a second scan for an owner with one outstanding.
	ErrAlreadyScanning = errors.New("discovery: scan already in progress")
	// ErrScanFailed is the generic failure reported to the requester.
	ErrScanFailed = errors.New("discovery: scan failed")
)

// LiveSource lists an owner's resident companions. Tick thread only.
type LiveSource interface {
	CompanionsOf(owner companion.Identity) []companion.Companion
}

// Report is delivered to the requester once a scan completes.
type Report struct {
	Owner      companion.Identity
	Partitions []string
	Companions []companion.Snapshot // merged disk + live, before bucketing
	companion.Categorized
	Disk DiskResult
}

// Request describes one discovery run.
type Request struct {
	Owner      companion.Identity
	Partitions []Partition
	Flush      bool // save resident entities before reading disk

	// OnProgress and OnDone run on the tick thread. Either may be nil.
	OnProgress ProgressFunc
	OnDone     func(Report, error)
}

// Coordinator runs disk scans off the tick thread and hands the results back
// through the scheduler queue. All methods belong to the tick thread.
type Coordinator struct {
	scanner *Scanner
	live    LiveSource
	queue   *sched.Queue
	catalog *companion.Catalog
	ind     companion.Independence
	flush   func() error
	log     *zap.Logger

	ctx      context.Context
	inFlight mapset.Set[companion.Identity]
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithFlush installs the save-before-scan hook.
func WithFlush(fn func() error) CoordinatorOption {
	return func(c *Coordinator) { c.flush = fn }
}

// WithContext bounds every scan by ctx (server shutdown).
func WithContext(ctx context.Context) CoordinatorOption {
	return func(c *Coordinator) { c.ctx = ctx }
}

func NewCoordinator(scanner *Scanner, live LiveSource, queue *sched.Queue, catalog *companion.Catalog, ind companion.Independence, log *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		scanner:  scanner,
		live:     live,
		queue:    queue,
		catalog:  catalog,
		ind:      ind,
		log:      log,
		ctx:      context.Background(),
		inFlight: mapset.NewThreadUnsafeSet[companion.Identity](),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scanning reports whether owner has a scan outstanding.
func (c *Coordinator) Scanning(owner companion.Identity) bool {
	return c.inFlight.Contains(owner)
}

// InFlight returns the number of outstanding scans.
func (c *Coordinator) InFlight() int { return c.inFlight.Cardinality() }

// Start launches a scan. It returns ErrAlreadyScanning when owner already has
// one outstanding; otherwise the result arrives later through req.OnDone.
func (c *Coordinator) Start(req Request) error {
	if c.inFlight.Contains(req.Owner) {
		return ErrAlreadyScanning
	}
	c.inFlight.Add(req.Owner)

	if req.Flush && c.flush != nil {
		if err := c.flush(); err != nil {
			c.log.Warn("掃描前存檔失敗，繼續掃描", zap.String("owner", req.Owner.String()), zap.Error(err))
		}
	}

	keys := make([]string, len(req.Partitions))
	for i, p := range req.Partitions {
		keys[i] = p.Key
	}
	c.log.Info("開始掃描寵物",
		zap.String("owner", req.Owner.String()),
		zap.Strings("partitions", keys))

	go c.run(req, keys)
	return nil
}

// run executes on a worker goroutine.
func (c *Coordinator) run(req Request, keys []string) {
	var (
		disk DiskResult
		err  error
	)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("寵物掃描 panic", zap.String("owner", req.Owner.String()), zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrScanFailed, r)
		}
		c.queue.Post(func() { c.finish(req, keys, disk, err) })
	}()

	var progress ProgressFunc
	if req.OnProgress != nil {
		progress = func(done, total int) {
			c.queue.Post(func() { req.OnProgress(done, total) })
		}
	}
	disk, err = c.scanner.ScanDisk(c.ctx, req.Owner, req.Partitions, progress)
}

// finish runs on the tick thread.
func (c *Coordinator) finish(req Request, keys []string, disk DiskResult, scanErr error) {
	defer c.inFlight.Remove(req.Owner)

	if scanErr != nil {
		c.log.Warn("寵物掃描失敗", zap.String("owner", req.Owner.String()), zap.Error(scanErr))
		if req.OnDone != nil {
			req.OnDone(Report{Owner: req.Owner, Partitions: keys, Disk: disk}, scanErr)
		}
		return
	}

	rep, err := c.assemble(req.Owner, keys, disk)
	if err != nil {
		c.log.Error("合併掃描結果失敗", zap.String("owner", req.Owner.String()), zap.Error(err))
	} else {
		c.log.Info("寵物掃描完成",
			zap.String("owner", req.Owner.String()),
			zap.Int("found", rep.Total()),
			zap.Int("files", disk.Files),
			zap.Int("files_failed", disk.FilesFailed),
			zap.Int("chunks_failed", disk.ChunksFailed),
			zap.Duration("elapsed", disk.Elapsed))
	}
	if req.OnDone != nil {
		req.OnDone(rep, err)
	}
}

func (c *Coordinator) assemble(owner companion.Identity, keys []string, disk DiskResult) (rep Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrScanFailed, r)
		}
	}()
	var live []companion.Companion
	if c.live != nil {
		live = c.live.CompanionsOf(owner)
	}
	merged := Merge(owner, disk.Snapshots, live, c.ind)
	return Report{
		Owner:       owner,
		Partitions:  keys,
		Companions:  merged,
		Categorized: companion.Categorize(merged, c.catalog),
		Disk:        disk,
	}, nil
}

// ScanNow runs a complete scan on the calling goroutine, without merging live
// companions. Used by the offline CLI.
func ScanNow(ctx context.Context, s *Scanner, owner companion.Identity, parts []Partition, catalog *companion.Catalog, progress ProgressFunc) (Report, error) {
	disk, err := s.ScanDisk(ctx, owner, parts, progress)
	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i] = p.Key
	}
	return Report{
		Owner:       owner,
		Partitions:  keys,
		Companions:  disk.Snapshots,
		Categorized: companion.Categorize(disk.Snapshots, catalog),
		Disk:        disk,
	}, err
}
