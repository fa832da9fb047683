package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/petward/server/internal/command"
	"github.com/petward/server/internal/companion"
	"github.com/petward/server/internal/config"
	"github.com/petward/server/internal/core/event"
	"github.com/petward/server/internal/core/sched"
	coresys "github.com/petward/server/internal/core/system"
	"github.com/petward/server/internal/data"
	"github.com/petward/server/internal/discovery"
	"github.com/petward/server/internal/lease"
	"github.com/petward/server/internal/persist"
	"github.com/petward/server/internal/scripting"
	"github.com/petward/server/internal/system"
	"github.com/petward/server/internal/whitelist"
	"github.com/petward/server/internal/world"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m             petward  v%-10s          \033[36;1m│\033[0m\n", version)
	fmt.Println("\033[36;1m  │\033[0m        寵物區塊租約 · 回收 · 白名單       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", dotCount(46, title, "")))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotCount(42, label, numStr)), numStr)
}

// dotCount pads to width, counting each CJK rune as two columns.
func dotCount(width int, label, value string) int {
	w := 0
	for _, r := range label {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	n := width - w - len(value) - 1
	if n < 3 {
		n = 3
	}
	return n
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := config.Path("config/server.toml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Load companion tables and the independence extension
	printSection("資料載入")

	catalog, err := data.LoadCompanionTypes(cfg.World.TypesFile)
	if err != nil {
		return fmt.Errorf("load companion types: %w", err)
	}
	printStat("漫遊類型", len(catalog.RoamingTypes()))
	printStat("寵物標記欄位", len(catalog.Markers()))

	ind, closeInd, err := newIndependence(cfg.Scripting, log)
	if err != nil {
		return fmt.Errorf("independence: %w", err)
	}
	defer closeInd()
	printOK(fmt.Sprintf("獨立寵物判定: %s", cfg.Scripting.Independence))

	partitions := func() []discovery.Partition {
		keys := cfg.World.Partitions
		if len(keys) == 0 {
			keys = discovery.Discover(cfg.World.Dir)
		}
		return discovery.Resolve(cfg.World.Dir, keys)
	}
	printStat("可掃描維度", len(partitions()))
	fmt.Println()

	// 4. Lease storage
	printSection("租約儲存")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("lease store: %w", err)
	}
	defer closeStore()

	wl, err := whitelist.Open(cfg.Whitelist.File, log)
	if err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}
	printStat("白名單擁有者", wl.Owners())
	fmt.Println()

	// 5. World state and owned managers
	ws := world.NewState()
	ws.SetTargetFilter(whitelist.Guard{Registry: wl})

	queue := sched.NewQueue(log)
	bus := event.NewBus()
	mgr := lease.NewManager(ws, ws.Tickets, queue, ind, leaseConfig(cfg), log)

	persistence := system.NewPersistenceSystem(mgr, store, log, cfg.Ticks(cfg.Lease.SaveInterval))
	ws.SetSaver(func() error {
		persistence.SaveAll()
		return nil
	})

	shutdownCtx, stopScans := context.WithCancel(context.Background())
	defer stopScans()

	extractor := &companion.Extractor{Catalog: catalog, Independence: ind}
	scans := discovery.NewCoordinator(discovery.NewScanner(extractor, log), ws, queue, catalog, ind, log,
		discovery.WithFlush(ws.SaveAll),
		discovery.WithContext(shutdownCtx))

	deps := &command.Deps{
		World:        ws,
		Leases:       mgr,
		Store:        store,
		Scans:        scans,
		Queue:        queue,
		Whitelist:    wl,
		Catalog:      catalog,
		Independence: ind,
		Extractor:    extractor,
		Config:       cfg,
		Printer:      command.NewPrinter(cfg.Server.Language),
		Log:          log,
		Version:      version,
		Partitions:   partitions,
	}

	onFirstJoin := func(owner companion.Identity) {
		if !cfg.Discovery.AutoRecoverOnFirstJoin {
			mgr.MarkFirstRecoveryDone(owner)
			return
		}
		if err := command.StartRecovery(deps, owner, partitions(), true); err != nil {
			log.Warn("首次登入自動回收未啟動", zap.String("owner", owner.String()), zap.Error(err))
		}
	}

	if cfg.Whitelist.Watch {
		go func() {
			if err := wl.Watch(shutdownCtx, queue.Post); err != nil {
				log.Warn("白名單監看已停止", zap.Error(err))
			}
		}()
	}

	// 6. Console input
	lines := make(chan string, 64)
	quit := make(chan struct{})
	con := newConsole(ws, bus, deps, log, func() { close(quit) })
	go readLines(os.Stdin, lines)

	// 7. Create systems and register with runner
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(lines, con.exec, 16))
	runner.Register(system.NewDispatchSystem(queue, bus))
	runner.Register(system.NewLeaseSystem(bus, mgr, store, log, onFirstJoin))
	runner.Register(system.NewHostSystem(ws, log))
	runner.Register(persistence)

	// 8. Start tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Server.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("世界目錄 %s", cfg.World.Dir))
	printReady(fmt.Sprintf("主迴圈啟動 (tick: %s)", cfg.Server.TickRate))
	printReady("輸入 help 查看指令")
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Server.TickRate)
		case <-quit:
			return shutdown(ws, bus, runner, persistence, stopScans, log, cfg.Server.TickRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			return shutdown(ws, bus, runner, persistence, stopScans, log, cfg.Server.TickRate)
		}
	}
}

// shutdown disconnects every player so leave handling stores their leases,
// then flushes whatever remains.
func shutdown(ws *world.State, bus *event.Bus, runner *coresys.Runner, p *system.PersistenceSystem, stopScans context.CancelFunc, log *zap.Logger, tick time.Duration) error {
	stopScans()
	for _, pl := range ws.AllPlayers() {
		ws.RemovePlayer(pl.UUID)
		event.Emit(bus, event.OwnerLeft{Owner: pl.UUID, Name: pl.Username})
	}
	runner.Tick(tick)
	n := p.SaveAll()
	log.Info("伺服器已停止", zap.Int("saved", n))
	return nil
}

func leaseConfig(cfg *config.Config) lease.Config {
	return lease.Config{
		TTL:            cfg.Lease.TTLTicks,
		Radius:         cfg.Lease.Radius,
		RenewInterval:  cfg.Lease.RenewInterval,
		RecoveryRadius: cfg.Lease.RecoveryRadius,
		CleanupDelay:   cfg.Ticks(cfg.Lease.CleanupDelay),
	}.Clamped()
}

// newIndependence picks the independence provider. The returned close func
// is always non-nil.
func newIndependence(cfg config.ScriptingConfig, log *zap.Logger) (companion.Independence, func(), error) {
	switch cfg.Independence {
	case "none":
		return nil, func() {}, nil
	case "lua":
		engine, err := scripting.NewEngine(cfg.Dir, log)
		if err != nil {
			return nil, func() {}, err
		}
		ind := engine.Independence()
		if ind == nil {
			log.Warn("Lua 腳本未定義 is_independent，改用標籤判定")
			engine.Close()
			return companion.TagIndependence{}, func() {}, nil
		}
		return ind, engine.Close, nil
	default:
		return companion.TagIndependence{}, func() {}, nil
	}
}

// openStore opens the configured lease backend. The returned close func is
// always non-nil.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (lease.Store, func(), error) {
	if cfg.Storage.Backend != "postgres" {
		fs, err := lease.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, func() {}, err
		}
		printOK(fmt.Sprintf("檔案儲存 %s", fs.Dir()))
		return fs, func() {}, nil
	}

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, func() {}, fmt.Errorf("database: %w", err)
	}
	printOK("PostgreSQL 連線成功")

	schema, err := db.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, func() {}, fmt.Errorf("migrations: %w", err)
	}
	printOK(fmt.Sprintf("資料庫遷移完成 (版本 %d)", schema))
	return persist.NewLeaseRepo(db), db.Close, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
