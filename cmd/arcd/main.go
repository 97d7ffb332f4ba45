package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arcworks/arc/internal/config"
	coresys "github.com/arcworks/arc/internal/core/system"
	"github.com/arcworks/arc/internal/handler"
	"github.com/arcworks/arc/internal/injector"
	gonet "github.com/arcworks/arc/internal/net"
	"github.com/arcworks/arc/internal/net/packet"
	"github.com/arcworks/arc/internal/system"
	"github.com/arcworks/arc/internal/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

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
	fmt.Println("\033[36;1m  │\033[0m                arcd  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       權限式實體元件資料庫 · Go 服務      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m服務:\033[0m %s\n\n", serverName)
}

// displayWidth counts CJK characters as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := max(46-displayWidth(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-displayWidth(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main daemon logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/arcd.toml"
	if p := os.Getenv("ARC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger and tracing
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("追蹤關閉失敗", zap.Error(err))
		}
	}()

	// 3. Assemble components, open the database and restore state
	printSection("資料儲存")
	a, cleanup, err := injector.InitializeApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()
	if a.DB != nil {
		printOK(fmt.Sprintf("資料庫連線成功 (%s)", a.DB.Driver))
	} else {
		printOK("僅記憶體模式，不寫入檢查點")
	}

	stats, err := a.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	printStat("還原資料槽", stats.Restored)
	printStat("元件結構", stats.Schemas)
	printStat("世界實例", stats.Instances)
	printStat("行動包授權", stats.Bundles)
	printStat("Lua 腳本", stats.Scripts)
	printStat("索引實體", stats.Entities)
	fmt.Println()

	// 4. Create packet handler registry and register handlers
	pktReg := packet.NewRegistry(log)
	handler.RegisterAll(pktReg, &handler.Deps{
		Config:   cfg,
		Log:      log,
		Runtime:  a.Runtime,
		Registry: a.Registry,
		Metadata: a.Metadata,
		Scripts:  a.Scripts,
		Index:    a.Index,
	})

	// 5. Create network server
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, gonet.SessionOptions{
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		MaxFrameSize: cfg.Network.MaxFrameSize,
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}

	// 6. Create systems and register with runner
	sessions := gonet.NewSessionStore()
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, sessions, cfg.Network.MaxRequestsPerTick, log))
	runner.Register(system.NewEventDispatchSystem(a.Bus))
	runner.Register(system.NewOutputSystem(sessions))
	var checkpoint *system.CheckpointSystem
	if a.Slots != nil {
		checkpoint = system.NewCheckpointSystem(a.Store, a.Slots, cfg.Checkpoint.IntervalTicks, cfg.Checkpoint.Timeout, log)
		runner.Register(checkpoint)
	}
	runner.Register(system.NewCleanupSystem(netServer, sessions, log))

	// 7. Run the accept loop and the daemon loop until a signal arrives
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		netServer.AcceptLoop()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		netServer.Shutdown()
		return nil
	})
	g.Go(func() error {
		return loop(gctx, runner, cfg.Network.TickRate)
	})

	printSection("服務就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	printReady(fmt.Sprintf("主迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("收到關閉信號")

	// 8. Final checkpoint so nothing committed since the last one is lost
	if checkpoint != nil {
		fctx, fcancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer fcancel()
		if err := checkpoint.Flush(fctx); err != nil {
			log.Error("關閉前檢查點失敗", zap.Error(err))
		} else {
			log.Info("關閉前檢查點完成", zap.Int("slots", a.Store.Len()))
		}
	}
	log.Info("服務已停止")
	return nil
}

// loop runs a full tick every tickRate and polls the input phase in
// between to keep request latency low.
func loop(ctx context.Context, runner *coresys.Runner, tickRate time.Duration) error {
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	poll := time.NewTicker(max(tickRate/10, time.Millisecond))
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runner.Tick(tickRate)
		case <-poll.C:
			runner.TickPhase(coresys.PhaseInput, 0)
		}
	}
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
