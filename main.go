package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"regime-trader/backtest"
	"regime-trader/config"
	"regime-trader/daemon"
	"regime-trader/feed"
	"regime-trader/logging"
	"regime-trader/status"
	"regime-trader/strategy"
)

var (
	cfg    *config.Config
	logger *logging.Logger
)

func initLogging() error {
	logLevel := logging.LogLevel(cfg.LogLevel)
	if cfg.Debug {
		logLevel = logging.DEBUG
	}

	var err error
	logger, err = logging.NewLogger(
		cfg.LogFile,
		cfg.LogMaxSize,
		cfg.LogMaxBackups,
		cfg.LogMaxAge,
		cfg.LogCompress,
		logLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func main() {
	// Optional .env file; absence is fine.
	godotenv.Load()

	backtestPath := flag.String("backtest", "", "replay bars from a CSV file instead of the live feed")
	paramsPath := flag.String("params", "", "strategy parameter YAML file")
	debugFlag := flag.Bool("debug", false, "enable debug logs")
	daemonStart := flag.Bool("start-daemon", false, "Start the application as a daemon")
	daemonStop := flag.Bool("stop-daemon", false, "Stop the daemon process")
	daemonRestart := flag.Bool("restart-daemon", false, "Restart the daemon process")
	flag.Parse()

	cfg = config.LoadConfig()
	cfg.Debug = *debugFlag

	if *paramsPath != "" {
		if err := cfg.ApplyFile(*paramsPath); err != nil {
			log.Fatalf("Failed to load params file: %v", err)
		}
	}

	if *daemonStop {
		if err := daemon.StopDaemon(); err != nil {
			log.Fatalf("Failed to stop daemon: %v", err)
		}
		return
	}
	if *daemonStart || *daemonRestart {
		args := daemonArgs(*paramsPath, *debugFlag)
		var err error
		if *daemonRestart {
			err = daemon.RestartDaemon(args)
		} else {
			err = daemon.StartDaemon(args)
		}
		if err != nil {
			log.Fatalf("Failed to start daemon: %v", err)
		}
		return
	}

	if err := initLogging(); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Close()

	engine, err := strategy.NewEngine(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build engine: %v", err)
	}

	if *backtestPath != "" {
		runBacktest(engine, *backtestPath)
		return
	}
	runLive(engine)
}

func daemonArgs(paramsPath string, debug bool) []string {
	var args []string
	if paramsPath != "" {
		args = append(args, "-params", paramsPath)
	}
	if debug {
		args = append(args, "-debug")
	}
	return args
}

func runBacktest(engine *strategy.Engine, path string) {
	bars, err := backtest.LoadBarsCSV(path)
	if err != nil {
		logger.Fatal("Failed to load bars: %v", err)
	}
	logger.Info("Replaying %d bars from %s (%s channel, period=%d)",
		len(bars), path, cfg.ChannelVariant, cfg.Period)

	runner := backtest.NewRunner(engine, logger)
	res, err := runner.Run(bars)
	if err != nil {
		logger.Fatal("Backtest failed: %v", err)
	}

	logger.Info("Backtest finished: bars=%d skipped=%d intents=%d opens=%d closes=%d",
		res.Bars, res.Skipped, res.Intents, res.Opens, res.Closes)
	logger.Info("Realized=%.4f Unrealized=%.4f Equity=%.4f",
		res.Realized, res.Unrealized, res.Equity)
}

func runLive(engine *strategy.Engine) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if daemon.IsDaemon() {
		logger.Info("Running in daemon mode")
	}

	srv := status.StartServer(cfg, engine, logger)
	if srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	klines := feed.NewKlineFeed(cfg, logger)
	feedErr := make(chan error, 1)
	go func() {
		feedErr <- klines.Run(ctx)
	}()

	logger.Info("Live mode: %s %sm bars from %s", cfg.Symbol, cfg.Interval, cfg.WSPublicURL)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return
		case err := <-feedErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Feed stopped: %v", err)
				os.Exit(1)
			}
			return
		case bar, ok := <-klines.Bars():
			if !ok {
				return
			}
			intents, err := engine.OnBar(bar)
			if err != nil {
				if errors.Is(err, strategy.ErrOutOfOrderBar) {
					logger.Warning("Dropping bar: %v", err)
					continue
				}
				logger.Error("Bar processing failed: %v", err)
				continue
			}
			for _, intent := range intents {
				logger.Info("intent: %s %s %s size=%.2f", intent.Action, intent.Mode, intent.Side, intent.SizeFraction)
			}
		}
	}
}
