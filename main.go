package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ShoshinNikita/nlargest/cmd"
	"github.com/ShoshinNikita/nlargest/nlargest"
	"github.com/ShoshinNikita/nlargest/pkg/metrics"
	"github.com/ShoshinNikita/nlargest/pkg/rlog"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		rlog.Warnf("couldn't load .env file: %s", err)
	}

	cfg, err := nlargest.ParseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		rlog.Errorf("invalid arguments: %s", err)
		return 2
	}

	rlog.SetLevel(cfg.LogLevel)

	if cfg.MetricsFile != "" {
		defer func() {
			if err := metrics.WriteToFile(cfg.MetricsFile); err != nil {
				rlog.Error(err)
				exitCode = 1
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := cmd.NewApp(cfg)
	if err := app.Prepare(); err != nil {
		rlog.Error(err)
		return 1
	}
	if err := app.Run(ctx, os.Stdout); err != nil {
		rlog.Error(err)
		return 1
	}
	return 0
}
