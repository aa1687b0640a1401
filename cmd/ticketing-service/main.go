package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/vladislavdragonenkov/ticketing/internal/app"
	"github.com/vladislavdragonenkov/ticketing/internal/version"
)

func main() {
	fs := flag.NewFlagSet("ticketing-service", flag.ExitOnError)
	showVersion := fs.Bool("version", false, "print build information and exit")
	jsonLogs := fs.Bool("json-logs", false, "write logs as JSON")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(version.Current())
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		configureLogging("info", *jsonLogs)
		log.WithError(err).Fatal("invalid configuration")
	}
	configureLogging(cfg.LogLevel, *jsonLogs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("ticketing service failed")
	}
	log.Info("ticketing service stopped")
}

// configureLogging выставляет формат и уровень глобального логгера.
// Неизвестный уровень заменяется на info с предупреждением.
func configureLogging(level string, asJSON bool) {
	if asJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
		defer log.WithField("level", level).Warn("unknown log level, falling back to info")
	}
	log.SetLevel(parsed)
}
