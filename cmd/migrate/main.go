// Команда migrate применяет и откатывает встроенные миграции схемы заказов.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/vladislavdragonenkov/ticketing/internal/storage/postgres"
)

const dsnEnv = "TICKETING_POSTGRES_DSN"

type direction string

const (
	directionUp     direction = "up"
	directionDown   direction = "down"
	directionStatus direction = "status"
)

type options struct {
	direction direction
	// steps == 0: up применяет все, down откатывает одну
	steps   int
	dsn     string
	timeout time.Duration
}

// schema — то, что migrate нужно от postgres.Store.
type schema interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	Migrations(ctx context.Context) ([]postgres.MigrationInfo, error)
	MigrationStatus(ctx context.Context) (version int64, applied int, err error)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		fail("open postgres: %v", err)
	}
	err = apply(ctx, store, opts, os.Stdout)
	_ = store.Close()
	if err != nil {
		fail("%v", err)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts options
		dir  string
	)

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&dir, "direction", string(directionUp), "up | down | status")
	fs.IntVar(&opts.steps, "steps", 0, "сколько миграций применить или откатить (0: up все, down одну)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (по умолчанию "+dsnEnv+")")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "общий таймаут")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = direction(strings.ToLower(strings.TrimSpace(dir)))
	if opts.dsn = strings.TrimSpace(opts.dsn); opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(dsnEnv))
	}

	switch {
	case opts.direction != directionUp && opts.direction != directionDown && opts.direction != directionStatus:
		return options{}, fmt.Errorf("unsupported direction %q (use up|down|status)", dir)
	case opts.steps < 0:
		return options{}, errors.New("steps must be >= 0")
	case opts.timeout <= 0:
		return options{}, errors.New("timeout must be > 0")
	case opts.dsn == "":
		return options{}, fmt.Errorf("%s (or --dsn) is required", dsnEnv)
	}
	return opts, nil
}

// apply выполняет команду и печатает итоговую версию схемы.
func apply(ctx context.Context, s schema, opts options, out io.Writer) error {
	switch opts.direction {
	case directionUp:
		if err := s.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case directionDown:
		if err := s.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case directionStatus:
		if err := printMigrations(ctx, s, out); err != nil {
			return err
		}
	}

	version, applied, err := s.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	log.WithFields(log.Fields{
		"direction": opts.direction,
		"version":   version,
		"applied":   applied,
	}).Info("migrate finished")
	fmt.Fprintf(out, "schema version %d, %d applied\n", version, applied)
	return nil
}

func printMigrations(ctx context.Context, s schema, out io.Writer) error {
	all, err := s.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, m := range all {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(tw, "%04d\t%s\t%s\n", m.Version, m.Name, state)
	}
	return tw.Flush()
}

func fail(format string, args ...any) {
	log.Errorf(format, args...)
	os.Exit(1)
}
