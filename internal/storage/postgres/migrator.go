package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// migrationsDir лежит рядом с пакетом и встраивается в бинарник.
const migrationsDir = "sql/migrations"

// Ключ advisory-lock, под которым мигрируют параллельно стартующие инстансы.
const migrationLockID int64 = 0x7469636b

//go:embed sql/migrations/*.sql
var embeddedMigrations embed.FS

var migrationName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

type migrationDirection string

const (
	migrateUp   migrationDirection = "up"
	migrateDown migrationDirection = "down"
)

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migration) script(dir migrationDirection) string {
	if dir == migrateDown {
		return m.down
	}
	return m.up
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

// MigrationInfo — встроенная миграция и признак её применения.
type MigrationInfo struct {
	Version int64
	Name    string
	Applied bool
}

// MigrateUp применяет ещё не применённые миграции по возрастанию версии; steps=0 — все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrateUp, steps)
}

// MigrateDown откатывает последние применённые миграции; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrateDown, steps)
}

// MigrationStatus возвращает максимальную применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (version int64, applied int, err error) {
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`,
		).Scan(&version, &applied)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("migration status: %w", err)
	}
	return version, applied, nil
}

// Migrations перечисляет встроенные миграции с отметкой о применении.
func (s *Store) Migrations(ctx context.Context) ([]MigrationInfo, error) {
	all, err := parseMigrations(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}

	var infos []MigrationInfo
	err = s.withConn(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		infos = make([]MigrationInfo, 0, len(all))
		for _, m := range all {
			infos = append(infos, MigrationInfo{Version: m.version, Name: m.name, Applied: applied[m.version]})
		}
		return nil
	})
	return infos, err
}

func (s *Store) migrate(ctx context.Context, dir migrationDirection, steps int) error {
	all, err := parseMigrations(embeddedMigrations, migrationsDir)
	if err != nil {
		return err
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockID)
		}()

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		plan, err := planMigrations(all, applied, dir, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := runMigration(ctx, conn, m, dir); err != nil {
				return err
			}
		}
		return nil
	})
}

// withConn выделяет одно соединение (advisory-lock привязан к сессии) и гарантирует таблицу версий.
func (s *Store) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return errStoreClosed
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn)
}

// planMigrations выбирает миграции для запуска в порядке выполнения.
func planMigrations(all []migration, applied map[int64]bool, dir migrationDirection, steps int) ([]migration, error) {
	var plan []migration
	switch dir {
	case migrateUp:
		for _, m := range all {
			if !applied[m.version] {
				plan = append(plan, m)
			}
		}
		if steps > 0 && len(plan) > steps {
			plan = plan[:steps]
		}

	case migrateDown:
		if steps <= 0 {
			steps = 1
		}
		known := make(map[int64]migration, len(all))
		for _, m := range all {
			known[m.version] = m
		}
		versions := make([]int64, 0, len(applied))
		for v, ok := range applied {
			if ok {
				versions = append(versions, v)
			}
		}
		slices.Sort(versions)
		slices.Reverse(versions)
		for _, v := range versions {
			if len(plan) == steps {
				break
			}
			m, ok := known[v]
			if !ok {
				return nil, fmt.Errorf("applied migration %d has no embedded script", v)
			}
			plan = append(plan, m)
		}

	default:
		return nil, fmt.Errorf("unknown migration direction %q", dir)
	}
	return plan, nil
}

// runMigration выполняет скрипт и правку schema_migrations в одной транзакции.
func runMigration(ctx context.Context, conn *sql.Conn, m migration, dir migrationDirection) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s %s: begin: %w", dir, m, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.script(dir)); err != nil {
		return fmt.Errorf("migration %s %s: %w", dir, m, err)
	}

	if dir == migrateUp {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
	}
	if err != nil {
		return fmt.Errorf("migration %s %s: record version: %w", dir, m, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %s %s: commit: %w", dir, m, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// parseMigrations читает пары NNNN_name.up.sql / NNNN_name.down.sql из dir.
func parseMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("unexpected file %q in migrations", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}
		script := strings.TrimSpace(string(raw))
		if script == "" {
			return nil, fmt.Errorf("migration %q is empty", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.name, parts[2])
		}

		target := &m.up
		if parts[3] == string(migrateDown) {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("migration %q is duplicated", entry.Name())
		}
		*target = script
	}

	if len(byVersion) == 0 {
		return nil, fmt.Errorf("no migrations in %s", dir)
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down scripts", m)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int {
		switch {
		case a.version < b.version:
			return -1
		case a.version > b.version:
			return 1
		}
		return 0
	})
	return out, nil
}
