package postgres

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["m/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func versionsOf(plan []migration) []int64 {
	out := make([]int64, 0, len(plan))
	for _, m := range plan {
		out = append(out, m.version)
	}
	return out
}

func TestParseMigrations(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"002_vouchers.up.sql":   "ALTER TABLE orders ADD COLUMN x INT;",
		"002_vouchers.down.sql": "ALTER TABLE orders DROP COLUMN x;",
		"001_init.up.sql":       "CREATE TABLE orders (id INT);",
		"001_init.down.sql":     "DROP TABLE orders;",
	})

	all, err := parseMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0001_init", all[0].String())
	assert.Equal(t, "0002_vouchers", all[1].String())
	assert.Equal(t, "DROP TABLE orders;", all[0].script(migrateDown))
	assert.Equal(t, "CREATE TABLE orders (id INT);", all[0].script(migrateUp))
}

func TestParseMigrations_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "missing down",
			files: map[string]string{"001_init.up.sql": "SELECT 1;"},
			want:  "needs both up and down",
		},
		{
			name:  "bad file name",
			files: map[string]string{"init.sql": "SELECT 1;"},
			want:  "unexpected file",
		},
		{
			name:  "empty script",
			files: map[string]string{"001_init.up.sql": " \n", "001_init.down.sql": "SELECT 1;"},
			want:  "is empty",
		},
		{
			name: "name conflict",
			files: map[string]string{
				"001_init.up.sql":    "SELECT 1;",
				"001_other.down.sql": "SELECT 1;",
			},
			want: "conflicting names",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMigrations(migrationFS(tt.files), "m")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := parseMigrations(fstest.MapFS{}, "m")
	require.Error(t, err)
}

func TestParseMigrations_Embedded(t *testing.T) {
	all, err := parseMigrations(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, versionsOf(all))
	assert.True(t, strings.Contains(all[0].up, "orders_order_id_key"), "orders must keep unique order_id")
	assert.Contains(t, all[2].up, "PRIMARY KEY (owner, key)")
}

func TestPlanMigrations(t *testing.T) {
	all := []migration{{version: 1}, {version: 2}, {version: 3}}

	tests := []struct {
		name    string
		applied map[int64]bool
		dir     migrationDirection
		steps   int
		want    []int64
	}{
		{name: "up all", applied: nil, dir: migrateUp, steps: 0, want: []int64{1, 2, 3}},
		{name: "up pending", applied: map[int64]bool{1: true}, dir: migrateUp, steps: 0, want: []int64{2, 3}},
		{name: "up limited", applied: nil, dir: migrateUp, steps: 2, want: []int64{1, 2}},
		{name: "up nothing", applied: map[int64]bool{1: true, 2: true, 3: true}, dir: migrateUp, want: []int64{}},
		{name: "down default one", applied: map[int64]bool{1: true, 2: true}, dir: migrateDown, steps: 0, want: []int64{2}},
		{name: "down many", applied: map[int64]bool{1: true, 2: true, 3: true}, dir: migrateDown, steps: 10, want: []int64{3, 2, 1}},
		{name: "down nothing", applied: map[int64]bool{}, dir: migrateDown, steps: 1, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planMigrations(all, tt.applied, tt.dir, tt.steps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, versionsOf(plan))
		})
	}
}

func TestPlanMigrations_Errors(t *testing.T) {
	all := []migration{{version: 1}}

	_, err := planMigrations(all, map[int64]bool{1: true, 7: true}, migrateDown, 2)
	require.ErrorContains(t, err, "no embedded script")

	_, err = planMigrations(all, nil, migrationDirection("sideways"), 1)
	require.Error(t, err)
}
