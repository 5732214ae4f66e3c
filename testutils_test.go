package literecord_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/dir01/literecord"
)

// setupTestDB creates an in-memory SQLite database holding the fixture tables.
// A single connection keeps every statement, transactions included, on the
// same in-memory database.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err, "failed to open in-memory sqlite")
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close db: %v", err)
		}
	})

	for _, stmt := range fixtureDDL {
		_, err := db.ExecContext(t.Context(), stmt)
		require.NoError(t, err, "creating fixture tables")
	}
	return db
}

var fixtureDDL = []string{
	`CREATE TABLE countries (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL
	)`,
	`CREATE TABLE organizations (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		country_id INTEGER
	)`,
	`CREATE TABLE generic_classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cpf TEXT,
		name TEXT,
		role INTEGER,
		enrollment TEXT,
		organization_id INTEGER,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME,
		restored_at DATETIME,
		UNIQUE (cpf, organization_id)
	)`,
	`CREATE TABLE tags (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE generic_classes_tags (
		generic_class_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL
	)`,
	`CREATE TABLE memberships (
		user_id INTEGER NOT NULL,
		group_id INTEGER NOT NULL,
		role TEXT,
		PRIMARY KEY (user_id, group_id)
	)`,
	`CREATE TABLE events (
		id TEXT PRIMARY KEY,
		title TEXT,
		period_start INTEGER,
		period_end INTEGER
	)`,
}

func countrySchema() *literecord.Schema {
	return &literecord.Schema{
		Name:    "countries",
		Table:   "countries",
		ID:      []string{"id"},
		Visible: []string{"id", "code"},
	}
}

func organizationSchema() *literecord.Schema {
	return &literecord.Schema{
		Name:    "organizations",
		Table:   "organizations",
		ID:      []string{"id"},
		Visible: []string{"id", "name", "country_id"},
		Relations: []literecord.Relation{
			{Name: "country", Kind: literecord.BelongsTo, Target: "countries"},
			{Name: "members", Kind: literecord.HasMany, Target: "generic_classes"},
		},
	}
}

func genericClassSchema() *literecord.Schema {
	return &literecord.Schema{
		Name:    "generic_classes",
		Table:   "generic_classes",
		ID:      []string{"id"},
		Visible: []string{"cpf", "name", "role", "id", "enrollment", "organization_id"},
		Hidden:  []string{"created_at", "updated_at", "deleted_at", "restored_at"},
		Relations: []literecord.Relation{
			{Name: "organization", Kind: literecord.BelongsTo, Target: "organizations"},
			{Name: "tags", Kind: literecord.BelongsToMany, Target: "tags"},
		},
		Constraints: []string{"cpf", "organization_id", "enrollment", "role"},
		Timestamps:  true,
		SoftDelete:  true,
		Rules: map[string][]string{
			"cpf":  {"presence", "length.max=11"},
			"name": {"presence"},
		},
		SearchColumns: []string{"name", "enrollment"},
	}
}

func tagSchema() *literecord.Schema {
	return &literecord.Schema{
		Name:    "tags",
		Table:   "tags",
		ID:      []string{"id"},
		Visible: []string{"id", "name"},
	}
}

func membershipSchema() *literecord.Schema {
	return &literecord.Schema{
		Name:    "memberships",
		Table:   "memberships",
		ID:      []string{"user_id", "group_id"},
		Visible: []string{"user_id", "group_id", "role"},
	}
}

func eventSchema() *literecord.Schema {
	return &literecord.Schema{
		Name:         "events",
		Table:        "events",
		ID:           []string{"id"},
		Visible:      []string{"id", "title", "period_start", "period_end"},
		KeyGenerator: literecord.KeyGeneratorUUID,
	}
}

// fixtureRegistry registers every fixture schema.
func fixtureRegistry(t *testing.T) *literecord.Registry {
	t.Helper()
	reg := literecord.NewRegistry()
	require.NoError(t, reg.Register(
		countrySchema(),
		organizationSchema(),
		genericClassSchema(),
		tagSchema(),
		membershipSchema(),
		eventSchema(),
	))
	return reg
}

// lookup returns a registered fixture schema.
func lookup(t *testing.T, reg *literecord.Registry, name string) *literecord.Schema {
	t.Helper()
	s, ok := reg.Lookup(name)
	require.True(t, ok, "schema %s not registered", name)
	return s
}

// tickingClock returns a clock advancing one second per call, starting at
// a fixed UTC instant.
func tickingClock() func() time.Time {
	var ticks atomic.Int64
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
}

// stores builds a Store per fixture schema over db.
func stores(t *testing.T, db *sqlx.DB, opts ...literecord.Option) map[string]*literecord.Store {
	t.Helper()
	reg := fixtureRegistry(t)
	compiler := literecord.NewCompiler(reg)
	out := map[string]*literecord.Store{}
	for _, name := range reg.Names() {
		out[name] = literecord.NewStore(db, compiler, lookup(t, reg, name), opts...)
	}
	return out
}

// seed inserts rows directly, bypassing validation and timestamps.
func seed(t *testing.T, db *sqlx.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.ExecContext(t.Context(), stmt)
		require.NoError(t, err, "seeding: %s", stmt)
	}
}
