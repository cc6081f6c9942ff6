package grapher

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/terracehq/terrace/pkg/catalog"
)

// Client writes grapher datasets into the presentation database. The
// database itself is external; this is strictly a loading client. Schema
// DDL goes through database/sql and golang-migrate, bulk loads go through
// a pgx pool for CopyFrom.
type Client struct {
	db   *sql.DB
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewClient connects to the grapher database and brings its schema up to
// date from migrationsDir.
func NewClient(ctx context.Context, dsn, migrationsDir string, log *logrus.Logger) (*Client, error) {
	if dsn == "" {
		return nil, fmt.Errorf("grapher: DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("grapher: open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("grapher: ping database: %w", err)
	}

	if err := runMigrations(db, migrationsDir); err != nil {
		db.Close()
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("grapher: open pgx pool: %w", err)
	}
	return &Client{db: db, pool: pool, log: log}, nil
}

func runMigrations(db *sql.DB, migrationsDir string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("grapher: create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("grapher: create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("grapher: migration failed: %w", err)
	}
	return nil
}

// Close releases both connection pools.
func (c *Client) Close() {
	c.pool.Close()
	_ = c.db.Close()
}

// SyncDataset pushes every table of a grapher-channel dataset into the
// database: the dataset row and its variables are upserted, entities are
// resolved by name, and data values are bulk-loaded after a per-variable
// delete. Variables that vanished from the dataset are removed.
func (c *Client) SyncDataset(ctx context.Context, ds *catalog.Dataset) error {
	datasetID, err := c.upsertDataset(ctx, ds.Meta)
	if err != nil {
		return err
	}

	kept := map[string]bool{}
	for _, name := range ds.TableNames() {
		t, _ := ds.Table(name)
		entityCol := "entity"
		if !t.HasColumn(entityCol) && t.HasColumn("country") {
			entityCol = "country"
		}
		long, vars, err := Reshape(t, entityCol, "year")
		if err != nil {
			return fmt.Errorf("grapher: dataset %s: %w", ds.Meta.ShortName, err)
		}
		varIDs := map[string]int64{}
		for _, v := range vars {
			id, err := c.upsertVariable(ctx, datasetID, v)
			if err != nil {
				return err
			}
			varIDs[v.ShortName] = id
			kept[v.ShortName] = true
		}
		entityIDs, err := c.resolveEntities(ctx, long)
		if err != nil {
			return err
		}
		if err := c.loadValues(ctx, long, varIDs, entityIDs); err != nil {
			return err
		}
	}
	return c.pruneVariables(ctx, datasetID, kept)
}

func (c *Client) upsertDataset(ctx context.Context, meta catalog.DatasetMeta) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO datasets (catalog_path, namespace, short_name, version, title, description, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (catalog_path) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			is_public = EXCLUDED.is_public,
			updated_at = NOW()
		RETURNING id
	`, meta.URI(), meta.Namespace, meta.ShortName, meta.Version, meta.Title, meta.Description, meta.IsPublic).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("grapher: upsert dataset %s: %w", meta.URI(), err)
	}
	return id, nil
}

func (c *Client) upsertVariable(ctx context.Context, datasetID int64, v Variable) (int64, error) {
	var display []byte
	if v.Meta.Display != nil {
		var err error
		display, err = json.Marshal(v.Meta.Display)
		if err != nil {
			return 0, fmt.Errorf("grapher: marshal display for %s: %w", v.ShortName, err)
		}
	}
	var id int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO variables (dataset_id, short_name, title, description, unit, short_unit, display)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dataset_id, short_name) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			unit = EXCLUDED.unit,
			short_unit = EXCLUDED.short_unit,
			display = EXCLUDED.display,
			updated_at = NOW()
		RETURNING id
	`, datasetID, v.ShortName, v.Meta.Title, v.Meta.Description, v.Meta.Unit, v.Meta.ShortUnit, display).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("grapher: upsert variable %s: %w", v.ShortName, err)
	}
	return id, nil
}

// resolveEntities upserts every distinct entity name in the long table
// and returns name to id.
func (c *Client) resolveEntities(ctx context.Context, long *catalog.Table) (map[string]int64, error) {
	entities := long.MustColumn("entity")
	seen := map[string]bool{}
	out := map[string]int64{}
	for r := 0; r < long.Len(); r++ {
		name, ok := entities.String(r)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		var id int64
		err := c.db.QueryRowContext(ctx, `
			INSERT INTO entities (name)
			VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, name).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("grapher: upsert entity %q: %w", name, err)
		}
		out[name] = id
	}
	return out, nil
}

// loadValues replaces the data of every variable present in the long
// table: delete by variable, then a single CopyFrom.
func (c *Client) loadValues(ctx context.Context, long *catalog.Table, varIDs, entityIDs map[string]int64) error {
	ids := make([]int64, 0, len(varIDs))
	for _, id := range varIDs {
		ids = append(ids, id)
	}
	if _, err := c.pool.Exec(ctx, `DELETE FROM data_values WHERE variable_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("grapher: clear data values: %w", err)
	}

	variables := long.MustColumn("variable")
	entities := long.MustColumn("entity")
	years := long.MustColumn("year")
	values := long.MustColumn("value")

	rows := make([][]any, 0, long.Len())
	for r := 0; r < long.Len(); r++ {
		varName, _ := variables.String(r)
		entityName, _ := entities.String(r)
		year, ok := years.Int(r)
		if !ok {
			return fmt.Errorf("grapher: row %d has no year", r)
		}
		value, ok := values.Float(r)
		if !ok {
			continue
		}
		rows = append(rows, []any{varIDs[varName], entityIDs[entityName], year, value})
	}

	n, err := c.pool.CopyFrom(ctx,
		pgx.Identifier{"data_values"},
		[]string{"variable_id", "entity_id", "year", "value"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("grapher: copy data values: %w", err)
	}
	c.log.WithFields(logrus.Fields{"rows": n}).Info("loaded data values")
	return nil
}

// pruneVariables deletes variables of the dataset that the new build no
// longer produces, along with their values.
func (c *Client) pruneVariables(ctx context.Context, datasetID int64, kept map[string]bool) error {
	names := make([]string, 0, len(kept))
	for name := range kept {
		names = append(names, name)
	}
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM variables
		WHERE dataset_id = $1 AND NOT (short_name = ANY($2))
	`, datasetID, pq.Array(names))
	if err != nil {
		return fmt.Errorf("grapher: prune variables: %w", err)
	}
	return nil
}
