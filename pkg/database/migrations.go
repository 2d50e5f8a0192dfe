package database

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embedded embed.FS

const schemaTable = `
CREATE TABLE IF NOT EXISTS schema_versions (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Migration is one NNN_name.sql script
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies schema scripts in version order and refuses scripts that
// changed after they were applied
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// Migrate applies the schema shipped with the binary
func (m *Migrator) Migrate() error {
	return m.RunMigrations(embedded, "migrations")
}

// AppliedVersions maps every applied version to its recorded checksum
func (m *Migrator) AppliedVersions() (map[int]string, error) {
	if _, err := m.db.Exec(schemaTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_versions: %w", err)
	}

	rows, err := m.db.Query("SELECT version, checksum FROM schema_versions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// Current returns the highest applied version, or 0 on an empty database
func (m *Migrator) Current() (int, error) {
	applied, err := m.AppliedVersions()
	if err != nil {
		return 0, err
	}
	current := 0
	for v := range applied {
		current = max(current, v)
	}
	return current, nil
}

// RunMigrations applies every pending script under dir in fsys
func (m *Migrator) RunMigrations(fsys fs.FS, dir string) error {
	migrations, err := LoadMigrations(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.AppliedVersions()
	if err != nil {
		return err
	}

	pending := 0
	for _, mig := range migrations {
		sum, done := applied[mig.Version]
		if done {
			if sum != mig.Checksum {
				return fmt.Errorf("migration %d (%s) changed after it was applied", mig.Version, mig.Name)
			}
			continue
		}

		m.logger.Info("Applying migration",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name))
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %d: %w", mig.Version, err)
		}
		pending++
	}

	m.logger.Info("Schema up to date",
		zap.Int("applied", pending),
		zap.Int("total", len(migrations)))
	return nil
}

func (m *Migrator) apply(mig Migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO schema_versions (version, name, checksum) VALUES (?, ?, ?)",
			mig.Version, mig.Name, mig.Checksum,
		)
		return err
	})
}

// LoadMigrations reads NNN_name.sql files directly under dir, ordered by version
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}

		prefix, name, _ := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename format: %s", e.Name())
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(content)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", migrations[i].Version)
		}
	}
	return migrations, nil
}
