package strategy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is the current strategy genome schema version.
const SchemaVersion = "1.0.0"

// MigrationFunc upgrades a configuration from an older schema in place.
type MigrationFunc func(*Configuration) error

// migrations maps source version constraints to migration functions. Empty
// until a schema break happens; the machinery is kept so imports of older
// exports keep working when it does.
var migrations = map[string]MigrationFunc{}

// Migrate upgrades a configuration to the current schema version.
func Migrate(cfg *Configuration) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if cfg.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseVersion(cfg.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", cfg.SchemaVersion, err)
	}

	target := semver.MustParse(SchemaVersion)
	if current.GreaterThan(target) {
		return fmt.Errorf("schema version %s is newer than supported version %s",
			cfg.SchemaVersion, SchemaVersion)
	}

	for version, migrate := range migrations {
		migrationVersion, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if current.LessThan(migrationVersion) {
			if err := migrate(cfg); err != nil {
				return fmt.Errorf("migration from %s failed: %w", version, err)
			}
		}
	}

	cfg.SchemaVersion = SchemaVersion
	return nil
}

// parseVersion tolerates short version strings like "1.0".
func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err == nil {
		return parsed, nil
	}
	return semver.NewVersion(v + ".0")
}
