package strategy

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/ajitpratap0/mtfbacktest/pkg/market"
)

// SchemaVersion is the profile schema written by Export.
const SchemaVersion = "1.1"

// SupportedSchemaVersions lists the profile schema versions Import accepts.
var SupportedSchemaVersions = []string{"1.0", "1.1"}

// MigrationFunc upgrades a profile to the version it is registered under.
type MigrationFunc func(*Profile) error

// migrations maps a target version to the function that upgrades a profile
// from the previous version.
var migrations = map[string]MigrationFunc{
	"1.1": migrateTo11,
}

// migrateTo11 canonicalizes timeframe parameters; 1.0 profiles stored them
// as typed by the user ("1h", "5min").
func migrateTo11(p *Profile) error {
	for _, name := range []string{ParamPrimaryTimeframe, ParamHigherTimeframe} {
		raw, ok := p.Params[name]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%s must be a string, got %T", name, raw)
		}
		tf, err := market.ParseTimeframe(s)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		p.Params[name] = tf.String()
	}
	return nil
}

func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("invalid version: %s", v)
	}
	return parsed, nil
}

// Migrate upgrades a profile to SchemaVersion, applying every registered
// migration newer than the profile's version in ascending order.
func Migrate(p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if p.Metadata.SchemaVersion == "" {
		p.Metadata.SchemaVersion = SupportedSchemaVersions[0]
	}
	if p.Metadata.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseVersion(p.Metadata.SchemaVersion)
	if err != nil {
		return err
	}
	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return err
	}
	if current.GreaterThan(target) {
		return fmt.Errorf("profile schema version %s is newer than supported version %s",
			p.Metadata.SchemaVersion, SchemaVersion)
	}
	if current.Major() != target.Major() {
		return fmt.Errorf("no migration path from version %s to %s", p.Metadata.SchemaVersion, SchemaVersion)
	}

	path, err := GetMigrationPath(p.Metadata.SchemaVersion, SchemaVersion)
	if err != nil {
		return err
	}
	if p.Params == nil {
		p.Params = ParameterSet{}
	}
	for _, version := range path {
		if err := migrations[version](p); err != nil {
			return fmt.Errorf("migration to %s failed: %w", version, err)
		}
	}

	p.Metadata.SchemaVersion = SchemaVersion
	return nil
}

// GetMigrationPath returns the migration versions in (from, to], ascending.
func GetMigrationPath(from, to string) ([]string, error) {
	fromVersion, err := semver.NewVersion(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from version: %s", from)
	}
	toVersion, err := semver.NewVersion(to)
	if err != nil {
		return nil, fmt.Errorf("invalid to version: %s", to)
	}

	var versions semver.Collection
	for v := range migrations {
		mv, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if mv.GreaterThan(fromVersion) && !mv.GreaterThan(toVersion) {
			versions = append(versions, mv)
		}
	}
	sort.Sort(versions)

	path := make([]string, len(versions))
	for i, v := range versions {
		path[i] = v.Original()
	}
	return path, nil
}

// CompareVersions compares two version strings
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsVersionSupported reports whether version matches a supported
// major.minor.
func IsVersionSupported(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	for _, supported := range SupportedSchemaVersions {
		sv, err := semver.NewVersion(supported)
		if err != nil {
			continue
		}
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}
	return false
}
