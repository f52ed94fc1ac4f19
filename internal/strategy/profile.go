package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ExportFormat specifies the output format for profile export
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

// ProfileMetadata identifies a saved parameter profile.
type ProfileMetadata struct {
	ID            string    `json:"id" yaml:"id"`
	SchemaVersion string    `json:"schema_version" yaml:"schema_version"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	Source        string    `json:"source,omitempty" yaml:"source,omitempty"` // "optimization", "user", "import"
	Tags          []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// Profile is a named parameter set for one strategy, usually the best record
// of an optimization run.
type Profile struct {
	Metadata ProfileMetadata `json:"metadata" yaml:"metadata"`
	Strategy string          `json:"strategy" yaml:"strategy"`
	Asset    string          `json:"asset,omitempty" yaml:"asset,omitempty"`
	Params   ParameterSet    `json:"params" yaml:"params"`
	Metric   string          `json:"metric,omitempty" yaml:"metric,omitempty"`
	Value    float64         `json:"value,omitempty" yaml:"value,omitempty"`
}

// NewProfile creates a profile at the current schema version.
func NewProfile(name, strategy string, params ParameterSet) *Profile {
	now := time.Now().UTC()
	return &Profile{
		Metadata: ProfileMetadata{
			ID:            uuid.New().String(),
			SchemaVersion: SchemaVersion,
			Name:          name,
			Source:        "user",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Strategy: strategy,
		Params:   params.Clone(),
	}
}

// Validate checks the metadata and that the parameters build a valid config
// for a registered strategy.
func (p *Profile) Validate(registry *Registry) error {
	var errs ValidationErrors

	if p.Metadata.SchemaVersion == "" {
		errs = append(errs, ValidationError{Field: "metadata.schema_version", Message: "schema version is required"})
	} else if !IsVersionSupported(p.Metadata.SchemaVersion) {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: fmt.Sprintf("unsupported schema version %s, supported: %v", p.Metadata.SchemaVersion, SupportedSchemaVersions),
		})
	}
	if p.Metadata.Name == "" {
		errs = append(errs, ValidationError{Field: "metadata.name", Message: "profile name is required"})
	}

	def, ok := registry.Get(p.Strategy)
	switch {
	case p.Strategy == "":
		errs = append(errs, ValidationError{Field: "strategy", Message: "strategy is required"})
	case !ok:
		errs = append(errs, ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q, known: %v", p.Strategy, registry.Names())})
	default:
		if _, err := NewConfig(def, p.Params); err != nil {
			errs = append(errs, ValidationError{Field: "params", Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Export serializes a profile.
func Export(p *Profile, format ExportFormat) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	out := *p
	out.Metadata.UpdatedAt = time.Now().UTC()
	if out.Metadata.ID == "" {
		out.Metadata.ID = uuid.New().String()
	}
	if out.Metadata.SchemaVersion == "" {
		out.Metadata.SchemaVersion = SchemaVersion
	}

	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "# Parameter profile %s (schema %s)\n", out.Metadata.Name, out.Metadata.SchemaVersion)
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(&out); err != nil {
			return nil, fmt.Errorf("failed to encode profile to YAML: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("failed to close YAML encoder: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(&out, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode profile to JSON: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportToFile writes a profile, choosing the format from the extension.
func ExportToFile(p *Profile, path string) error {
	format := FormatYAML
	if filepath.Ext(path) == ".json" {
		format = FormatJSON
	}

	data, err := Export(p, format)
	if err != nil {
		return fmt.Errorf("failed to export profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

// Import parses a YAML or JSON profile, migrates it to the current schema
// version and validates it against registry.
func Import(data []byte, registry *Registry) (*Profile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty profile data")
	}

	var p Profile
	if isJSON(data) {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse profile as JSON: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile as YAML: %w", err)
	}

	if err := Migrate(&p); err != nil {
		return nil, err
	}
	if p.Metadata.Source == "" {
		p.Metadata.Source = "import"
	}
	if err := p.Validate(registry); err != nil {
		return nil, fmt.Errorf("profile validation failed: %w", err)
	}
	return &p, nil
}

// ImportFromFile imports a profile from a file
func ImportFromFile(path string, registry *Registry) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	p, err := Import(data, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to import profile from %s: %w", path, err)
	}
	return p, nil
}

func isJSON(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b == '{'
	}
	return false
}
