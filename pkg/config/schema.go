package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/pkgscout-config-v1.0.0.json
var configSchemaV1 []byte

// ErrInvalidConfig is returned when a config file does not match its schema.
var ErrInvalidConfig = errors.New("configuration validation failed")

// CurrentSchemaVersion is used when a file does not declare $schema.
const CurrentSchemaVersion = "1.0.0"

// SchemaVersion represents a configuration schema version
type SchemaVersion struct {
	Major int
	Minor int
	Patch int
}

// String returns the string representation of the version
func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseSchemaVersion parses a version string into SchemaVersion
func ParseSchemaVersion(version string) (SchemaVersion, error) {
	version = strings.TrimPrefix(version, "v")
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return SchemaVersion{}, fmt.Errorf("invalid version format: %s", version)
	}

	var v SchemaVersion
	_, err := fmt.Sscanf(version, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("failed to parse version: %v", err)
	}

	return v, nil
}

// ValidateConfig validates YAML or JSON configuration against the schema it
// declares (or the current one).
func ValidateConfig(configData []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(configData, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if doc == nil {
		return nil
	}

	version, err := DetectSchemaVersion(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	schemaLoader, err := getSchemaLoader(version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %v", err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("%w:\n%s", ErrInvalidConfig, strings.Join(problems, "\n"))
	}

	return nil
}

// getSchemaLoader returns the appropriate schema loader for the given version
func getSchemaLoader(version string) (gojsonschema.JSONLoader, error) {
	v, err := ParseSchemaVersion(version)
	if err != nil {
		return nil, err
	}
	switch v.Major {
	case 1:
		return gojsonschema.NewBytesLoader(configSchemaV1), nil
	default:
		return nil, fmt.Errorf("unsupported schema version: %s", version)
	}
}

// DetectSchemaVersion reads the version from a $schema URL ending in /vX.Y.Z.
func DetectSchemaVersion(doc map[string]interface{}) (string, error) {
	schema, ok := doc["$schema"]
	if !ok {
		return CurrentSchemaVersion, nil
	}
	schemaStr, ok := schema.(string)
	if !ok {
		return "", fmt.Errorf("$schema must be a string")
	}

	idx := strings.LastIndex(schemaStr, "/v")
	if idx < 0 {
		return CurrentSchemaVersion, nil
	}
	return strings.TrimSuffix(schemaStr[idx+2:], ".json"), nil
}
