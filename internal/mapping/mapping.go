// Package mapping models source-to-index mapping configurations: which
// source columns feed which index fields, the target field types, and any
// transformation rules applied along the way.
package mapping

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldMapping binds one source column to one target index field.
type FieldMapping struct {
	Source string `json:"source_field"`
	Target string `json:"target_field"`
	ESType string `json:"es_type"`
}

// TransformationRule describes a value transformation applied to a field
// before indexing.
type TransformationRule struct {
	Field      string `json:"field"`
	Type       string `json:"type"`
	Expression string `json:"expression,omitempty"`
}

// Configuration is a named migration mapping from a source query to a target
// index.
type Configuration struct {
	Name              string               `json:"name"`
	SourceQuery       string               `json:"source_query"`
	TargetIndex       string               `json:"target_index"`
	IncrementalColumn string               `json:"incremental_column,omitempty"`
	ScheduleInterval  int                  `json:"schedule_interval,omitempty"`
	Fields            []FieldMapping       `json:"field_mappings"`
	Transformations   []TransformationRule `json:"transformation_rules,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// esTypes is the set of index field types a mapping may target.
var esTypes = map[string]struct{}{
	"text": {}, "keyword": {}, "long": {}, "integer": {}, "short": {},
	"byte": {}, "double": {}, "float": {}, "date": {}, "boolean": {},
	"binary": {}, "ip": {}, "geo_point": {}, "object": {}, "nested": {},
}

// oracleToES maps Oracle column types to their default index field types.
var oracleToES = map[string]string{
	"NUMBER":                         "long",
	"FLOAT":                          "float",
	"BINARY_FLOAT":                   "float",
	"BINARY_DOUBLE":                  "double",
	"VARCHAR2":                       "text",
	"CHAR":                           "keyword",
	"NVARCHAR2":                      "text",
	"NCHAR":                          "keyword",
	"CLOB":                           "text",
	"NCLOB":                          "text",
	"DATE":                           "date",
	"TIMESTAMP":                      "date",
	"TIMESTAMP WITH TIME ZONE":       "date",
	"TIMESTAMP WITH LOCAL TIME ZONE": "date",
	"BLOB":                           "binary",
	"RAW":                            "binary",
	"LONG RAW":                       "binary",
}

// SuggestESType returns the default index field type for an Oracle column
// type. NUMBER columns with a scale (a comma in the type declaration) map to
// double, other NUMBER variants to long. Unknown types fall back to keyword.
func SuggestESType(oracleType string) string {
	t := strings.ToUpper(strings.TrimSpace(oracleType))
	if strings.HasPrefix(t, "NUMBER") {
		if strings.Contains(t, ",") {
			return "double"
		}
		return "long"
	}
	if esType, ok := oracleToES[t]; ok {
		return esType
	}
	return "keyword"
}

// ValidationResult reports the outcome of validating a configuration.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks a configuration for structural problems. Errors make the
// configuration unusable; warnings flag likely mistakes that do not block a
// run.
func (c Configuration) Validate() ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	if strings.TrimSpace(c.Name) == "" {
		res.Errors = append(res.Errors, "name is required")
	}
	if strings.TrimSpace(c.SourceQuery) == "" {
		res.Errors = append(res.Errors, "source query is required")
	}
	if strings.TrimSpace(c.TargetIndex) == "" {
		res.Errors = append(res.Errors, "target index is required")
	} else if c.TargetIndex != strings.ToLower(c.TargetIndex) {
		res.Errors = append(res.Errors, "target index must be lowercase")
	}
	if len(c.Fields) == 0 {
		res.Warnings = append(res.Warnings, "no field mappings defined")
	}

	targets := make(map[string]struct{}, len(c.Fields))
	for i, f := range c.Fields {
		if strings.TrimSpace(f.Source) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("field mapping %d: source field is required", i))
		}
		if strings.TrimSpace(f.Target) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("field mapping %d: target field is required", i))
		}
		if _, ok := esTypes[f.ESType]; !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("field mapping %d: unknown es type %q", i, f.ESType))
		}
		if _, dup := targets[f.Target]; dup && f.Target != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("target field %q is mapped more than once", f.Target))
		}
		targets[f.Target] = struct{}{}
	}

	for i, rule := range c.Transformations {
		if strings.TrimSpace(rule.Field) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("transformation rule %d: field is required", i))
			continue
		}
		if _, ok := targets[rule.Field]; !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("transformation rule %d targets unmapped field %q", i, rule.Field))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// exportEnvelope is the wire form for Export and Import.
type exportEnvelope struct {
	Name            string               `json:"name"`
	SourceQuery     string               `json:"source_query"`
	TargetIndex     string               `json:"target_index"`
	Fields          []FieldMapping       `json:"field_mappings"`
	Transformations []TransformationRule `json:"transformation_rules,omitempty"`
	ExportedAt      time.Time            `json:"exported_at"`
}

// Export serializes the configuration for archival or transfer.
func (c Configuration) Export(at time.Time) ([]byte, error) {
	env := exportEnvelope{
		Name:            c.Name,
		SourceQuery:     c.SourceQuery,
		TargetIndex:     c.TargetIndex,
		Fields:          c.Fields,
		Transformations: c.Transformations,
		ExportedAt:      at,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal configuration export: %w", err)
	}
	return data, nil
}

// Import parses an exported configuration and validates it before returning.
func Import(data []byte, now time.Time) (Configuration, error) {
	var env exportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Configuration{}, fmt.Errorf("parse configuration import: %w", err)
	}
	cfg := Configuration{
		Name:            env.Name,
		SourceQuery:     env.SourceQuery,
		TargetIndex:     env.TargetIndex,
		Fields:          env.Fields,
		Transformations: env.Transformations,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if res := cfg.Validate(); !res.Valid {
		return Configuration{}, fmt.Errorf("imported configuration is invalid: %s", strings.Join(res.Errors, "; "))
	}
	return cfg, nil
}

// SuggestFields produces a field mapping per source column using the default
// Oracle to index type table. Target names are lowercased column names.
func SuggestFields(columns map[string]string) []FieldMapping {
	fields := make([]FieldMapping, 0, len(columns))
	for column, oracleType := range columns {
		fields = append(fields, FieldMapping{
			Source: column,
			Target: strings.ToLower(column),
			ESType: SuggestESType(oracleType),
		})
	}
	return fields
}
