package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var envReplacer = strings.NewReplacer(".", "_")

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
})

// SchemaError lists every setting that failed schema validation, as
// "field: problem" pairs sorted by field.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "config schema validation failed: " + strings.Join(e.Problems, "; ")
}

// ValidateSettings checks merged raw settings (file, env and defaults) before
// they are decoded into Config.
func ValidateSettings(settings map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("load config schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(settings))
	if err != nil {
		return fmt.Errorf("validate config schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.Field()+": "+re.Description())
	}
	sort.Strings(problems)
	return &SchemaError{Problems: problems}
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
