package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/serialization"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string              `name:"envFilePath" optional:"true"`
	Expander       EnvironmentExpander `optional:"true"`
}

// LoadConfig builds the configuration. Sources in increasing precedence:
// defaults from NewConfig, the YAML document (after placeholder expansion), then
// environment variables named after the yaml path, e.g. SURFIN_BATCH_JOB_NAME or
// SURFIN_DATABASE_METADATA_HOST. A .env file is loaded first when present.
func LoadConfig(envFilePath string, embedded EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	cfg := NewConfig()
	expanded, err := expander.Expand(embedded)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment placeholders", err, false, false)
	}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal config", err, false, false)
	}
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}
	cfg.EmbeddedConfig = embedded

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigProvider loads the configuration and applies its logging and masking settings.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	logger.SetFormat(cfg.Surfin.System.Logging.Format)
	logger.SetLogLevel(cfg.Surfin.System.Logging.Level)
	serialization.SetMaskedParameterKeys(cfg.Surfin.Security.MaskedParameterKeys)
	logger.Debugf("Configuration loaded (job: '%s', repository: %s).", cfg.Surfin.Batch.JobName, cfg.Surfin.Batch.Repository.Type)
	return cfg, nil
}

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	b := cfg.Surfin.Batch
	if b.ChunkSize <= 0 {
		return exception.NewConfigurationError(moduleName, "batch.chunk_size must be positive, got %d", b.ChunkSize)
	}
	if b.Retry.MaxAttempts < 1 {
		return exception.NewConfigurationError(moduleName, "batch.retry.max_attempts must be at least 1, got %d", b.Retry.MaxAttempts)
	}
	switch b.Repository.Type {
	case RepositoryTypeInMemory:
	case RepositoryTypeSQL:
		if _, ok := cfg.Surfin.Database[b.Repository.DBRef]; !ok {
			return exception.NewConfigurationError(moduleName, "batch.repository.db_ref '%s' has no database configuration", b.Repository.DBRef)
		}
	default:
		return exception.NewConfigurationError(moduleName, "unknown batch.repository.type '%s'", b.Repository.Type)
	}
	for _, name := range b.Retry.RetryableExceptions {
		if !exception.IsErrorTypeRegistered(name) {
			return exception.NewConfigurationError(moduleName, "batch.retry references unknown exception type '%s'", name)
		}
	}
	return nil
}

// loadStructFromEnv overrides struct fields from environment variables named after
// their yaml tags joined by '_' and upper-cased.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch {
		case field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}):
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Map && field.Type().Elem().Kind() == reflect.Struct:
			if err := loadMapOfStructsFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapOfStructsFromEnv fills map[string]struct fields. For the prefix
// SURFIN_DATABASE_, SURFIN_DATABASE_METADATA_HOST=db sets Host of the "metadata" entry.
func loadMapOfStructsFromEnv(mapField reflect.Value, prefix string) error {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	elemType := mapField.Type().Elem()

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		keyAndField, envValue, ok := strings.Cut(strings.TrimPrefix(env, prefix), "=")
		if !ok {
			continue
		}
		mapKeyPart, structFieldName, ok := strings.Cut(keyAndField, "_")
		if !ok {
			continue
		}
		mapKey := reflect.ValueOf(strings.ToLower(mapKeyPart))

		elem := reflect.New(elemType).Elem()
		if existing := mapField.MapIndex(mapKey); existing.IsValid() {
			elem.Set(existing)
		}
		if err := setStructFieldFromEnv(elem, structFieldName, envValue); err != nil {
			return err
		}
		mapField.SetMapIndex(mapKey, elem)
	}
	return nil
}

func setStructFieldFromEnv(structVal reflect.Value, fieldName string, value string) error {
	typ := structVal.Type()
	for i := 0; i < typ.NumField(); i++ {
		yamlTag := strings.Split(typ.Field(i).Tag.Get("yaml"), ",")[0]
		if yamlTag != "" && strings.EqualFold(yamlTag, fieldName) {
			return setField(structVal.Field(i), value)
		}
	}
	return nil
}

// setField assigns a string value to a string, bool, integer, float, duration or
// comma-separated string slice field.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
