// Package serialization encodes job parameters, execution contexts and failure lists
// for persistence. Parameters are stored with their type so that a reloaded instance
// keeps the same identity hash.
package serialization

import (
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const module = "serialization"

// Parameter type tags used in the persisted envelope.
const (
	TypeString = "STRING"
	TypeLong   = "LONG"
	TypeDouble = "DOUBLE"
	TypeDate   = "DATE"
	TypeBool   = "BOOLEAN"
)

type typedValue struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

var (
	maskMu     sync.RWMutex
	maskedKeys = map[string]struct{}{}
)

// SetMaskedParameterKeys replaces the set of parameter names whose values are masked
// when parameters are rendered or persisted.
func SetMaskedParameterKeys(keys []string) {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	maskMu.Lock()
	maskedKeys = m
	maskMu.Unlock()
}

// IsMaskedParameterKey reports whether key is configured as sensitive.
func IsMaskedParameterKey(key string) bool {
	maskMu.RLock()
	defer maskMu.RUnlock()
	_, ok := maskedKeys[key]
	return ok
}

// GetMaskedJobParametersMap returns a copy of params with sensitive values masked.
func GetMaskedJobParametersMap(params map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(params))
	for k, v := range params {
		if IsMaskedParameterKey(k) {
			masked[k] = "********"
			continue
		}
		masked[k] = v
	}
	return masked
}

// Marshal encodes v with the engine's JSON configuration.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data with the engine's JSON configuration.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// MarshalJobParameters encodes params as a typed envelope, masking sensitive keys.
func MarshalJobParameters(params map[string]interface{}) ([]byte, error) {
	envelope := make(map[string]typedValue, len(params))
	for k, v := range GetMaskedJobParametersMap(params) {
		tv, err := toTypedValue(v)
		if err != nil {
			return nil, exception.NewBatchError(module, fmt.Sprintf("Unsupported type for job parameter '%s'", k), err, false, false)
		}
		envelope[k] = tv
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, exception.NewBatchError(module, "Failed to serialize JobParameters", err, false, false)
	}
	return data, nil
}

// UnmarshalJobParameters decodes a typed envelope produced by MarshalJobParameters.
func UnmarshalJobParameters(data []byte) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if len(data) == 0 || string(data) == "null" {
		return params, nil
	}
	var envelope map[string]typedValue
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, exception.NewBatchError(module, "Failed to deserialize JobParameters", err, false, false)
	}
	for k, tv := range envelope {
		v, err := fromTypedValue(tv)
		if err != nil {
			return nil, exception.NewBatchError(module, fmt.Sprintf("Invalid value for job parameter '%s'", k), err, false, false)
		}
		params[k] = v
	}
	return params, nil
}

func toTypedValue(v interface{}) (typedValue, error) {
	switch x := v.(type) {
	case string:
		return typedValue{Type: TypeString, Value: x}, nil
	case int:
		return typedValue{Type: TypeLong, Value: int64(x)}, nil
	case int32:
		return typedValue{Type: TypeLong, Value: int64(x)}, nil
	case int64:
		return typedValue{Type: TypeLong, Value: x}, nil
	case float32:
		return typedValue{Type: TypeDouble, Value: float64(x)}, nil
	case float64:
		return typedValue{Type: TypeDouble, Value: x}, nil
	case bool:
		return typedValue{Type: TypeBool, Value: x}, nil
	case time.Time:
		return typedValue{Type: TypeDate, Value: x.UTC().Format(time.RFC3339Nano)}, nil
	default:
		return typedValue{}, fmt.Errorf("type %T", v)
	}
}

func fromTypedValue(tv typedValue) (interface{}, error) {
	switch tv.Type {
	case TypeString:
		s, ok := tv.Value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", tv.Value)
		}
		return s, nil
	case TypeLong:
		f, ok := tv.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", tv.Value)
		}
		return int64(f), nil
	case TypeDouble:
		f, ok := tv.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", tv.Value)
		}
		return f, nil
	case TypeBool:
		b, ok := tv.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", tv.Value)
		}
		return b, nil
	case TypeDate:
		s, ok := tv.Value.(string)
		if !ok {
			return nil, fmt.Errorf("expected RFC3339 string, got %T", tv.Value)
		}
		return time.Parse(time.RFC3339Nano, s)
	default:
		return nil, fmt.Errorf("unknown parameter type %q", tv.Type)
	}
}

// MarshalExecutionContext serializes an ExecutionContext map.
func MarshalExecutionContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return nil, exception.NewBatchError(module, "Failed to serialize ExecutionContext", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext deserializes an ExecutionContext map. Numbers decode as float64.
func UnmarshalExecutionContext(data []byte) (map[string]interface{}, error) {
	ctx := make(map[string]interface{})
	if len(data) == 0 || string(data) == "null" {
		return ctx, nil
	}
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, exception.NewBatchError(module, "Failed to deserialize ExecutionContext", err, false, false)
	}
	return ctx, nil
}

// MarshalFailures serializes a list of failure messages.
func MarshalFailures(failures []string) ([]byte, error) {
	if failures == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return nil, exception.NewBatchError(module, "Failed to serialize Failures", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures deserializes a list of failure messages.
func UnmarshalFailures(data []byte) ([]string, error) {
	msgs := []string{}
	if len(data) == 0 || string(data) == "null" {
		return msgs, nil
	}
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, exception.NewBatchError(module, "Failed to deserialize Failures", err, false, false)
	}
	return msgs, nil
}
