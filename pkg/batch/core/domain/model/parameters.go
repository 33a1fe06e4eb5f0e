package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/serialization"
)

// DateLayout is the layout accepted for date parameters given as plain dates.
const DateLayout = "2006-01-02"

// JobParameters holds the typed parameters of a run request. Together with the job
// name they identify a JobInstance. Supported value types are string, int64, float64,
// bool and time.Time; int values are normalised to int64 on Put.
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters creates an empty parameter set.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// JobParametersOf builds a parameter set from a plain map.
func JobParametersOf(values map[string]interface{}) JobParameters {
	jp := NewJobParameters()
	for k, v := range values {
		jp.Put(k, v)
	}
	return jp
}

// Put sets a parameter.
func (jp JobParameters) Put(key string, value interface{}) {
	switch v := value.(type) {
	case int:
		jp.Params[key] = int64(v)
	case int32:
		jp.Params[key] = int64(v)
	case float32:
		jp.Params[key] = float64(v)
	default:
		jp.Params[key] = value
	}
}

// Get returns the raw value of key, or nil.
func (jp JobParameters) Get(key string) interface{} {
	return jp.Params[key]
}

// Len returns the number of parameters.
func (jp JobParameters) Len() int {
	return len(jp.Params)
}

// GetString returns key as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	s, ok := jp.Params[key].(string)
	return s, ok
}

// GetInt returns key as an int64.
func (jp JobParameters) GetInt(key string) (int64, bool) {
	switch v := jp.Params[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetFloat returns key as a float64.
func (jp JobParameters) GetFloat(key string) (float64, bool) {
	switch v := jp.Params[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// GetBool returns key as a bool.
func (jp JobParameters) GetBool(key string) (bool, bool) {
	b, ok := jp.Params[key].(bool)
	return b, ok
}

// GetDate returns key as a time.Time.
func (jp JobParameters) GetDate(key string) (time.Time, bool) {
	t, ok := jp.Params[key].(time.Time)
	return t, ok
}

// Copy returns an independent copy.
func (jp JobParameters) Copy() JobParameters {
	out := NewJobParameters()
	for k, v := range jp.Params {
		out.Params[k] = v
	}
	return out
}

// Equal reports value equality, independent of insertion order and of int widths.
func (jp JobParameters) Equal(other JobParameters) bool {
	return jp.canonical() == other.canonical()
}

// Hash returns a sha256 over the canonical form. It is the identity key of a JobInstance.
func (jp JobParameters) Hash() string {
	sum := sha256.Sum256([]byte(jp.canonical()))
	return hex.EncodeToString(sum[:])
}

// canonical renders the parameters as sorted "key=TYPE:value" lines.
func (jp JobParameters) canonical() string {
	keys := make([]string, 0, len(jp.Params))
	for k := range jp.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		switch v := jp.Params[k].(type) {
		case string:
			sb.WriteString(serialization.TypeString + ":" + v)
		case int64:
			sb.WriteString(serialization.TypeLong + ":" + strconv.FormatInt(v, 10))
		case int:
			sb.WriteString(serialization.TypeLong + ":" + strconv.Itoa(v))
		case float64:
			sb.WriteString(serialization.TypeDouble + ":" + strconv.FormatFloat(v, 'g', -1, 64))
		case bool:
			sb.WriteString(serialization.TypeBool + ":" + strconv.FormatBool(v))
		case time.Time:
			sb.WriteString(serialization.TypeDate + ":" + v.UTC().Format(time.RFC3339Nano))
		default:
			sb.WriteString(fmt.Sprintf("%T:%v", v, v))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// String renders the parameters with sensitive keys masked.
func (jp JobParameters) String() string {
	masked := serialization.GetMaskedJobParametersMap(jp.Params)
	keys := make([]string, 0, len(masked))
	for k := range masked {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, masked[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ParseJobParameters parses run-request arguments of the form "name=value" or
// "name(type)=value" where type is one of string, long, double, date, bool.
// Untyped values are strings. Dates accept RFC3339 or 2006-01-02.
func ParseJobParameters(args []string) (JobParameters, error) {
	jp := NewJobParameters()
	for _, arg := range args {
		eq := strings.IndexByte(arg, '=')
		if eq <= 0 {
			return jp, exception.NewConfigurationError("job_parameters", "invalid job parameter %q, expected name=value", arg)
		}
		name, raw := arg[:eq], arg[eq+1:]
		typ := "string"
		if open := strings.IndexByte(name, '('); open > 0 && strings.HasSuffix(name, ")") {
			typ = strings.ToLower(name[open+1 : len(name)-1])
			name = name[:open]
		}
		v, err := parseTypedValue(typ, raw)
		if err != nil {
			return jp, exception.NewConfigurationError("job_parameters", "invalid value for job parameter %q: %v", name, err)
		}
		jp.Put(name, v)
	}
	return jp, nil
}

func parseTypedValue(typ, raw string) (interface{}, error) {
	switch typ {
	case "string":
		return raw, nil
	case "long", "int":
		return strconv.ParseInt(raw, 10, 64)
	case "double", "float":
		return strconv.ParseFloat(raw, 64)
	case "bool", "boolean":
		return strconv.ParseBool(raw)
	case "date":
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, nil
		}
		return time.Parse(DateLayout, raw)
	default:
		return nil, fmt.Errorf("unknown parameter type %q", typ)
	}
}
