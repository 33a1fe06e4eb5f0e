// Package configbinder binds loosely typed component properties (from YAML job
// definitions or config maps) onto typed structs.
package configbinder

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// BindProperties decodes properties into target using the "yaml" struct tag.
// Weak typing is enabled so "10" binds to an int field and "250ms" to a time.Duration.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	if len(properties) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(properties); err != nil {
		return fmt.Errorf("failed to bind properties to %s: %w", typeName(target), err)
	}
	return nil
}

// BindStringProperties is BindProperties for string-valued property maps.
func BindStringProperties(properties map[string]string, target interface{}) error {
	m := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		m[k] = v
	}
	return BindProperties(m, target)
}

func typeName(target interface{}) string {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
