package serialization_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/serialization"
)

func TestJobParametersKeepTheirTypes(t *testing.T) {
	date := time.Date(2024, 1, 31, 9, 30, 0, 0, time.UTC)
	params := map[string]interface{}{
		"name":    "daily",
		"run.id":  int64(7),
		"count":   3,
		"ratio":   0.25,
		"dryRun":  true,
		"runDate": date,
	}

	data, err := serialization.MarshalJobParameters(params)
	require.NoError(t, err)

	decoded, err := serialization.UnmarshalJobParameters(data)
	require.NoError(t, err)
	assert.Equal(t, "daily", decoded["name"])
	assert.Equal(t, int64(7), decoded["run.id"])
	assert.Equal(t, int64(3), decoded["count"], "ints widen to int64")
	assert.Equal(t, 0.25, decoded["ratio"])
	assert.Equal(t, true, decoded["dryRun"])
	assert.True(t, date.Equal(decoded["runDate"].(time.Time)))
}

func TestMarshalJobParametersRejectsUnsupportedTypes(t *testing.T) {
	_, err := serialization.MarshalJobParameters(map[string]interface{}{"ids": []int{1, 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ids")
}

func TestUnmarshalJobParameters(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		for _, data := range [][]byte{nil, []byte("null")} {
			params, err := serialization.UnmarshalJobParameters(data)
			require.NoError(t, err)
			assert.Empty(t, params)
		}
	})

	t.Run("unknown type tag", func(t *testing.T) {
		_, err := serialization.UnmarshalJobParameters([]byte(`{"a":{"type":"BLOB","value":"x"}}`))
		assert.Error(t, err)
	})

	t.Run("type and value disagree", func(t *testing.T) {
		_, err := serialization.UnmarshalJobParameters([]byte(`{"a":{"type":"LONG","value":"x"}}`))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := serialization.UnmarshalJobParameters([]byte(`{"a":`))
		assert.Error(t, err)
	})
}

func TestMaskedParameterKeys(t *testing.T) {
	serialization.SetMaskedParameterKeys([]string{"password"})
	t.Cleanup(func() { serialization.SetMaskedParameterKeys(nil) })

	assert.True(t, serialization.IsMaskedParameterKey("password"))
	assert.False(t, serialization.IsMaskedParameterKey("user"))

	params := map[string]interface{}{"user": "batch", "password": "s3cret"}
	masked := serialization.GetMaskedJobParametersMap(params)
	assert.Equal(t, "********", masked["password"])
	assert.Equal(t, "batch", masked["user"])
	assert.Equal(t, "s3cret", params["password"], "input is not modified")

	data, err := serialization.MarshalJobParameters(params)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")
}

func TestExecutionContext(t *testing.T) {
	data, err := serialization.MarshalExecutionContext(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	data, err = serialization.MarshalExecutionContext(map[string]interface{}{"reader.offset": 40, "last.key": "p-0040"})
	require.NoError(t, err)
	ctx, err := serialization.UnmarshalExecutionContext(data)
	require.NoError(t, err)
	assert.Equal(t, float64(40), ctx["reader.offset"])
	assert.Equal(t, "p-0040", ctx["last.key"])

	ctx, err = serialization.UnmarshalExecutionContext([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, ctx)

	_, err = serialization.UnmarshalExecutionContext([]byte("[1]"))
	assert.Error(t, err)
}

func TestFailures(t *testing.T) {
	data, err := serialization.MarshalFailures(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = serialization.MarshalFailures([]string{"step load failed", "writer: timeout"})
	require.NoError(t, err)
	failures, err := serialization.UnmarshalFailures(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"step load failed", "writer: timeout"}, failures)

	failures, err = serialization.UnmarshalFailures(nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
}
