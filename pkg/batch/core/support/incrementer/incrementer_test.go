package incrementer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

func TestRunIDIncrementer(t *testing.T) {
	inc := NewRunIDIncrementer("")
	params := model.NewJobParameters()
	params.Put("date", "2024-01-31")

	first := inc.GetNext(params)
	id, ok := first.GetInt(DefaultRunIDKey)
	require.True(t, ok)
	assert.EqualValues(t, 1, id)
	assert.Equal(t, "2024-01-31", first.Get("date"))
	assert.Nil(t, params.Get(DefaultRunIDKey), "input is not modified")

	second := inc.GetNext(first)
	id, _ = second.GetInt(DefaultRunIDKey)
	assert.EqualValues(t, 2, id)
	assert.False(t, first.Equal(second))
	assert.Equal(t, "RunIDIncrementer[name=run.id]", inc.String())
}

func TestTimestampIncrementer(t *testing.T) {
	inc := NewTimestampIncrementer("ts")
	fixed := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)
	inc.now = func() time.Time { return fixed }

	next := inc.GetNext(model.NewJobParameters())
	ts, ok := next.GetInt("ts")
	require.True(t, ok)
	assert.Equal(t, fixed.UnixMilli(), ts)
	assert.Equal(t, "TimestampIncrementer[name=ts]", inc.String())
}

func TestRegisterIncrementers(t *testing.T) {
	registry := jsl.NewComponentRegistry()
	RegisterIncrementers(registry)
	assert.Equal(t, []string{"runIdIncrementer", "timestampIncrementer"}, registry.Refs(jsl.KindIncrementer))

	built, err := registry.Build(jsl.KindIncrementer, jsl.ComponentRef{Ref: "runIdIncrementer", Properties: map[string]string{"name": "attempt"}})
	require.NoError(t, err)
	next := built.(port.JobParametersIncrementer).GetNext(model.NewJobParameters())
	attempt, _ := next.GetInt("attempt")
	assert.EqualValues(t, 1, attempt)
}
