package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/serialization"
)

func TestJobParameters_PutNormalisesNumbers(t *testing.T) {
	p := model.NewJobParameters()
	p.Put("count", 5)
	p.Put("small", int32(2))
	p.Put("ratio", float32(0.5))

	assert.IsType(t, int64(0), p.Get("count"))
	assert.IsType(t, int64(0), p.Get("small"))
	assert.IsType(t, float64(0), p.Get("ratio"))
	assert.Equal(t, 3, p.Len())

	n, ok := p.GetInt("count")
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)
	f, ok := p.GetFloat("count")
	assert.True(t, ok)
	assert.Equal(t, 5.0, f)
	_, ok = p.GetString("count")
	assert.False(t, ok)
	assert.Nil(t, p.Get("missing"))
}

func TestJobParameters_Identity(t *testing.T) {
	a := model.JobParametersOf(map[string]interface{}{"date": "2024-01-31", "run.id": 1})
	b := model.NewJobParameters()
	b.Put("run.id", int64(1))
	b.Put("date", "2024-01-31")

	assert.True(t, a.Equal(b), "insertion order and int width do not matter")
	assert.Equal(t, a.Hash(), b.Hash())

	c := model.JobParametersOf(map[string]interface{}{"date": "2024-01-31", "run.id": "1"})
	assert.False(t, a.Equal(c), "a string is not a long")
	assert.NotEqual(t, a.Hash(), c.Hash())

	assert.Equal(t, model.NewJobParameters().Hash(), model.NewJobParameters().Hash())
}

func TestJobParameters_Copy(t *testing.T) {
	a := model.JobParametersOf(map[string]interface{}{"k": "v"})
	b := a.Copy()
	b.Put("k", "changed")

	s, _ := a.GetString("k")
	assert.Equal(t, "v", s)
}

func TestJobParameters_StringMasksSecrets(t *testing.T) {
	serialization.SetMaskedParameterKeys([]string{"token"})
	t.Cleanup(func() { serialization.SetMaskedParameterKeys(nil) })

	p := model.JobParametersOf(map[string]interface{}{"token": "abc", "user": "batch"})
	assert.Equal(t, "{token=********, user=batch}", p.String())
}

func TestParseJobParameters(t *testing.T) {
	p, err := model.ParseJobParameters([]string{
		"name=daily",
		"region(string)=eu=west",
		"run.id(long)=42",
		"ratio(double)=0.75",
		"dryRun(bool)=true",
		"day(date)=2024-01-31",
		"at(date)=2024-01-31T10:00:00Z",
	})
	require.NoError(t, err)

	name, _ := p.GetString("name")
	assert.Equal(t, "daily", name)
	region, _ := p.GetString("region")
	assert.Equal(t, "eu=west", region, "only the first '=' separates name and value")
	id, _ := p.GetInt("run.id")
	assert.Equal(t, int64(42), id)
	ratio, _ := p.GetFloat("ratio")
	assert.Equal(t, 0.75, ratio)
	dry, _ := p.GetBool("dryRun")
	assert.True(t, dry)
	day, ok := p.GetDate("day")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), day)
	at, ok := p.GetDate("at")
	require.True(t, ok)
	assert.Equal(t, 10, at.Hour())
}

func TestParseJobParametersErrors(t *testing.T) {
	for _, args := range [][]string{
		{"novalue"},
		{"=value"},
		{"n(long)=abc"},
		{"n(blob)=x"},
		{"d(date)=31/01/2024"},
	} {
		_, err := model.ParseJobParameters(args)
		require.Error(t, err, "%v", args)
		assert.True(t, errors.Is(err, exception.ErrConfiguration), "%v", args)
	}
}
