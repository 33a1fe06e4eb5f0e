package metrics_test

import (
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func assertSeries(t *testing.T, want int, registry *prometheus.Registry, names ...string) {
	t.Helper()
	got, err := testutil.GatherAndCount(registry, names...)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
