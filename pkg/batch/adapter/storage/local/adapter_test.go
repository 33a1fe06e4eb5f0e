package local_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageconfig "github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/surfin-flow/pkg/batch/adapter/storage/local"
)

func TestAdapterRoundTrip(t *testing.T) {
	a, err := local.NewAdapter(storageconfig.Config{Type: "local", BaseDir: t.TempDir(), BucketName: "exports"}, "export")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.Upload(ctx, "", "pay/a.txt", strings.NewReader("alpha"), "text/plain"))
	require.NoError(t, a.Upload(ctx, "", "pay/dt=1/b.txt", strings.NewReader("beta"), "text/plain"))

	rc, err := a.Download(ctx, "exports", "pay/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	var names []string
	require.NoError(t, a.ListObjects(ctx, "", "pay", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.ElementsMatch(t, []string{"pay/a.txt", "pay/dt=1/b.txt"}, names)

	require.NoError(t, a.DeleteObject(ctx, "", "pay/a.txt"))
	_, err = a.Download(ctx, "", "pay/a.txt")
	assert.Error(t, err)
}

func TestAdapterRejectsEscapingPaths(t *testing.T) {
	a, err := local.NewAdapter(storageconfig.Config{Type: "local", BaseDir: t.TempDir()}, "export")
	require.NoError(t, err)
	err = a.Upload(context.Background(), "", "../../etc/passwd", strings.NewReader("x"), "text/plain")
	assert.ErrorContains(t, err, "outside of base_dir")
}

func TestProvider(t *testing.T) {
	p := local.NewProviderFromConfigs(map[string]storageconfig.Config{
		"export": {Type: "local", BaseDir: t.TempDir()},
		"cloud":  {Type: "gcs", BucketName: "b"},
	})
	first, err := p.GetConnection("export")
	require.NoError(t, err)
	second, err := p.GetConnection("export")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = p.GetConnection("cloud")
	assert.ErrorContains(t, err, "type mismatch")
	_, err = p.GetConnection("missing")
	assert.Error(t, err)

	_, err = local.NewAdapter(storageconfig.Config{Type: "local"}, "x")
	assert.Error(t, err)
}
