package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onePark = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Point","coordinates":[13.40,52.515]},"properties":{"name":"Quiet Garden","placeType":"park"}}]}`

func importEnv(t *testing.T, body string) string {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_DRIVER", "memory")
	p := filepath.Join(t.TempDir(), "places.geojson")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRun_ImportsAndReleasesLock(t *testing.T) {
	p := importEnv(t, onePark)
	var out bytes.Buffer
	assert.Equal(t, 0, run([]string{"--created-by", "tester", p}, &out))
	assert.Contains(t, out.String(), "added=1 skipped=0")
	assert.NoFileExists(t, p+".lock")
}

func TestRun_FailedImportRemovesLock(t *testing.T) {
	p := importEnv(t, "{not json")
	var out bytes.Buffer
	assert.Equal(t, 1, run([]string{p}, &out))
	assert.Contains(t, out.String(), "added=0")
	assert.NoFileExists(t, p+".lock")
}

func TestRun_RefusesConcurrentImport(t *testing.T) {
	p := importEnv(t, onePark)
	held := flock.New(p + ".lock")
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	var out bytes.Buffer
	assert.Equal(t, 1, run([]string{p}, &out))
	assert.NotContains(t, out.String(), "added=")
	assert.FileExists(t, p+".lock")
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 2, run(nil, &out))
	assert.Contains(t, out.String(), "usage: places-import")

	out.Reset()
	assert.Equal(t, 0, run([]string{"--help"}, &out))
	assert.Contains(t, out.String(), "usage: places-import")
}
