package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBucket struct {
	objects map[string][]byte
	types   map[string]string
	puts    int
	err     error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBucket) Name() string { return "strdash-exports" }

func (b *memBucket) Exists(_ context.Context, object string) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	_, ok := b.objects[object]
	return ok, nil
}

func (b *memBucket) Put(_ context.Context, object, contentType string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	b.puts++
	b.objects[object] = buf.Bytes()
	b.types[object] = contentType
	return nil
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// sha256("hello\n")
const helloHash = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"

func TestArchive_UploadsOnce(t *testing.T) {
	bucket := newMemBucket()
	a := New(bucket)
	first := writeTemp(t, "relay.CSV", "hello\n")
	second := writeTemp(t, "copy of relay.csv", "hello\n")

	uri, err := a.Archive(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "gs://strdash-exports/raw-exports/"+helloHash+".csv", uri)
	assert.Equal(t, "text/csv", bucket.types["raw-exports/"+helloHash+".csv"])

	again, err := a.Archive(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, uri, again)
	assert.Equal(t, 1, bucket.puts)
	assert.Equal(t, []byte("hello\n"), bucket.objects["raw-exports/"+helloHash+".csv"])
}

func TestArchive_Prefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"/imports/2024/", "imports/2024/" + helloHash + ".ofx"},
		{"", helloHash + ".ofx"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			a := New(newMemBucket(), WithPrefix(tt.prefix))
			assert.Equal(t, tt.want, a.ObjectName(helloHash, "/tmp/Checking.OFX"))
		})
	}
}

func TestArchive_Errors(t *testing.T) {
	bucket := newMemBucket()
	bucket.err = errors.New("permission denied")

	_, err := New(bucket).Archive(context.Background(), writeTemp(t, "a.csv", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	_, err = New(newMemBucket()).Archive(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to open file"))
}

func TestHashFile(t *testing.T) {
	got, err := HashFile(writeTemp(t, "h.txt", "hello\n"))
	require.NoError(t, err)
	assert.Equal(t, helloHash, got)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/x-ofx", contentType("a.QFX"))
	assert.Equal(t, "text/csv", contentType("a.csv"))
	assert.Equal(t, "application/json", contentType("a.json"))
	assert.Equal(t, "application/octet-stream", contentType("a.unknownext"))
}

func TestNewGCSBucket_RequiresName(t *testing.T) {
	_, err := NewGCSBucket(context.Background(), "")
	assert.Error(t, err)
}
