package stores

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreOverwriteInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir(), "/media/")
	key := "chat_images/2026/10/a.jpg"

	require.NoError(t, s.Write(ctx, key, strings.NewReader("original"), -1, "image/jpeg"))
	require.NoError(t, s.Write(ctx, key, bytes.NewReader([]byte("small")), 5, "image/jpeg"))

	rc, size, err := s.Read(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "small", string(data))
	assert.Equal(t, int64(5), size)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/media/chat_images/2026/10/a.jpg", s.PublicURL(key))

	require.NoError(t, s.Delete(ctx, key))
	ok, _ = s.Exists(ctx, key)
	assert.False(t, ok)
	assert.NoError(t, s.Delete(ctx, key))
}

func TestLocalStoreStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root, "/media")
	p, err := s.path("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, root))
}

func TestImageKey(t *testing.T) {
	key := ImageKey("Rash.PNG", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(key, "chat_images/2026/03/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	_, err := NewStore("ftp", "", "")
	assert.Error(t, err)
}
