package stores

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store 对象存储接口，图片以 key 寻址并原地覆盖
type Store interface {
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// NewStore picks the backend by driver name.
func NewStore(driver, mediaRoot, mediaURL string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "local":
		return NewLocalStore(mediaRoot, mediaURL), nil
	case "minio":
		return NewMinioStore(), nil
	}
	return nil, fmt.Errorf("unsupported storage driver: %s", driver)
}

// ImageKey builds chat_images/<yyyy>/<mm>/<uuid><ext> for an upload.
func ImageKey(filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("chat_images/%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), ext)
}
