// Package imaging shrinks uploaded medical photos before analysis.
package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"

	stores "github.com/alinorwa/nurse-assistant-management/pkg/storage"
)

const (
	MaxWidth    = 1024
	MaxHeight   = 1024
	JPEGQuality = 70
)

// Normalize decodes src, flattens it onto an opaque RGB canvas, fits it in
// MaxWidth x MaxHeight keeping aspect ratio and re-encodes it as JPEG.
// Images already inside the bound are never upscaled.
func Normalize(src io.Reader) ([]byte, error) {
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() > MaxWidth || b.Dy() > MaxHeight {
		img = imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)
	}
	rgb := imaging.Overlay(imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White), img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rgb, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NormalizeStored rewrites the object at key in place and returns the new
// bytes so callers can reuse them without a second read.
func NormalizeStored(ctx context.Context, store stores.Store, key string) ([]byte, error) {
	rc, _, err := store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	out, err := Normalize(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	if err := store.Write(ctx, key, bytes.NewReader(out), int64(len(out)), "image/jpeg"); err != nil {
		return nil, err
	}
	return out, nil
}
