package llm

import (
	"context"
	"errors"
	"net"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

// Translator translates text between two language codes.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// VisionAnalyzer returns free-form diagnostic text for a JPEG image.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, image []byte) (string, error)
}

var (
	ErrNotConfigured = apperrors.New(apperrors.KindConfig, "provider not configured")
	ErrEmptyResponse = apperrors.New(apperrors.KindTransient, "provider returned an empty response")
)

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsNotConfigured reports whether err means credentials or endpoints are missing.
func IsNotConfigured(err error) bool {
	return apperrors.IsKind(err, apperrors.KindConfig)
}
