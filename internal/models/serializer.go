package models

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"gorm.io/gorm/schema"

	"github.com/alinorwa/nurse-assistant-management/pkg/codec"
	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

// EncryptedSerializerName is used as `gorm:"serializer:encrypted"`.
const EncryptedSerializerName = "encrypted"

var (
	fieldCodec   atomic.Pointer[codec.Codec]
	registerOnce sync.Once
)

// RegisterFieldCodec installs c for every encrypted column. Call it once at
// startup before the first query.
func RegisterFieldCodec(c *codec.Codec) {
	fieldCodec.Store(c)
	registerOnce.Do(func() {
		schema.RegisterSerializer(EncryptedSerializerName, EncryptedSerializer{})
	})
}

// EncryptedSerializer encrypts string fields on write and decrypts on read.
// Empty strings are stored as NULL. Undecryptable values read back as
// codec.Sentinel.
type EncryptedSerializer struct{}

func (EncryptedSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	var raw string
	switch v := dbValue.(type) {
	case nil:
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("encrypted column %s: unsupported type %T", field.Name, dbValue)
	}

	plain := ""
	if raw != "" {
		c := fieldCodec.Load()
		if c == nil {
			return apperrors.New(apperrors.KindConfig, "field codec not registered")
		}
		plain = c.Decode(raw)
	}
	field.ReflectValueOf(ctx, dst).SetString(plain)
	return nil
}

func (EncryptedSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	s, ok := fieldValue.(string)
	if !ok {
		return nil, fmt.Errorf("encrypted column %s: unsupported type %T", field.Name, fieldValue)
	}
	if s == "" {
		return nil, nil
	}
	c := fieldCodec.Load()
	if c == nil {
		return nil, apperrors.New(apperrors.KindConfig, "field codec not registered")
	}
	return c.Encode(s)
}
