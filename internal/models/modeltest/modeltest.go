// Package modeltest opens throwaway databases for tests.
package modeltest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/codec"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

var (
	codecOnce sync.Once
	testCodec *codec.Codec
)

// Codec is the process-wide codec every test database is registered with.
func Codec(t testing.TB) *codec.Codec {
	t.Helper()
	codecOnce.Do(func() {
		key, err := codec.GenerateKey()
		if err != nil {
			panic(err)
		}
		testCodec, err = codec.New(key)
		if err != nil {
			panic(err)
		}
		models.RegisterFieldCodec(testCodec)
	})
	return testCodec
}

// NewDB returns a migrated in-memory sqlite database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	Codec(t)
	db, err := util.OpenDatabase("sqlite", "file::memory:", false)
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func Refugee(t testing.TB, db *gorm.DB, username, lang string) *models.User {
	t.Helper()
	u := &models.User{Username: username, FullName: username, Role: models.RoleRefugee, NativeLanguage: lang}
	require.NoError(t, db.Create(u).Error)
	return u
}

func Nurse(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, FullName: "Nurse " + username, Role: models.RoleNurse, IsStaff: true, NativeLanguage: "no"}
	require.NoError(t, db.Create(u).Error)
	return u
}
