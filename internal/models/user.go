package models

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
)

type Role string

const (
	RoleRefugee Role = "REFUGEE"
	RoleNurse   Role = "NURSE"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// LanguageNames 难民母语代码对应的显示名称
var LanguageNames = map[string]string{
	"ar": "Arabic",
	"fa": "Persian",
	"uk": "Ukrainian",
	"ti": "Tigrinya",
	"so": "Somali",
	"ku": "Kurdish",
	"en": "English",
	"no": "Norwegian",
}

// User 账户由外部系统维护，这里只读取
type User struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	Username       string `json:"username" gorm:"size:150;uniqueIndex"`
	FullName       string `json:"full_name" gorm:"size:255"`
	Role           Role   `json:"role" gorm:"size:20;index"`
	IsStaff        bool   `json:"is_staff"`
	NativeLanguage string `json:"native_language" gorm:"size:10"`
}

func (u *User) IsRefugee() bool { return u.Role == RoleRefugee }

// DisplayName falls back to the username.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) Principal() *middleware.Principal {
	return &middleware.Principal{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		Role:           string(u.Role),
		IsStaff:        u.IsStaff,
		NativeLanguage: u.NativeLanguage,
	}
}

// GetUserByID 按主键查询
func GetUserByID(db *gorm.DB, id uint) (*User, error) {
	var u User
	if err := db.First(&u, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// GetOrCreateUser 按用户名查找，不存在时用 defaults 创建
func GetOrCreateUser(db *gorm.DB, username string, defaults User) (*User, bool, error) {
	var u User
	err := db.Where("username = ?", username).First(&u).Error
	if err == nil {
		return &u, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	defaults.Username = username
	if err := db.Create(&defaults).Error; err != nil {
		return nil, false, err
	}
	return &defaults, true, nil
}

// PrincipalLoader adapts the users table to the auth middleware.
func PrincipalLoader(db *gorm.DB) middleware.UserLoader {
	return func(ctx context.Context, id uint) (*middleware.Principal, error) {
		u, err := GetUserByID(db.WithContext(ctx), id)
		if err != nil {
			return nil, err
		}
		return u.Principal(), nil
	}
}

// CountRefugees 难民总数
func CountRefugees(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&User{}).Where("role = ?", RoleRefugee).Count(&n).Error
	return n, err
}

type LanguageCount struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Total int64  `json:"total"`
}

// LanguageDistribution 按母语统计难民人数
func LanguageDistribution(db *gorm.DB) ([]LanguageCount, error) {
	var rows []struct {
		NativeLanguage string
		Total          int64
	}
	err := db.Model(&User{}).
		Select("native_language, COUNT(id) AS total").
		Where("role = ?", RoleRefugee).
		Group("native_language").
		Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]LanguageCount, 0, len(rows))
	for _, r := range rows {
		label, ok := LanguageNames[r.NativeLanguage]
		if !ok {
			label = r.NativeLanguage
		}
		out = append(out, LanguageCount{Code: r.NativeLanguage, Label: label, Total: r.Total})
	}
	return out, nil
}
