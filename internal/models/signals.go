package models

import (
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

// 领域事件，在事务提交后通过 util.Sig() 发出
const (
	// SigMessageCreated sender: *Message, params: *User (sender)
	SigMessageCreated = "message.created"
	// SigEpidemicAlert sender: *EpidemicAlert
	SigEpidemicAlert = "epidemic.alert"
)

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(err, apperrors.KindNotFound, what+" not found")
	}
	return err
}
