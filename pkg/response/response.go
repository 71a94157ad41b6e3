// Package response writes the JSON envelope every REST handler returns.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

type Body struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Body{Code: http.StatusOK, Msg: msg, Data: data})
}

// Fail 请求参数错误
func Fail(c *gin.Context, msg string, data interface{}) {
	Abort(c, http.StatusBadRequest, msg, data)
}

func Abort(c *gin.Context, status int, msg string, data interface{}) {
	c.AbortWithStatusJSON(status, Body{Code: status, Msg: msg, Data: data})
}

// Error maps an error kind to a status code.
func Error(c *gin.Context, err error) {
	status := StatusOf(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	Abort(c, status, msg, nil)
}

func StatusOf(err error) int {
	if code := apperrors.GetCode(err); code >= 400 && code < 600 {
		return code
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindProtocol:
		return http.StatusBadRequest
	case apperrors.KindRateLimited:
		return http.StatusTooManyRequests
	case apperrors.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
