package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(apperrors.New(apperrors.KindNotFound, "x")))
	assert.Equal(t, http.StatusBadRequest, StatusOf(apperrors.New(apperrors.KindProtocol, "x")))
	assert.Equal(t, http.StatusConflict, StatusOf(apperrors.WithCode(http.StatusConflict, "dup")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, errors.New("dsn=secret"))

	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusInternalServerError, body.Code)
	assert.NotContains(t, body.Msg, "secret")
}
