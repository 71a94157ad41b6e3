package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/internal/models/modeltest"
	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/middleware"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

func TestPostDefaultsLanguageAndEnqueueEmits(t *testing.T) {
	db := modeltest.NewDB(t)
	svc := NewService(db)
	r := modeltest.Refugee(t, db, "amal", "ar")
	sess, err := svc.OpenSession(context.Background(), r)
	require.NoError(t, err)

	var seen []string
	util.Sig().Connect(models.SigMessageCreated, func(sender any, params ...any) {
		m := sender.(*models.Message)
		// the row must already be visible
		_, err := models.GetMessage(db, m.ID)
		assert.NoError(t, err)
		assert.Equal(t, r.ID, params[0].(*models.User).ID)
		seen = append(seen, m.ID)
	})
	t.Cleanup(func() { util.Sig().Disconnect(models.SigMessageCreated) })

	msg, err := svc.Post(context.Background(), PostInput{SessionID: sess.ID, Sender: r, Text: "  مرحبا  "})
	require.NoError(t, err)
	assert.Equal(t, "ar", msg.LanguageCode)
	assert.Equal(t, "مرحبا", msg.TextOriginal)
	assert.Empty(t, seen, "Post alone does not start enrichment")

	svc.Enqueue(msg, r)
	assert.Equal(t, []string{msg.ID}, seen)
}

func TestStaffPostResetsPriority(t *testing.T) {
	db := modeltest.NewDB(t)
	svc := NewService(db)
	r := modeltest.Refugee(t, db, "amal", "ar")
	n := modeltest.Nurse(t, db, "kari")
	sess, err := svc.OpenSession(context.Background(), r)
	require.NoError(t, err)
	require.NoError(t, models.EscalateSession(db, sess.ID))

	before := time.Now().UTC().Add(-time.Second)
	_, err = svc.Post(context.Background(), PostInput{SessionID: sess.ID, Sender: n, Text: "Vi kommer"})
	require.NoError(t, err)

	got, err := models.GetSession(db, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, got.Priority)
	assert.True(t, got.LastActivity.After(before))
}

func TestRefugeePostKeepsPriority(t *testing.T) {
	db := modeltest.NewDB(t)
	svc := NewService(db)
	r := modeltest.Refugee(t, db, "amal", "ar")
	sess, err := svc.OpenSession(context.Background(), r)
	require.NoError(t, err)
	require.NoError(t, models.EscalateSession(db, sess.ID))

	_, err = svc.Post(context.Background(), PostInput{SessionID: sess.ID, Sender: r, Text: "still here"})
	require.NoError(t, err)
	got, err := models.GetSession(db, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUrgent())
}

func TestPostRejections(t *testing.T) {
	db := modeltest.NewDB(t)
	svc := NewService(db)
	r := modeltest.Refugee(t, db, "amal", "ar")

	_, err := svc.Post(context.Background(), PostInput{SessionID: "x", Sender: r, Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.Post(context.Background(), PostInput{SessionID: "missing", Sender: r, Text: "hi"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	var n int64
	require.NoError(t, db.Model(&models.Message{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestNeedsEnrichment(t *testing.T) {
	refugee := &models.User{Role: models.RoleRefugee}
	staff := &models.User{Role: models.RoleNurse, IsStaff: true}

	cases := []struct {
		name   string
		msg    models.Message
		sender *models.User
		want   bool
	}{
		{"refugee text", models.Message{TextOriginal: "hi"}, refugee, true},
		{"refugee translated", models.Message{TextOriginal: "hi", TextTranslated: "hei"}, refugee, false},
		{"refugee image", models.Message{Image: "a.jpg"}, refugee, true},
		{"refugee analysed image", models.Message{Image: "a.jpg", AIAnalysis: "ok"}, refugee, false},
		{"staff text", models.Message{TextOriginal: "hei"}, staff, true},
		{"staff image only", models.Message{Image: "a.jpg"}, staff, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NeedsEnrichment(&tc.msg, tc.sender))
		})
	}
}

func TestOpenSessionAndAccess(t *testing.T) {
	db := modeltest.NewDB(t)
	svc := NewService(db)
	r := modeltest.Refugee(t, db, "amal", "ar")
	n := modeltest.Nurse(t, db, "kari")

	_, err := svc.OpenSession(context.Background(), n)
	assert.True(t, apperrors.IsKind(err, apperrors.KindProtocol))

	sess, err := svc.OpenSession(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, CanAccess(sess, r.Principal()))
	assert.True(t, CanAccess(sess, n.Principal()))
	assert.False(t, CanAccess(sess, &middleware.Principal{ID: 999, Role: "REFUGEE"}))
	assert.False(t, CanAccess(sess, nil))
}

func TestChatEventFormatting(t *testing.T) {
	oslo, err := time.LoadLocation("Europe/Oslo")
	require.NoError(t, err)
	m := &models.Message{
		ID:           "m1",
		SenderID:     4,
		TextOriginal: "hei",
		Image:        "chat_images/a.jpg",
		AIAnalysis:   "",
		Timestamp:    time.Date(2025, 1, 15, 13, 5, 0, 0, time.UTC),
	}
	ev := NewChatEvent(m, oslo)
	assert.Equal(t, "14:05", ev.Timestamp)
	assert.Nil(t, ev.AIAnalysis)

	ev = ev.WithEnrichment(m, "/media/chat_images/a.jpg").WithSender("Kari")
	require.NotNil(t, ev.ImageURL)
	require.NotNil(t, ev.AIAnalysis)
	assert.Equal(t, "Kari", ev.SenderName)
}
