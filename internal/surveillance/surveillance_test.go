package surveillance

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/internal/models/modeltest"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

func say(t *testing.T, db *gorm.DB, u *models.User, translated, analysis string, at time.Time) {
	t.Helper()
	sess, _, err := models.GetOrCreateActiveSession(db, u)
	require.NoError(t, err)
	require.NoError(t, models.CreateMessage(db, &models.Message{
		SessionID: sess.ID, SenderID: u.ID,
		TextOriginal: "x", TextTranslated: translated, AIAnalysis: analysis, Timestamp: at,
	}))
}

func refugees(t *testing.T, db *gorm.DB, n int) []*models.User {
	out := make([]*models.User, n)
	for i := range out {
		out[i] = modeltest.Refugee(t, db, fmt.Sprintf("r%d", i), "ar")
	}
	return out
}

func countAlerts(t *testing.T, db *gorm.DB, category string) int64 {
	var n int64
	require.NoError(t, db.Model(&models.EpidemicAlert{}).Where("symptom_category = ?", category).Count(&n).Error)
	return n
}

func TestFiveDistinctRefugeesRaiseOneAlert(t *testing.T) {
	db := modeltest.NewDB(t)
	now := time.Now().UTC()
	rs := refugees(t, db, 5)
	for _, r := range rs {
		say(t, db, r, "Jeg har FEBER", "", now.Add(-10*time.Minute))
	}

	var emitted []string
	util.Sig().Connect(models.SigEpidemicAlert, func(sender any, _ ...any) {
		emitted = append(emitted, sender.(*models.EpidemicAlert).SymptomCategory)
	})
	t.Cleanup(func() { util.Sig().Disconnect(models.SigEpidemicAlert) })

	agg := NewAggregator(db, Config{}, nil)
	rep, err := agg.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Raised, 1)
	assert.Equal(t, "Respiratory", rep.Raised[0].SymptomCategory)
	assert.Equal(t, 5, rep.Raised[0].CaseCount)
	assert.Equal(t, []string{"Respiratory"}, emitted)

	// a sixth message from someone already counted changes nothing
	say(t, db, rs[0], "hoste og feber", "", now.Add(-time.Minute))
	rep, err = agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Affected["Respiratory"])
	assert.Empty(t, rep.Raised)
	assert.Equal(t, int64(1), countAlerts(t, db, "Respiratory"))
}

func TestBelowThresholdNoAlert(t *testing.T) {
	db := modeltest.NewDB(t)
	now := time.Now().UTC()
	for _, r := range refugees(t, db, 4) {
		say(t, db, r, "kraftig diaré", "", now)
		say(t, db, r, "oppkast igjen", "", now)
	}
	rep, err := NewAggregator(db, Config{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Affected["Gastrointestinal"])
	assert.Empty(t, rep.Raised)
}

func TestWindowAndAuthorFilters(t *testing.T) {
	db := modeltest.NewDB(t)
	now := time.Now().UTC()
	rs := refugees(t, db, 5)
	for i, r := range rs {
		at := now
		if i == 0 {
			at = now.Add(-2 * time.Hour)
		}
		say(t, db, r, "utslett på armen", "", at)
	}
	nurse := modeltest.Nurse(t, db, "kari")
	sess, _, err := models.GetOrCreateActiveSession(db, rs[0])
	require.NoError(t, err)
	require.NoError(t, models.CreateMessage(db, &models.Message{SessionID: sess.ID, SenderID: nurse.ID, TextTranslated: "utslett"}))

	rep, err := NewAggregator(db, Config{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Affected["Skin"])
	assert.Empty(t, rep.Raised)
}

func TestAnalysisTextCounts(t *testing.T) {
	db := modeltest.NewDB(t)
	now := time.Now().UTC()
	for _, r := range refugees(t, db, 3) {
		say(t, db, r, "", "Funn: Rash on both hands", now)
	}
	rep, err := NewAggregator(db, Config{Threshold: 3}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Raised, 1)
	assert.Equal(t, "Skin", rep.Raised[0].SymptomCategory)
}

func TestOldAlertDoesNotSuppressNewWindow(t *testing.T) {
	db := modeltest.NewDB(t)
	now := time.Now().UTC()
	require.NoError(t, models.CreateAlert(db, &models.EpidemicAlert{SymptomCategory: "Respiratory", CaseCount: 5, Timestamp: now.Add(-3 * time.Hour)}))
	for _, r := range refugees(t, db, 5) {
		say(t, db, r, "cough", "", now)
	}
	rep, err := NewAggregator(db, Config{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Raised, 1)
	assert.Equal(t, int64(2), countAlerts(t, db, "Respiratory"))
}

func TestSimulate(t *testing.T) {
	db := modeltest.NewDB(t)
	agg := NewAggregator(db, Config{}, nil)

	out, err := Simulate(context.Background(), db, agg)
	require.NoError(t, err)
	require.Len(t, out.Cases, 6)
	assert.Equal(t, "demo_patient_1", out.Cases[0].Username)
	assert.Equal(t, "Ahmed Ali", out.Cases[0].FullName)
	require.Len(t, out.Report.Raised, 1)
	assert.Equal(t, "Gastrointestinal", out.Report.Raised[0].SymptomCategory)
	assert.Equal(t, 6, out.Report.Raised[0].CaseCount)

	sess, err := models.GetSession(db, out.Cases[0].SessionID)
	require.NoError(t, err)
	assert.True(t, sess.IsUrgent())

	msgs, err := models.ListSessionMessages(db, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsUrgent)
	assert.Equal(t, SimulatedOriginal, msgs[0].TextOriginal)
	assert.True(t, strings.HasSuffix(msgs[0].TextTranslated, " (Simulated)"))

	out, err = Simulate(context.Background(), db, agg)
	require.NoError(t, err)
	assert.Empty(t, out.Report.Raised, "second run is deduplicated")
	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(6), users)
}
