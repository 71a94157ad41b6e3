package surveillance

import (
	"context"
	"fmt"
	"math/rand"

	"gorm.io/gorm"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/pkg/i18n"
)

var (
	FakeNames = []string{"Ahmed Ali", "Sara O.", "Mohamed K.", "Ivan Petrov", "Fatima Hassan", "John Doe"}

	SimulatedSymptoms = []string{"Jeg har oppkast", "Kraftig diaré", "Kvalme og magesmerter"}
)

// SimulatedOriginal is the Arabic text every demo message carries ("I feel very nauseous").
const SimulatedOriginal = "أشعر بغثيان شديد"

type SimulatedCase struct {
	Username  string
	FullName  string
	SessionID string
	Symptom   string
}

type SimulationReport struct {
	Cases  []SimulatedCase
	Report *Report
}

// Simulate seeds one urgent gastrointestinal case per fake refugee and runs
// the aggregator once.
func Simulate(ctx context.Context, db *gorm.DB, agg *Aggregator) (*SimulationReport, error) {
	db = db.WithContext(ctx)
	out := &SimulationReport{}

	for i, name := range FakeNames {
		username := fmt.Sprintf("demo_patient_%d", i+1)
		user, _, err := models.GetOrCreateUser(db, username, models.User{
			FullName:       name,
			Role:           models.RoleRefugee,
			NativeLanguage: "ar",
		})
		if err != nil {
			return nil, err
		}
		sess, _, err := models.GetOrCreateActiveSession(db, user)
		if err != nil {
			return nil, err
		}
		if err := models.EscalateSession(db, sess.ID); err != nil {
			return nil, err
		}

		symptom := SimulatedSymptoms[rand.Intn(len(SimulatedSymptoms))]
		msg := &models.Message{
			SessionID:      sess.ID,
			SenderID:       user.ID,
			TextOriginal:   SimulatedOriginal,
			TextTranslated: symptom + i18n.Text(i18n.SimulateSuffix),
			LanguageCode:   "ar",
			IsUrgent:       true,
		}
		if err := models.CreateMessage(db, msg); err != nil {
			return nil, err
		}
		out.Cases = append(out.Cases, SimulatedCase{Username: username, FullName: name, SessionID: sess.ID, Symptom: symptom})
	}

	rep, err := agg.Run(ctx)
	if err != nil {
		return nil, err
	}
	out.Report = rep
	return out, nil
}
