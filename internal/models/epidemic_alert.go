package models

import (
	"time"

	"gorm.io/gorm"
)

// EpidemicAlert 某一症状类别在监测窗口内病例数超过阈值时生成
type EpidemicAlert struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SymptomCategory string    `json:"symptom_category" gorm:"size:50;index"`
	CaseCount       int       `json:"case_count"`
	Timestamp       time.Time `json:"timestamp" gorm:"index"`
	IsResolved      bool      `json:"is_resolved"`
}

func (EpidemicAlert) TableName() string { return "epidemic_alerts" }

func (a *EpidemicAlert) BeforeCreate(tx *gorm.DB) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = tx.NowFunc()
	}
	return nil
}

func CreateAlert(db *gorm.DB, a *EpidemicAlert) error {
	return db.Create(a).Error
}

// AlertExistsSince 用于去重，窗口内同一类别只报警一次
func AlertExistsSince(db *gorm.DB, category string, since time.Time) (bool, error) {
	var n int64
	err := db.Model(&EpidemicAlert{}).
		Where("symptom_category = ? AND timestamp >= ?", category, since).
		Count(&n).Error
	return n > 0, err
}

func RecentAlerts(db *gorm.DB, limit int) ([]EpidemicAlert, error) {
	var out []EpidemicAlert
	q := db.Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func ResolveAlert(db *gorm.DB, id uint) error {
	res := db.Model(&EpidemicAlert{}).Where("id = ?", id).Update("is_resolved", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "alert")
	}
	return nil
}

type CategoryTotal struct {
	Category string `json:"category"`
	Total    int64  `json:"total"`
}

// AlertTotals 按症状类别汇总 case_count
func AlertTotals(db *gorm.DB) ([]CategoryTotal, error) {
	var out []CategoryTotal
	err := db.Model(&EpidemicAlert{}).
		Select("symptom_category AS category, SUM(case_count) AS total").
		Group("symptom_category").
		Order("total DESC").
		Scan(&out).Error
	return out, err
}
