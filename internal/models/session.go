package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PriorityNormal = 1
	PriorityUrgent = 2
)

// Session 难民与医护之间的会话，列表按 priority、last_activity 倒序
type Session struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	RefugeeID    uint      `json:"refugee_id" gorm:"index"`
	Refugee      *User     `json:"refugee,omitempty" gorm:"foreignKey:RefugeeID;constraint:OnDelete:CASCADE"`
	NurseID      *uint     `json:"nurse_id"`
	Nurse        *User     `json:"nurse,omitempty" gorm:"foreignKey:NurseID;constraint:OnDelete:SET NULL"`
	StartTime    time.Time `json:"start_time"`
	IsActive     bool      `json:"is_active" gorm:"index"`
	LastActivity time.Time `json:"last_activity" gorm:"index"`
	Priority     int       `json:"priority" gorm:"index"`
	Messages     []Message `json:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (Session) TableName() string { return "chat_sessions" }

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := tx.NowFunc()
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = now
	}
	if s.Priority == 0 {
		s.Priority = PriorityNormal
	}
	return nil
}

func (s *Session) IsUrgent() bool { return s.Priority == PriorityUrgent }

// Group is the gateway broadcast group for this session.
func (s *Session) Group() string { return SessionGroup(s.ID) }

func SessionGroup(id string) string { return "chat_" + id }

// GetSession 按 ID 查询并预加载难民
func GetSession(db *gorm.DB, id string) (*Session, error) {
	var s Session
	if err := db.Preload("Refugee").Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err, "session")
	}
	return &s, nil
}

// GetOrCreateActiveSession 每个难民最多一个活跃会话
func GetOrCreateActiveSession(db *gorm.DB, refugee *User) (*Session, bool, error) {
	var s Session
	err := db.Where("refugee_id = ? AND is_active = ?", refugee.ID, true).
		Order("start_time DESC").First(&s).Error
	if err == nil {
		s.Refugee = refugee
		return &s, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	s = Session{RefugeeID: refugee.ID, IsActive: true, Priority: PriorityNormal}
	if err := db.Create(&s).Error; err != nil {
		return nil, false, err
	}
	s.Refugee = refugee
	return &s, true, nil
}

// ListActiveSessions 仪表盘会话列表
func ListActiveSessions(db *gorm.DB) ([]Session, error) {
	var out []Session
	err := db.Preload("Refugee").
		Where("is_active = ?", true).
		Order("priority DESC").Order("last_activity DESC").
		Find(&out).Error
	return out, err
}

// The updates below touch only the named columns so concurrent writers on
// the same row never clobber each other.

// EscalateSession marks the session urgent.
func EscalateSession(db *gorm.DB, id string) error {
	return db.Model(&Session{}).Where("id = ?", id).Update("priority", PriorityUrgent).Error
}

// ResolveSession is called when staff replies: priority drops back to normal.
func ResolveSession(db *gorm.DB, id string, now time.Time) error {
	return db.Model(&Session{}).Where("id = ?", id).
		Updates(map[string]interface{}{"priority": PriorityNormal, "last_activity": now}).Error
}

func TouchSession(db *gorm.DB, id string, now time.Time) error {
	return db.Model(&Session{}).Where("id = ?", id).Update("last_activity", now).Error
}

func AssignNurse(db *gorm.DB, id string, nurseID uint) error {
	return db.Model(&Session{}).Where("id = ?", id).Update("nurse_id", nurseID).Error
}

func CloseSession(db *gorm.DB, id string) error {
	return db.Model(&Session{}).Where("id = ?", id).Update("is_active", false).Error
}

type SessionKPIs struct {
	TotalRefugees  int64 `json:"total_refugees"`
	UrgentSessions int64 `json:"urgent_sessions"`
	ActiveNow      int64 `json:"active_sessions"`
}

func CountSessionKPIs(db *gorm.DB) (SessionKPIs, error) {
	var k SessionKPIs
	var err error
	if k.TotalRefugees, err = CountRefugees(db); err != nil {
		return k, err
	}
	if err = db.Model(&Session{}).Where("is_active = ? AND priority = ?", true, PriorityUrgent).
		Count(&k.UrgentSessions).Error; err != nil {
		return k, err
	}
	err = db.Model(&Session{}).Where("is_active = ?", true).Count(&k.ActiveNow).Error
	return k, err
}

type DayCount struct {
	Day   string `json:"day"`
	Total int64  `json:"total"`
}

// SessionsPerDay counts sessions started on each of the last days days,
// oldest first, with empty days reported as zero. Days are calendar days in
// loc.
func SessionsPerDay(db *gorm.DB, now time.Time, days int, loc *time.Location) ([]DayCount, error) {
	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(days - 1))

	var starts []time.Time
	if err := db.Model(&Session{}).Where("start_time >= ?", first.UTC()).
		Pluck("start_time", &starts).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, days)
	for _, t := range starts {
		counts[t.In(loc).Format("2006-01-02")]++
	}
	out := make([]DayCount, 0, days)
	for i := 0; i < days; i++ {
		d := first.AddDate(0, 0, i).Format("2006-01-02")
		out = append(out, DayCount{Day: d, Total: counts[d]})
	}
	return out, nil
}
