package models

import (
	"time"

	"gorm.io/gorm"
)

// Session lifecycle states
const (
	SessionActive     = "ACTIVE"
	SessionSuspended  = "SUSPENDED"
	SessionCompleted  = "COMPLETED"
	SessionTerminated = "TERMINATED"
)

// ScormSession tracks one learner's attempt against a package. It is created on
// first launch, mutated only through commit and lifecycle calls, never deleted.
type ScormSession struct {
	gorm.Model
	Token     string `json:"token" gorm:"uniqueIndex;not null"` // opaque runtime token (uuid)
	PackageID uint   `json:"package_id" gorm:"index;not null"`
	UserID    uint   `json:"user_id" gorm:"index;not null"`
	Status    string `json:"status" gorm:"default:'ACTIVE'"` // ACTIVE, SUSPENDED, COMPLETED, TERMINATED

	// Last-known CMI summary, merged last-write-wins by commit
	LessonStatus     string   `json:"lesson_status" gorm:"default:'not attempted'"` // 1.2 combined status
	CompletionStatus string   `json:"completion_status" gorm:"default:'unknown'"`   // 2004
	SuccessStatus    string   `json:"success_status" gorm:"default:'unknown'"`      // 2004
	ScoreRaw         *float64 `json:"score_raw"`
	ScoreScaled      *float64 `json:"score_scaled"`
	Location         string   `json:"location"`
	Entry            string   `json:"entry" gorm:"default:'ab-initio'"`
	Exit             string   `json:"exit"`
	Credit           string   `json:"credit" gorm:"default:'credit'"`
	Mode             string   `json:"mode" gorm:"default:'normal'"`
	SuspendData      string   `json:"suspend_data" gorm:"type:text"` // opaque, stored verbatim
	SessionTime      string   `json:"session_time"`                  // last committed delta, ISO-8601 duration
	TotalTimeSeconds float64  `json:"total_time_seconds" gorm:"default:0"`

	IsCompleted  bool       `json:"is_completed" gorm:"default:false"`
	IsPassed     bool       `json:"is_passed" gorm:"default:false"`
	CompletedAt  *time.Time `json:"completed_at"` // stamped exactly once, never rewritten
	LastAccessed time.Time  `json:"last_accessed"`

	Interactions []ScormInteraction `json:"-" gorm:"foreignKey:SessionID"`
}

// CanResume reports whether a runtime client may reattach to this session
func (s *ScormSession) CanResume() bool {
	return s.Status == SessionActive || s.Status == SessionSuspended
}
