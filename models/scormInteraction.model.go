package models

import (
	"time"

	"gorm.io/gorm"
)

// ScormInteraction is one recorded learner interaction. Rows are append-only;
// the composite unique index makes replayed commits idempotent per interaction id.
type ScormInteraction struct {
	gorm.Model
	SessionID       uint      `json:"session_id" gorm:"index;not null;uniqueIndex:idx_session_interaction"`
	InteractionID   string    `json:"interaction_id" gorm:"not null;uniqueIndex:idx_session_interaction"` // client-supplied
	Type            string    `json:"type" gorm:"default:'choice'"`
	Description     string    `json:"description" gorm:"type:text"`
	LearnerResponse string    `json:"learner_response" gorm:"type:text"` // JSON-encoded ordered list
	CorrectResponse string    `json:"correct_response" gorm:"type:text"` // JSON-encoded ordered list
	Result          string    `json:"result" gorm:"default:'neutral'"`   // correct, incorrect, unanticipated, neutral
	Weighting       float64   `json:"weighting" gorm:"default:0"`
	Latency         string    `json:"latency"`
	Timestamp       time.Time `json:"timestamp"`
	ObjectiveIDs    string    `json:"objective_ids" gorm:"type:text"` // JSON-encoded list
}
