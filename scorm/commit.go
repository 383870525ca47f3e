package scorm

import (
	"strconv"
	"time"

	"scormhub/models"
)

// InteractionDelta is one interaction as submitted by the runtime client
type InteractionDelta struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Description     string     `json:"description"`
	LearnerResponse []string   `json:"learner_response"`
	CorrectResponse []string   `json:"correct_response"`
	Result          string     `json:"result"`
	Weighting       float64    `json:"weighting"`
	Latency         string     `json:"latency"`
	Timestamp       *time.Time `json:"timestamp"`
	ObjectiveIDs    []string   `json:"objective_ids"`
}

// CommitData is the structured delta a runtime client sends on commit. CMI
// scalars travel as strings the way the SCORM adapter produced them; nil
// means "not supplied this commit".
type CommitData struct {
	LearnerID string `json:"learner_id"` // identity echo, informational only

	LessonStatus     *string `json:"lesson_status"`
	CompletionStatus *string `json:"completion_status"`
	SuccessStatus    *string `json:"success_status"`
	Location         *string `json:"location"`
	Entry            *string `json:"entry"`
	Exit             *string `json:"exit"`
	Credit           *string `json:"credit"`
	Mode             *string `json:"mode"`
	ScoreRaw         *string `json:"score_raw"`
	ScoreScaled      *string `json:"score_scaled"`
	SessionTime      *string `json:"session_time"` // delta for this commit
	TotalTime        *string `json:"total_time"`   // client echo; the accumulator here is authoritative
	SuspendData      *string `json:"suspend_data"`

	CompletedAt  *time.Time         `json:"completed_at"`
	Interactions []InteractionDelta `json:"interactions"`
}

// scalarWrite is one pending field merge, validated before anything is applied
type scalarWrite struct {
	field   string
	element string
	value   string
}

// ApplyCommit validates the delta against the session's dialect and merges it
// into the session summary. The session value is only mutated after every
// scalar passed validation, so a failed commit leaves it untouched. The
// caller owns persistence and the surrounding transaction.
func ApplyCommit(strategy Strategy, session *models.ScormSession, data *CommitData, now time.Time) error {
	writes, err := collectWrites(strategy, data)
	if err != nil {
		return err
	}

	// Phase 2: last-write-wins merge of validated scalars
	for _, w := range writes {
		applyScalar(session, w.field, w.value)
	}

	// Session time accumulates into total time; validation guaranteed the parse
	if data.SessionTime != nil {
		if seconds, err := ParseDuration(*data.SessionTime); err == nil {
			session.TotalTimeSeconds += seconds
		}
	}

	// Phase 3: dialect-specific status derivation
	session.IsCompleted = strategy.IsCompleted(session)
	session.IsPassed = strategy.IsPassed(session)

	// Phase 4: completion timestamp is written exactly once
	if session.IsCompleted && session.CompletedAt == nil {
		stamp := now
		if data.CompletedAt != nil {
			stamp = *data.CompletedAt
		}
		session.CompletedAt = &stamp
	}
	if session.IsCompleted && session.CanResume() {
		session.Status = models.SessionCompleted
	}

	session.LastAccessed = now
	return nil
}

// collectWrites validates every supplied scalar and returns the pending merges.
// A field the dialect has no element for fails the same way an unknown element
// does: the commit is rejected naming the field, nothing is applied.
func collectWrites(strategy Strategy, data *CommitData) ([]scalarWrite, error) {
	supplied := []struct {
		field string
		value *string
	}{
		{"lesson_status", data.LessonStatus},
		{"completion_status", data.CompletionStatus},
		{"success_status", data.SuccessStatus},
		{"location", data.Location},
		{"entry", data.Entry},
		{"exit", data.Exit},
		{"credit", data.Credit},
		{"mode", data.Mode},
		{"score_raw", data.ScoreRaw},
		{"score_scaled", data.ScoreScaled},
		{"session_time", data.SessionTime},
		{"suspend_data", data.SuspendData},
	}

	var writes []scalarWrite
	for _, s := range supplied {
		if s.value == nil {
			continue
		}
		element, ok := strategy.ElementFor(s.field)
		if !ok {
			return nil, &InvalidCmiElementError{Element: s.field, Reason: "not part of the data model"}
		}
		if err := strategy.ValidateElement(element, *s.value); err != nil {
			return nil, err
		}
		writes = append(writes, scalarWrite{field: s.field, element: element, value: *s.value})
	}
	return writes, nil
}

func applyScalar(session *models.ScormSession, field, value string) {
	switch field {
	case "lesson_status":
		session.LessonStatus = value
	case "completion_status":
		session.CompletionStatus = value
	case "success_status":
		session.SuccessStatus = value
	case "location":
		session.Location = value
	case "entry":
		session.Entry = value
	case "exit":
		session.Exit = value
	case "credit":
		session.Credit = value
	case "mode":
		session.Mode = value
	case "score_raw":
		f, _ := strconv.ParseFloat(value, 64)
		session.ScoreRaw = &f
	case "score_scaled":
		f, _ := strconv.ParseFloat(value, 64)
		session.ScoreScaled = &f
	case "session_time":
		session.SessionTime = value
	case "suspend_data":
		session.SuspendData = value
	}
}

// NewInteraction builds the persistable record for one interaction delta,
// filling the documented defaults for missing optional fields.
func NewInteraction(sessionID uint, d InteractionDelta, commitTime time.Time, encodeList func([]string) string) models.ScormInteraction {
	record := models.ScormInteraction{
		SessionID:       sessionID,
		InteractionID:   d.ID,
		Type:            d.Type,
		Description:     d.Description,
		LearnerResponse: encodeList(d.LearnerResponse),
		CorrectResponse: encodeList(d.CorrectResponse),
		Result:          d.Result,
		Weighting:       d.Weighting,
		Latency:         d.Latency,
		Timestamp:       commitTime,
		ObjectiveIDs:    encodeList(d.ObjectiveIDs),
	}
	if record.Type == "" {
		record.Type = "choice"
	}
	if record.Result == "" {
		record.Result = "neutral"
	}
	if d.Timestamp != nil {
		record.Timestamp = *d.Timestamp
	}
	return record
}
