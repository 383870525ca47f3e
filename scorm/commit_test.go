package scorm

import (
	"errors"
	"testing"
	"time"

	"scormhub/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newSession() *models.ScormSession {
	return &models.ScormSession{
		Token:            "tok",
		Status:           models.SessionActive,
		LessonStatus:     "not attempted",
		CompletionStatus: "unknown",
		SuccessStatus:    "unknown",
	}
}

func TestApplyCommitPassedDialectA(t *testing.T) {
	session := newSession()
	now := time.Now()

	err := ApplyCommit(StrategyFor(ScormV12), session, &CommitData{
		LessonStatus: strPtr("passed"),
		ScoreRaw:     strPtr("92"),
		Location:     strPtr("page-9"),
		SessionTime:  strPtr("PT10M"),
	}, now)
	require.NoError(t, err)

	// 1.2 folds pass into completion
	assert.True(t, session.IsPassed)
	assert.True(t, session.IsCompleted)
	assert.Equal(t, models.SessionCompleted, session.Status)
	require.NotNil(t, session.ScoreRaw)
	assert.Equal(t, 92.0, *session.ScoreRaw)
	assert.Equal(t, "page-9", session.Location)
	assert.InDelta(t, 600, session.TotalTimeSeconds, 0.001)
	require.NotNil(t, session.CompletedAt)
	assert.Equal(t, now, *session.CompletedAt)
}

func TestApplyCommitDialectBSeparateStatuses(t *testing.T) {
	session := newSession()

	err := ApplyCommit(StrategyFor(Scorm2004), session, &CommitData{
		CompletionStatus: strPtr("completed"),
		SuccessStatus:    strPtr("failed"),
		ScoreScaled:      strPtr("0.4"),
	}, time.Now())
	require.NoError(t, err)

	assert.True(t, session.IsCompleted)
	assert.False(t, session.IsPassed)
	require.NotNil(t, session.ScoreScaled)
	assert.Equal(t, 0.4, *session.ScoreScaled)
}

func TestApplyCommitInvalidElementLeavesSessionUntouched(t *testing.T) {
	session := newSession()
	session.Location = "before"
	before := *session

	err := ApplyCommit(StrategyFor(ScormV12), session, &CommitData{
		Location: strPtr("after"),
		ScoreRaw: strPtr("150"), // out of [0,100]
	}, time.Now())

	require.Error(t, err)
	var cmiErr *InvalidCmiElementError
	require.True(t, errors.As(err, &cmiErr))
	assert.Equal(t, "cmi.core.score.raw", cmiErr.Element)

	// No partial commit: every field is as it was
	assert.Equal(t, before, *session)
}

func TestApplyCommitRejectsForeignDialectField(t *testing.T) {
	session := newSession()

	// scaled score does not exist in the 1.2 data model
	err := ApplyCommit(StrategyFor(ScormV12), session, &CommitData{
		ScoreScaled: strPtr("0.9"),
	}, time.Now())
	require.Error(t, err)
	var cmiErr *InvalidCmiElementError
	require.True(t, errors.As(err, &cmiErr))
}

func TestApplyCommitCompletedAtStampedOnce(t *testing.T) {
	session := newSession()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, ApplyCommit(StrategyFor(ScormV12), session, &CommitData{
		LessonStatus: strPtr("completed"),
	}, first))
	require.NotNil(t, session.CompletedAt)
	assert.Equal(t, first, *session.CompletedAt)

	// A later completing commit must not move the stamp
	require.NoError(t, ApplyCommit(StrategyFor(ScormV12), session, &CommitData{
		LessonStatus: strPtr("passed"),
	}, second))
	assert.Equal(t, first, *session.CompletedAt)
	assert.True(t, session.IsPassed)
}

func TestApplyCommitUsesSuppliedCompletionTime(t *testing.T) {
	session := newSession()
	supplied := time.Date(2026, 2, 14, 8, 30, 0, 0, time.UTC)

	require.NoError(t, ApplyCommit(StrategyFor(Scorm2004), session, &CommitData{
		CompletionStatus: strPtr("completed"),
		CompletedAt:      &supplied,
	}, time.Now()))
	require.NotNil(t, session.CompletedAt)
	assert.Equal(t, supplied, *session.CompletedAt)
}

func TestApplyCommitAccumulatesTotalTime(t *testing.T) {
	session := newSession()
	strategy := StrategyFor(Scorm2004)

	require.NoError(t, ApplyCommit(strategy, session, &CommitData{SessionTime: strPtr("PT10M")}, time.Now()))
	require.NoError(t, ApplyCommit(strategy, session, &CommitData{SessionTime: strPtr("PT5M30S")}, time.Now()))

	assert.InDelta(t, 930, session.TotalTimeSeconds, 0.001)
	assert.Equal(t, "PT5M30S", session.SessionTime) // last delta wins the summary field
}

func TestNewInteractionDefaults(t *testing.T) {
	commitTime := time.Now()
	encode := func(v []string) string {
		if len(v) == 0 {
			return "[]"
		}
		return v[0]
	}

	record := NewInteraction(7, InteractionDelta{ID: "q1"}, commitTime, encode)
	assert.Equal(t, uint(7), record.SessionID)
	assert.Equal(t, "q1", record.InteractionID)
	assert.Equal(t, "choice", record.Type)
	assert.Equal(t, "neutral", record.Result)
	assert.Equal(t, commitTime, record.Timestamp)

	supplied := commitTime.Add(-time.Minute)
	record = NewInteraction(7, InteractionDelta{
		ID: "q2", Type: "true-false", Result: "correct", Timestamp: &supplied,
	}, commitTime, encode)
	assert.Equal(t, "true-false", record.Type)
	assert.Equal(t, "correct", record.Result)
	assert.Equal(t, supplied, record.Timestamp)
}
