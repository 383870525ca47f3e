package scorm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalVersion(t *testing.T) {
	cases := map[string]Version{
		"1.2":              ScormV12,
		"SCORM 1.2":        ScormV12,
		"scorm_12":         ScormV12,
		"2004":             Scorm2004,
		"scorm2004":        Scorm2004,
		"2004 3rd Edition": Scorm2004,
		"2004 4th Edition": Scorm2004,
		"CAM 1.3":          Scorm2004,
	}
	for raw, want := range cases {
		got, err := CanonicalVersion(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	// Different spellings of the same dialect canonicalize identically
	a, err := CanonicalVersion("2004 3rd Edition")
	require.NoError(t, err)
	b, err := CanonicalVersion("scorm2004")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalVersionUnknown(t *testing.T) {
	_, err := CanonicalVersion("unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
	assert.Contains(t, err.Error(), "scorm2004") // accepted spellings are listed
}

func TestValidateElementEnum(t *testing.T) {
	s := StrategyFor(ScormV12)

	assert.NoError(t, s.ValidateElement("cmi.core.lesson_status", "passed"))
	assert.NoError(t, s.ValidateElement("cmi.core.lesson_status", "not attempted"))

	err := s.ValidateElement("cmi.core.lesson_status", "finished")
	require.Error(t, err)
	var cmiErr *InvalidCmiElementError
	require.True(t, errors.As(err, &cmiErr))
	assert.Equal(t, "cmi.core.lesson_status", cmiErr.Element)
}

func TestValidateElementRange(t *testing.T) {
	s := StrategyFor(ScormV12)

	assert.NoError(t, s.ValidateElement("cmi.core.score.raw", "85"))
	assert.NoError(t, s.ValidateElement("cmi.core.score.raw", "0"))
	assert.NoError(t, s.ValidateElement("cmi.core.score.raw", "100"))

	for _, bad := range []string{"150", "-1", "ninety"} {
		err := s.ValidateElement("cmi.core.score.raw", bad)
		require.Error(t, err, bad)
		var cmiErr *InvalidCmiElementError
		require.True(t, errors.As(err, &cmiErr))
		assert.Equal(t, "cmi.core.score.raw", cmiErr.Element)
	}

	s2004 := StrategyFor(Scorm2004)
	assert.NoError(t, s2004.ValidateElement("cmi.score.scaled", "-0.5"))
	assert.Error(t, s2004.ValidateElement("cmi.score.scaled", "1.5"))
}

func TestValidateElementMaxLength(t *testing.T) {
	s := StrategyFor(ScormV12)

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'x'
	}
	assert.Error(t, s.ValidateElement("cmi.core.lesson_location", string(long)))
	assert.NoError(t, s.ValidateElement("cmi.core.lesson_location", "page-4"))
}

func TestValidateElementTimeinterval(t *testing.T) {
	s := StrategyFor(Scorm2004)

	for _, ok := range []string{"PT1H30M5S", "PT0.5S", "PT90M", "P1DT2H"} {
		assert.NoError(t, s.ValidateElement("cmi.session_time", ok), ok)
	}
	for _, bad := range []string{"", "P", "PT", "1:30:00", "PT1H30"} {
		assert.Error(t, s.ValidateElement("cmi.session_time", bad), bad)
	}
}

func TestValidateElementUnknownOrReadOnly(t *testing.T) {
	s12 := StrategyFor(ScormV12)
	s2004 := StrategyFor(Scorm2004)

	// Not part of the model at all
	assert.Error(t, s12.ValidateElement("cmi.no_such_thing", "x"))
	// 2004-only element against the 1.2 model
	assert.Error(t, s12.ValidateElement("cmi.completion_status", "completed"))
	// Read-only elements fail regardless of value
	assert.Error(t, s12.ValidateElement("cmi.core.total_time", "PT1H"))
	assert.Error(t, s2004.ValidateElement("cmi.total_time", "PT1H"))
	assert.Error(t, s2004.ValidateElement("cmi.learner_id", "student-1"))
}

func TestAPIConfiguration(t *testing.T) {
	assert.Equal(t, "API", StrategyFor(ScormV12).APIConfiguration().Adapter)
	assert.Equal(t, "API_1484_11", StrategyFor(Scorm2004).APIConfiguration().Adapter)
}

func TestMapElementRoundTrip(t *testing.T) {
	for _, s := range []Strategy{StrategyFor(ScormV12), StrategyFor(Scorm2004)} {
		for name := range s.DataModel() {
			field, ok := s.MapElement(name)
			if !ok {
				continue
			}
			back, ok := s.ElementFor(field)
			require.True(t, ok, field)
			assert.Equal(t, name, back)
		}
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]float64{
		"PT1H30M5S": 5405,
		"PT0.5S":    0.5,
		"PT90M":     5400,
		"P1DT2H":    93600,
	}
	for raw, want := range cases {
		got, err := ParseDuration(raw)
		require.NoError(t, err, raw)
		assert.InDelta(t, want, got, 0.001, raw)
	}

	_, err := ParseDuration("ninety minutes")
	assert.Error(t, err)
}
