package scorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"scormhub/models"
)

// Version is the canonical dialect of a package's tracking data model
type Version string

const (
	ScormV12  Version = "1.2"
	Scorm2004 Version = "2004"
)

// acceptedSpellings maps the spellings seen in manifests and upload forms to
// their canonical version. Matching is case-insensitive with spaces and
// underscores stripped.
var acceptedSpellings = map[string]Version{
	"1.2":                 ScormV12,
	"scorm1.2":            ScormV12,
	"scorm12":             ScormV12,
	"2004":                Scorm2004,
	"scorm2004":           Scorm2004,
	"20043rdedition":      Scorm2004,
	"20044thedition":      Scorm2004,
	"scorm20043rdedition": Scorm2004,
	"scorm20044thedition": Scorm2004,
	"cam1.3":              Scorm2004,
	"cam13":               Scorm2004,
}

// CanonicalVersion resolves a raw version spelling to one of the two supported
// dialects. Unknown spellings fail with the accepted list in the error message.
func CanonicalVersion(raw string) (Version, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	if v, ok := acceptedSpellings[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q (accepted: 1.2, scorm1.2, 2004, scorm2004, 2004 3rd edition, 2004 4th edition, cam 1.3)", ErrUnsupportedVersion, raw)
}

// Element describes one entry of a dialect's CMI data model
type Element struct {
	Type      string // string, decimal, integer, timeinterval, datetime
	MaxLength int
	Enum      []string
	HasRange  bool
	Min, Max  float64
	Writable  bool
}

// APIConfiguration tells the player which runtime adapter to bind
type APIConfiguration struct {
	Adapter               string `json:"adapter"` // window object the content looks for
	InitializeFn          string `json:"initialize_fn"`
	FinishFn              string `json:"finish_fn"`
	SetValueFn            string `json:"set_value_fn"`
	GetValueFn            string `json:"get_value_fn"`
	CommitFn              string `json:"commit_fn"`
	CommitIntervalSeconds int    `json:"commit_interval_seconds"`
}

// Strategy is the closed, two-case dialect abstraction. Instances are
// stateless; everything is table-driven off the dialect's data model.
type Strategy interface {
	Version() Version
	APIConfiguration() APIConfiguration
	DataModel() map[string]Element
	// MapElement resolves a data model element name to the canonical session
	// field it feeds (lesson_status, score_raw, suspend_data, ...).
	MapElement(name string) (string, bool)
	// ElementFor is the inverse: canonical field to this dialect's element name
	ElementFor(field string) (string, bool)
	ValidateElement(name, value string) error
	IsCompleted(s *models.ScormSession) bool
	IsPassed(s *models.ScormSession) bool
}

// StrategyFor returns the strategy for a canonical version. The variant set is
// closed: anything but the two known dialects panics, callers canonicalize first.
func StrategyFor(v Version) Strategy {
	switch v {
	case ScormV12:
		return scorm12Strategy{}
	case Scorm2004:
		return scorm2004Strategy{}
	}
	panic("scorm: unknown version " + string(v))
}

var (
	// PT1H30M5.2S and friends. At least one designator is required.
	timeintervalPattern = regexp.MustCompile(`^P(?:\d+Y)?(?:\d+M)?(?:\d+D)?(?:T(?:\d+H)?(?:\d+M)?(?:\d+(?:\.\d{1,2})?S)?)?$`)
	// 2024-05-01T10:30:00.5Z with optional time, fraction and zone
	datetimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}(?::\d{2}(?:\.\d{1,6})?)?)?(?:Z|[+-]\d{2}:\d{2})?$`)
	integerPattern  = regexp.MustCompile(`^\d+$`)
)

// validateAgainst checks a value against one data model. Shared by both dialects.
func validateAgainst(model map[string]Element, name, value string) error {
	el, ok := model[name]
	if !ok {
		return &InvalidCmiElementError{Element: name, Reason: "not part of the data model"}
	}
	if !el.Writable {
		return &InvalidCmiElementError{Element: name, Reason: "element is read-only"}
	}

	switch el.Type {
	case "string":
		if el.MaxLength > 0 && len(value) > el.MaxLength {
			return &InvalidCmiElementError{Element: name, Reason: fmt.Sprintf("exceeds max length %d", el.MaxLength)}
		}
		if len(el.Enum) > 0 {
			for _, allowed := range el.Enum {
				if value == allowed {
					return nil
				}
			}
			return &InvalidCmiElementError{Element: name, Reason: fmt.Sprintf("%q not in vocabulary", value)}
		}
	case "decimal":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return &InvalidCmiElementError{Element: name, Reason: "not a decimal"}
		}
		if el.HasRange && (f < el.Min || f > el.Max) {
			return &InvalidCmiElementError{Element: name, Reason: fmt.Sprintf("out of range [%g,%g]", el.Min, el.Max)}
		}
	case "integer":
		if !integerPattern.MatchString(value) {
			return &InvalidCmiElementError{Element: name, Reason: "not an integer"}
		}
	case "timeinterval":
		if value == "P" || value == "PT" || !timeintervalPattern.MatchString(value) {
			return &InvalidCmiElementError{Element: name, Reason: "not an ISO-8601 duration"}
		}
	case "datetime":
		if !datetimePattern.MatchString(value) {
			return &InvalidCmiElementError{Element: name, Reason: "not an ISO-8601 timestamp"}
		}
	}
	return nil
}

// mapFrom builds the element->field and field->element lookups once per dialect
func reverse(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// ---------------------------------------------------------------------------
// SCORM 1.2

type scorm12Strategy struct{}

var scorm12Model = map[string]Element{
	"cmi.core.lesson_status":   {Type: "string", Enum: []string{"passed", "completed", "failed", "incomplete", "browsed", "not attempted"}, Writable: true},
	"cmi.core.lesson_location": {Type: "string", MaxLength: 255, Writable: true},
	"cmi.core.score.raw":       {Type: "decimal", HasRange: true, Min: 0, Max: 100, Writable: true},
	"cmi.core.score.max":       {Type: "decimal", HasRange: true, Min: 0, Max: 100, Writable: true},
	"cmi.core.score.min":       {Type: "decimal", HasRange: true, Min: 0, Max: 100, Writable: true},
	"cmi.core.session_time":    {Type: "timeinterval", Writable: true},
	"cmi.core.total_time":      {Type: "timeinterval", Writable: false}, // LMS-maintained
	"cmi.core.entry":           {Type: "string", Enum: []string{"ab-initio", "resume", ""}, Writable: true},
	"cmi.core.exit":            {Type: "string", Enum: []string{"time-out", "suspend", "logout", ""}, Writable: true},
	"cmi.core.credit":          {Type: "string", Enum: []string{"credit", "no-credit"}, Writable: true},
	"cmi.core.lesson_mode":     {Type: "string", Enum: []string{"browse", "normal", "review"}, Writable: true},
	"cmi.core.student_id":      {Type: "string", MaxLength: 255, Writable: false},
	"cmi.core.student_name":    {Type: "string", MaxLength: 255, Writable: false},
	"cmi.suspend_data":         {Type: "string", MaxLength: 4096, Writable: true},
	"cmi.launch_data":          {Type: "string", MaxLength: 4096, Writable: false},
	"cmi.comments":             {Type: "string", MaxLength: 4096, Writable: true},
}

var scorm12Fields = map[string]string{
	"cmi.core.lesson_status":   "lesson_status",
	"cmi.core.lesson_location": "location",
	"cmi.core.score.raw":       "score_raw",
	"cmi.core.session_time":    "session_time",
	"cmi.core.entry":           "entry",
	"cmi.core.exit":            "exit",
	"cmi.core.credit":          "credit",
	"cmi.core.lesson_mode":     "mode",
	"cmi.suspend_data":         "suspend_data",
}

var scorm12Elements = reverse(scorm12Fields)

func (scorm12Strategy) Version() Version { return ScormV12 }

func (scorm12Strategy) APIConfiguration() APIConfiguration {
	return APIConfiguration{
		Adapter:               "API",
		InitializeFn:          "LMSInitialize",
		FinishFn:              "LMSFinish",
		SetValueFn:            "LMSSetValue",
		GetValueFn:            "LMSGetValue",
		CommitFn:              "LMSCommit",
		CommitIntervalSeconds: 30,
	}
}

func (scorm12Strategy) DataModel() map[string]Element { return scorm12Model }

func (scorm12Strategy) MapElement(name string) (string, bool) {
	f, ok := scorm12Fields[name]
	return f, ok
}

func (scorm12Strategy) ElementFor(field string) (string, bool) {
	name, ok := scorm12Elements[field]
	return name, ok
}

func (scorm12Strategy) ValidateElement(name, value string) error {
	return validateAgainst(scorm12Model, name, value)
}

// 1.2 folds completion and success into the combined lesson status
func (scorm12Strategy) IsCompleted(s *models.ScormSession) bool {
	return s.LessonStatus == "completed" || s.LessonStatus == "passed"
}

func (scorm12Strategy) IsPassed(s *models.ScormSession) bool {
	return s.LessonStatus == "passed"
}

// ---------------------------------------------------------------------------
// SCORM 2004

type scorm2004Strategy struct{}

var scorm2004Model = map[string]Element{
	"cmi.completion_status":    {Type: "string", Enum: []string{"completed", "incomplete", "not attempted", "unknown"}, Writable: true},
	"cmi.success_status":       {Type: "string", Enum: []string{"passed", "failed", "unknown"}, Writable: true},
	"cmi.score.raw":            {Type: "decimal", HasRange: true, Min: 0, Max: 100, Writable: true},
	"cmi.score.scaled":         {Type: "decimal", HasRange: true, Min: -1, Max: 1, Writable: true},
	"cmi.score.max":            {Type: "decimal", Writable: true},
	"cmi.score.min":            {Type: "decimal", Writable: true},
	"cmi.location":             {Type: "string", MaxLength: 1000, Writable: true},
	"cmi.session_time":         {Type: "timeinterval", Writable: true},
	"cmi.total_time":           {Type: "timeinterval", Writable: false}, // LMS-maintained
	"cmi.entry":                {Type: "string", Enum: []string{"ab-initio", "resume", ""}, Writable: true},
	"cmi.exit":                 {Type: "string", Enum: []string{"time-out", "suspend", "logout", "normal", ""}, Writable: true},
	"cmi.credit":               {Type: "string", Enum: []string{"credit", "no-credit"}, Writable: true},
	"cmi.mode":                 {Type: "string", Enum: []string{"browse", "normal", "review"}, Writable: true},
	"cmi.suspend_data":         {Type: "string", MaxLength: 64000, Writable: true},
	"cmi.progress_measure":     {Type: "decimal", HasRange: true, Min: 0, Max: 1, Writable: true},
	"cmi.completion_threshold": {Type: "decimal", HasRange: true, Min: 0, Max: 1, Writable: false},
	"cmi.learner_id":           {Type: "string", MaxLength: 4000, Writable: false},
	"cmi.learner_name":         {Type: "string", MaxLength: 250, Writable: false},
}

var scorm2004Fields = map[string]string{
	"cmi.completion_status": "completion_status",
	"cmi.success_status":    "success_status",
	"cmi.score.raw":         "score_raw",
	"cmi.score.scaled":      "score_scaled",
	"cmi.location":          "location",
	"cmi.session_time":      "session_time",
	"cmi.entry":             "entry",
	"cmi.exit":              "exit",
	"cmi.credit":            "credit",
	"cmi.mode":              "mode",
	"cmi.suspend_data":      "suspend_data",
}

var scorm2004Elements = reverse(scorm2004Fields)

func (scorm2004Strategy) Version() Version { return Scorm2004 }

func (scorm2004Strategy) APIConfiguration() APIConfiguration {
	return APIConfiguration{
		Adapter:               "API_1484_11",
		InitializeFn:          "Initialize",
		FinishFn:              "Terminate",
		SetValueFn:            "SetValue",
		GetValueFn:            "GetValue",
		CommitFn:              "Commit",
		CommitIntervalSeconds: 30,
	}
}

func (scorm2004Strategy) DataModel() map[string]Element { return scorm2004Model }

func (scorm2004Strategy) MapElement(name string) (string, bool) {
	f, ok := scorm2004Fields[name]
	return f, ok
}

func (scorm2004Strategy) ElementFor(field string) (string, bool) {
	name, ok := scorm2004Elements[field]
	return name, ok
}

func (scorm2004Strategy) ValidateElement(name, value string) error {
	return validateAgainst(scorm2004Model, name, value)
}

func (scorm2004Strategy) IsCompleted(s *models.ScormSession) bool {
	return s.CompletionStatus == "completed"
}

func (scorm2004Strategy) IsPassed(s *models.ScormSession) bool {
	return s.SuccessStatus == "passed"
}

// ParseDuration converts an ISO-8601 duration (as validated by the
// timeinterval rule) to seconds. Months and years use fixed 30/365 day
// approximations, which is far beyond any real session length anyway.
func ParseDuration(value string) (float64, error) {
	m := regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d{1,2})?)S)?)?$`).FindStringSubmatch(value)
	if m == nil || value == "P" || value == "PT" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", value)
	}
	parse := func(s string) float64 {
		if s == "" {
			return 0
		}
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	seconds := parse(m[1])*365*86400 +
		parse(m[2])*30*86400 +
		parse(m[3])*86400 +
		parse(m[4])*3600 +
		parse(m[5])*60 +
		parse(m[6])
	return seconds, nil
}
