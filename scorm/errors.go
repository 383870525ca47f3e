package scorm

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the ingestion pipeline and the runtime protocol.
// Ingestion-stage errors are captured into the job result by the ingestor;
// runtime errors go back to the caller directly.
var (
	ErrCorruptArchive      = errors.New("archive cannot be opened")
	ErrMissingDescriptor   = errors.New("imsmanifest.xml not found in archive")
	ErrExtractionFailed    = errors.New("archive extraction failed")
	ErrManifestParse       = errors.New("manifest could not be parsed")
	ErrNoLaunchableEntries = errors.New("manifest contains no launchable entries")
	ErrUnsupportedVersion  = errors.New("unsupported SCORM version")
)

// InvalidCmiElementError names the CMI element that failed data model validation
type InvalidCmiElementError struct {
	Element string
	Reason  string
}

func (e *InvalidCmiElementError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid CMI element %s", e.Element)
	}
	return fmt.Sprintf("invalid CMI element %s: %s", e.Element, e.Reason)
}

// ErrorCode maps an ingestion error to the stable code stored in job results
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCorruptArchive):
		return "CorruptArchive"
	case errors.Is(err, ErrMissingDescriptor):
		return "MissingDescriptor"
	case errors.Is(err, ErrExtractionFailed):
		return "ExtractionFailed"
	case errors.Is(err, ErrNoLaunchableEntries):
		return "NoLaunchableEntries"
	case errors.Is(err, ErrUnsupportedVersion):
		return "UnsupportedVersion"
	case errors.Is(err, ErrManifestParse):
		return "ManifestParseError"
	default:
		return "InternalError"
	}
}
