package scorm

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// LaunchEntry is one launchable SCO, in manifest order
type LaunchEntry struct {
	Identifier      string   `json:"identifier"`
	Title           string   `json:"title"`
	LaunchPath      string   `json:"launch_path"` // relative to the descriptor directory
	Prerequisites   string   `json:"prerequisites,omitempty"`
	MasteryScore    *float64 `json:"mastery_score,omitempty"`
	MaxTimeAllowed  string   `json:"max_time_allowed,omitempty"`
	TimeLimitAction string   `json:"time_limit_action,omitempty"`
}

// Manifest is the structured, queryable view of a package descriptor
type Manifest struct {
	Version Version       `json:"version"`
	Title   string        `json:"title"`
	Entries []LaunchEntry `json:"entries"`
}

// Primary returns the primary launch entry: the first entry in manifest order
func (m *Manifest) Primary() *LaunchEntry {
	if len(m.Entries) == 0 {
		return nil
	}
	return &m.Entries[0]
}

// Wire structs for imsmanifest.xml. encoding/xml matches on local names, so
// the adlcp: prefixed elements land in the plain fields below.
type manifestXML struct {
	XMLName  xml.Name `xml:"manifest"`
	Metadata struct {
		Schema        string `xml:"schema"`
		SchemaVersion string `xml:"schemaversion"`
	} `xml:"metadata"`
	Organizations struct {
		Default       string            `xml:"default,attr"`
		Organizations []organizationXML `xml:"organization"`
	} `xml:"organizations"`
	Resources struct {
		Resources []resourceXML `xml:"resource"`
	} `xml:"resources"`
}

type organizationXML struct {
	Identifier string    `xml:"identifier,attr"`
	Title      string    `xml:"title"`
	Items      []itemXML `xml:"item"`
}

type itemXML struct {
	Identifier      string    `xml:"identifier,attr"`
	IdentifierRef   string    `xml:"identifierref,attr"`
	Title           string    `xml:"title"`
	Prerequisites   string    `xml:"prerequisites"`
	MasteryScore    string    `xml:"masteryscore"`
	MaxTimeAllowed  string    `xml:"maxtimeallowed"`
	TimeLimitAction string    `xml:"timelimitaction"`
	Items           []itemXML `xml:"item"`
}

type resourceXML struct {
	Identifier string `xml:"identifier,attr"`
	Href       string `xml:"href,attr"`
	ScormType  string `xml:"scormtype,attr"`
}

// ParseManifest turns a raw imsmanifest.xml into a Manifest. Entry order is
// preserved from the source document; the first entry is what the player
// launches by default.
func ParseManifest(raw []byte) (*Manifest, error) {
	var doc manifestXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}

	// Old 1.2 manifests frequently omit schemaversion entirely
	rawVersion := strings.TrimSpace(doc.Metadata.SchemaVersion)
	if rawVersion == "" {
		rawVersion = "1.2"
	}
	version, err := CanonicalVersion(rawVersion)
	if err != nil {
		return nil, err
	}

	resources := make(map[string]resourceXML, len(doc.Resources.Resources))
	for _, r := range doc.Resources.Resources {
		resources[r.Identifier] = r
	}

	org := pickOrganization(&doc)
	if org == nil {
		return nil, fmt.Errorf("%w: manifest has no organization", ErrNoLaunchableEntries)
	}

	manifest := &Manifest{Version: version, Title: strings.TrimSpace(org.Title)}
	collectEntries(org.Items, resources, &manifest.Entries)
	if len(manifest.Entries) == 0 {
		return nil, ErrNoLaunchableEntries
	}
	return manifest, nil
}

// pickOrganization honors the default attribute and falls back to the first one
func pickOrganization(doc *manifestXML) *organizationXML {
	orgs := doc.Organizations.Organizations
	if len(orgs) == 0 {
		return nil
	}
	if def := doc.Organizations.Default; def != "" {
		for i := range orgs {
			if orgs[i].Identifier == def {
				return &orgs[i]
			}
		}
	}
	return &orgs[0]
}

// collectEntries flattens the item tree depth-first, keeping document order.
// Only items that reference a resource with an href are launchable.
func collectEntries(items []itemXML, resources map[string]resourceXML, out *[]LaunchEntry) {
	for _, item := range items {
		if item.IdentifierRef != "" {
			if res, ok := resources[item.IdentifierRef]; ok && res.Href != "" {
				entry := LaunchEntry{
					Identifier:      item.Identifier,
					Title:           strings.TrimSpace(item.Title),
					LaunchPath:      res.Href,
					Prerequisites:   strings.TrimSpace(item.Prerequisites),
					MaxTimeAllowed:  strings.TrimSpace(item.MaxTimeAllowed),
					TimeLimitAction: strings.TrimSpace(item.TimeLimitAction),
				}
				if ms := strings.TrimSpace(item.MasteryScore); ms != "" {
					if score, err := strconv.ParseFloat(ms, 64); err == nil {
						entry.MasteryScore = &score
					}
				}
				*out = append(*out, entry)
			}
		}
		collectEntries(item.Items, resources, out)
	}
}
