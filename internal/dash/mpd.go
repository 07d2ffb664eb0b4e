package dash

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Type                      string   `xml:"type,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	BaseURL                   string   `xml:"BaseURL"`
	Periods                   []Period `xml:"Period"`
}

// GetMediaPresentationDuration returns the mediaPresentationDuration as a time.Duration.
func (m *MPD) GetMediaPresentationDuration() (time.Duration, error) {
	if m.MediaPresentationDuration == "" {
		return 0, nil
	}
	return ParseDuration(m.MediaPresentationDuration)
}

var durationPattern = regexp.MustCompile(`(\d+\.?\d*)(\w)`)

// ParseDuration parses an ISO 8601 duration string like "PT8S".
func ParseDuration(duration string) (time.Duration, error) {
	if !strings.HasPrefix(duration, "PT") {
		// Fallback for simple duration strings like "5s"
		return time.ParseDuration(duration)
	}

	duration = strings.TrimPrefix(duration, "PT")
	if duration == "" {
		return 0, nil
	}

	matches := durationPattern.FindAllStringSubmatch(duration, -1)
	if len(matches) == 0 {
		return 0, errors.New("invalid ISO 8601 duration format")
	}

	var totalDuration time.Duration
	for _, match := range matches {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			return 0, err
		}

		switch match[2] {
		case "H":
			totalDuration += time.Duration(value * float64(time.Hour))
		case "M":
			totalDuration += time.Duration(value * float64(time.Minute))
		case "S":
			totalDuration += time.Duration(value * float64(time.Second))
		default:
			return 0, errors.New("unsupported duration unit: " + match[2])
		}
	}

	return totalDuration, nil
}

// Period represents a media content period.
type Period struct {
	ID      string          `xml:"id,attr"`
	Start   string          `xml:"start,attr"`
	BaseURL string          `xml:"BaseURL"`
	Sets    []AdaptationSet `xml:"AdaptationSet"`
}

// AdaptationSet represents a set of interchangeable representations.
type AdaptationSet struct {
	ID              string           `xml:"id,attr"`
	ContentType     string           `xml:"contentType,attr"`
	Lang            string           `xml:"lang,attr,omitempty"`
	MimeType        string           `xml:"mimeType,attr"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentBase     *SegmentBase     `xml:"SegmentBase"`
	Representations []Representation `xml:"Representation"`
}

// Representation represents a specific media stream.
type Representation struct {
	ID          string       `xml:"id,attr"`
	Bandwidth   int          `xml:"bandwidth,attr"`
	Codecs      string       `xml:"codecs,attr"`
	MimeType    string       `xml:"mimeType,attr,omitempty"`
	Width       int          `xml:"width,attr,omitempty"`
	Height      int          `xml:"height,attr,omitempty"`
	BaseURL     string       `xml:"BaseURL"`
	SegmentBase *SegmentBase `xml:"SegmentBase"`
}

// SegmentBase locates the segment index of a single-file representation.
type SegmentBase struct {
	Timescale           uint32   `xml:"timescale,attr,omitempty"`
	IndexRange          string   `xml:"indexRange,attr,omitempty"`
	IndexRangeExact     bool     `xml:"indexRangeExact,attr,omitempty"`
	Initialization      *URLType `xml:"Initialization"`
	RepresentationIndex *URLType `xml:"RepresentationIndex"`
}

// GetInitialization returns the Initialization element, or nil.
func (sb *SegmentBase) GetInitialization() *URLType {
	if sb == nil {
		return nil
	}
	return sb.Initialization
}

// GetRepresentationIndex returns the RepresentationIndex element, or nil.
func (sb *SegmentBase) GetRepresentationIndex() *URLType {
	if sb == nil {
		return nil
	}
	return sb.RepresentationIndex
}

// GetIndexRange returns the indexRange attribute, or "".
func (sb *SegmentBase) GetIndexRange() string {
	if sb == nil {
		return ""
	}
	return sb.IndexRange
}

// URLType is the DASH URLType: an optional sourceURL plus an optional byte range.
type URLType struct {
	SourceURL string `xml:"sourceURL,attr,omitempty"`
	Range     string `xml:"range,attr,omitempty"`
}

// RepresentationDescription is everything a SegmentBase sequence needs to know
// about one representation.
type RepresentationDescription struct {
	ID string
	// BaseURLs is ordered from the outermost (manifest location) to the innermost
	// (Representation BaseURL).
	BaseURLs    []string
	SegmentBase *SegmentBase
}

// FindRepresentation returns the representation with the given id, or nil.
func (m *MPD) FindRepresentation(repID string) *Representation {
	for i := range m.Periods {
		for j := range m.Periods[i].Sets {
			as := &m.Periods[i].Sets[j]
			for k := range as.Representations {
				if as.Representations[k].ID == repID {
					return &as.Representations[k]
				}
			}
		}
	}
	return nil
}

// Describe builds the description of the representation repID. manifestURL is the
// final location the MPD was fetched from and heads the base URL chain.
func (m *MPD) Describe(manifestURL, repID string) (*RepresentationDescription, error) {
	for _, period := range m.Periods {
		for _, as := range period.Sets {
			for _, rep := range as.Representations {
				if rep.ID != repID {
					continue
				}

				chain := make([]string, 0, 5)
				for _, u := range []string{manifestURL, m.BaseURL, period.BaseURL, as.BaseURL, rep.BaseURL} {
					if u = strings.TrimSpace(u); u != "" {
						chain = append(chain, u)
					}
				}

				segmentBase := rep.SegmentBase
				if segmentBase == nil {
					segmentBase = as.SegmentBase
				}
				if segmentBase == nil {
					return nil, fmt.Errorf("representation '%s' does not use SegmentBase addressing", repID)
				}

				return &RepresentationDescription{
					ID:          rep.ID,
					BaseURLs:    chain,
					SegmentBase: segmentBase,
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("representation '%s' not found", repID)
}
