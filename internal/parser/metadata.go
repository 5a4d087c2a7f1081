package parser

import (
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

// Metadata contains context about the file being parsed.
//
// Create instances using NewMetadata(filePath, detectedAt). Optional hints
// (property, year, fallback category, calendar) are set afterwards; parsers
// fall back to sensible defaults when a hint is empty.
type Metadata struct {
	filePath   string
	propertyID string          // Property the export belongs to, if known
	source     domain.Source   // Revenue source override
	year       int             // Year for sheets whose rows carry only month names
	fallback   domain.Category // Category when no rule matches
	calendar   *domain.Calendar
	detectedAt time.Time
}

// NewMetadata creates a new Metadata instance with validated required fields.
// Returns an error if filePath is empty or detectedAt is zero.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &Metadata{
		filePath:   filePath,
		detectedAt: detectedAt,
	}, nil
}

// FilePath returns the file path
func (m *Metadata) FilePath() string {
	if m == nil {
		return ""
	}
	return m.filePath
}

// PropertyID returns the property hint, or domain.UnknownProperty
func (m *Metadata) PropertyID() string {
	if m == nil || m.propertyID == "" {
		return domain.UnknownProperty
	}
	return m.propertyID
}

// Source returns the source override, or def when unset
func (m *Metadata) Source(def domain.Source) domain.Source {
	if m == nil || m.source == "" {
		return def
	}
	return m.source
}

// Year returns the year hint, or the detection year
func (m *Metadata) Year() int {
	if m == nil {
		return time.Now().Year()
	}
	if m.year == 0 {
		return m.detectedAt.Year()
	}
	return m.year
}

// HasYear reports whether a year hint was set explicitly
func (m *Metadata) HasYear() bool {
	return m != nil && m.year != 0
}

// Fallback returns the fallback category, defaulting to Other
func (m *Metadata) Fallback() domain.Category {
	if m == nil || m.fallback == "" {
		return domain.CategoryOther
	}
	return m.fallback
}

// Calendar returns the calendar dates are pinned to, defaulting to UTC
func (m *Metadata) Calendar() *domain.Calendar {
	if m == nil || m.calendar == nil {
		return domain.CalendarIn(time.UTC)
	}
	return m.calendar
}

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time {
	return m.detectedAt
}

// SetPropertyID sets the property hint
func (m *Metadata) SetPropertyID(id string) {
	m.propertyID = id
}

// SetSource sets the revenue source override
func (m *Metadata) SetSource(source domain.Source) {
	m.source = source
}

// SetYear sets the year hint
func (m *Metadata) SetYear(year int) {
	m.year = year
}

// SetFallback sets the fallback category
func (m *Metadata) SetFallback(c domain.Category) {
	m.fallback = c
}

// SetCalendar sets the calendar
func (m *Metadata) SetCalendar(c *domain.Calendar) {
	m.calendar = c
}

// FileInfo returns a formatted file path string for error messages
func FileInfo(meta *Metadata) string {
	if meta != nil && meta.FilePath() != "" {
		return fmt.Sprintf(" from %s", meta.FilePath())
	}
	return ""
}
