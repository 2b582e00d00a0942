package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Person is the data structure for one person in the registry. Name, LastName, PersonalCode and
// PhoneNumber are mandatory, all other fields are optional and are stored as null when absent.
type Person struct {
	ID               string  `json:"id"               db:"id"`
	Name             string  `json:"name"             db:"name"`
	LastName         string  `json:"lastName"         db:"last_name"`
	PersonalCode     string  `json:"personalCode"     db:"personal_code"`
	PhoneNumber      string  `json:"phoneNumber"      db:"phone_number"`
	Address          *string `json:"address"          db:"address"`
	AdditionalInfo   *string `json:"additionalInfo"   db:"additional_info"`
	DiseaseOrProblem *string `json:"diseaseOrProblem" db:"disease_or_problem"`
	Status           *string `json:"status"           db:"status"`
	EmergencyNote    *string `json:"emergencyNote"    db:"emergency_note"`
	CreatedAt        string  `json:"createdAt"        db:"created_at"`
}

// NewID returns a fresh record id made of the creation time in milliseconds and a random suffix.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// timestampLayout is the fixed-width UTC layout of stored CreatedAt values, with milliseconds.
// Values in this layout sort chronologically as plain strings.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t the way CreatedAt values are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp parses a CreatedAt value in any RFC 3339 form.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// CanonicalTimestamp rewrites an RFC 3339 value in the stored layout. Values that do not parse are
// returned unchanged.
func CanonicalTimestamp(s string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return Timestamp(t)
}

// Normalize turns empty optional fields into nil so that they are persisted as null.
func (p *Person) Normalize() {
	for _, field := range []**string{&p.Address, &p.AdditionalInfo, &p.DiseaseOrProblem, &p.Status, &p.EmergencyNote} {
		if *field != nil && **field == "" {
			*field = nil
		}
	}
}

// Clone returns a deep copy of the person, optional fields included.
func (p Person) Clone() Person {
	clone := p
	clone.Address = cloneString(p.Address)
	clone.AdditionalInfo = cloneString(p.AdditionalInfo)
	clone.DiseaseOrProblem = cloneString(p.DiseaseOrProblem)
	clone.Status = cloneString(p.Status)
	clone.EmergencyNote = cloneString(p.EmergencyNote)
	return clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ValidationError lists the mandatory fields that are missing from a person.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Validate checks that all mandatory fields contain more than whitespace.
func (p *Person) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"name", p.Name},
		{"lastName", p.LastName},
		{"personalCode", p.PersonalCode},
		{"phoneNumber", p.PhoneNumber},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// StringPtr returns a pointer to s, or nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
