// Package store defines the building records repository consulted by the
// action providers: resident identities, vacant units, maintenance tickets
// and the visit log. Backends live in the memory, sqlite and redis subpackages.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/concierge/core"
)

// Resident is a verified occupant of a unit.
type Resident struct {
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Phone  string `json:"phone"`
	Active bool   `json:"active"`
}

// Ticket is a logged maintenance request.
type Ticket struct {
	ID          string    `json:"id"`
	Unit        string    `json:"unit,omitempty"`
	Resident    string    `json:"resident,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Visit is an entry of the visit log.
type Visit struct {
	ID           string    `json:"id"`
	ResidentName string    `json:"resident_name"`
	Unit         string    `json:"unit"`
	VisitorName  string    `json:"visitor_name,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Kind         string    `json:"kind"` // visit | delivery
	At           time.Time `json:"at"`
}

// Repository is implemented by every backend.
type Repository interface {
	// LookupResident returns the active resident registered for name and unit
	// or a *core.NotFoundError.
	LookupResident(ctx context.Context, name, unit string) (*Resident, error)
	ListVacancies(ctx context.Context) ([]string, error)
	AppendTicket(ctx context.Context, t Ticket) (Ticket, error)
	ListTickets(ctx context.Context) ([]Ticket, error)
	RecordVisit(ctx context.Context, v Visit) (Visit, error)
	ListVisits(ctx context.Context) ([]Visit, error)
	// Seed inserts residents and vacant units, replacing existing entries with the same key.
	Seed(ctx context.Context, residents []Resident, vacancies []string) error
	Close() error
}

// DefaultResidents returns the demo building occupants.
func DefaultResidents() []Resident {
	return []Resident{
		{Name: "John Doe", Unit: "A101", Phone: "+1234567890", Active: true},
		{Name: "Jane Smith", Unit: "B202", Phone: "+0987654321", Active: true},
	}
}

// DefaultVacancies returns the demo vacant units.
func DefaultVacancies() []string { return []string{"C303", "D404"} }

// SeedDefaults loads the demo data into r.
func SeedDefaults(ctx context.Context, r Repository) error {
	return r.Seed(ctx, DefaultResidents(), DefaultVacancies())
}

// ResidentKey normalizes a name/unit pair for case-insensitive lookups.
func ResidentKey(name, unit string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " ")) + "|" + strings.ToUpper(strings.TrimSpace(unit))
}

// ErrResidentNotFound builds the NotFoundError for a failed identity lookup.
func ErrResidentNotFound(name, unit string) error {
	return &core.NotFoundError{Kind: "resident", Key: strings.TrimSpace(name) + " " + strings.TrimSpace(unit)}
}

// Prepare fills ID and timestamp defaults on a ticket.
func (t Ticket) Prepare() Ticket {
	if t.ID == "" {
		t.ID = core.NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return t
}

// Prepare fills ID, kind and timestamp defaults on a visit.
func (v Visit) Prepare() Visit {
	if v.ID == "" {
		v.ID = core.NewID()
	}
	if v.Kind == "" {
		v.Kind = "visit"
	}
	if v.At.IsZero() {
		v.At = time.Now().UTC()
	}
	return v
}
