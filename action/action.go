// Package action defines the side-effecting capabilities agents reach through
// tools: identity checks, notifications, door control, listings and ticket
// logging. Providers are looked up by action name in a Set.
package action

import (
	"context"
	"fmt"
	"sort"
)

// Result is the outcome reported by a provider. Success=false is a normal,
// speakable outcome (e.g. "resident not found"), not an error.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// String returns the speakable message.
func (r Result) String() string { return r.Message }

// Provider performs one external action.
type Provider interface {
	Invoke(ctx context.Context, args map[string]any) (Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, args map[string]any) (Result, error)

// Invoke implements Provider.
func (f ProviderFunc) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	return f(ctx, args)
}

// Set maps action names to providers.
type Set map[string]Provider

// Get returns the provider registered for name.
func (s Set) Get(name string) (Provider, bool) {
	p, ok := s[name]
	return p, ok && p != nil
}

// Names returns the registered action names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Require returns an error naming every action in names without a provider.
func (s Set) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := s.Get(n); !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing action providers: %v", missing)
	}
	return nil
}

// Action names used by the doorman tools.
const (
	CheckIdentity  = "check_identity"
	NotifyResident = "notify_resident"
	OpenDoor       = "open_door"
	ListVacancies  = "list_vacancies"
	LogTicket      = "log_ticket"
	RecordVisit    = "record_visit"
)
