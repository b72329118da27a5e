package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/internal/util"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/store"
)

// Notifier delivers a short text message (SMS in production) to a contact.
type Notifier interface {
	Notify(ctx context.Context, to, message string) error
}

// Door actuates a building door.
type Door interface {
	Open(ctx context.Context, door string) error
}

// Notification is a message accepted by LogNotifier.
type Notification struct {
	To      string
	Message string
}

// LogNotifier logs notifications and keeps them in an outbox.
type LogNotifier struct {
	Logger logging.Logger

	mu     sync.Mutex
	outbox []Notification
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, to, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logging.OrNoOp(n.Logger).Info("action.notify", "to", to, "message", message)
	n.mu.Lock()
	n.outbox = append(n.outbox, Notification{To: to, Message: message})
	n.mu.Unlock()
	return nil
}

// Sent returns delivered notifications in order.
func (n *LogNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.outbox...)
}

// LogDoor logs door openings and counts them.
type LogDoor struct {
	Logger logging.Logger

	mu     sync.Mutex
	opened []string
}

// Open implements Door.
func (d *LogDoor) Open(ctx context.Context, door string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logging.OrNoOp(d.Logger).Info("action.door.open", "door", door)
	d.mu.Lock()
	d.opened = append(d.opened, door)
	d.mu.Unlock()
	return nil
}

// Opened returns the doors opened so far.
func (d *LogDoor) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

// Dependencies wires the default providers.
type Dependencies struct {
	Repo     store.Repository
	Notifier Notifier
	Door     Door
	// OwnerContact receives rental inquiry notifications.
	OwnerContact string
}

// NewDefaultSet builds the provider set used by the doorman agents.
func NewDefaultSet(deps Dependencies) Set {
	if deps.OwnerContact == "" {
		deps.OwnerContact = "OWNER"
	}
	return Set{
		CheckIdentity:  identityCheck(deps.Repo),
		NotifyResident: residentNotifier(deps.Repo, deps.Notifier),
		OpenDoor:       doorOpener(deps.Door),
		ListVacancies:  vacancyLister(deps.Repo, deps.Notifier, deps.OwnerContact),
		LogTicket:      ticketLogger(deps.Repo),
		RecordVisit:    visitRecorder(deps.Repo),
	}
}

func identityCheck(repo store.Repository) Provider {
	return ProviderFunc(func(ctx context.Context, args map[string]any) (Result, error) {
		name, unit := util.StringArg(args, "name"), util.StringArg(args, "unit")
		r, err := repo.LookupResident(ctx, name, unit)
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return Result{Success: false, Message: "Resident not found. Please check the name and unit number."}, nil
		}
		if err != nil {
			return Result{}, err
		}
		return Result{
			Success: true,
			Message: fmt.Sprintf("Resident %s in unit %s verified.", r.Name, r.Unit),
			Data:    map[string]any{"name": r.Name, "unit": r.Unit, "phone": r.Phone},
		}, nil
	})
}

func residentNotifier(repo store.Repository, n Notifier) Provider {
	return ProviderFunc(func(ctx context.Context, args map[string]any) (Result, error) {
		name, unit := util.StringArg(args, "name"), util.StringArg(args, "unit")
		r, err := repo.LookupResident(ctx, name, unit)
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return Result{Success: false, Message: "Resident not found. Please check the name and unit number."}, nil
		}
		if err != nil {
			return Result{}, err
		}
		if err := n.Notify(ctx, r.Phone, util.StringArg(args, "message")); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: fmt.Sprintf("Resident %s has been notified.", r.Name)}, nil
	})
}

func doorOpener(d Door) Provider {
	return ProviderFunc(func(ctx context.Context, args map[string]any) (Result, error) {
		door := util.StringArg(args, "door")
		if door == "" {
			door = "main"
		}
		if err := d.Open(ctx, door); err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: fmt.Sprintf("The %s door is open.", door)}, nil
	})
}

func vacancyLister(repo store.Repository, n Notifier, owner string) Provider {
	return ProviderFunc(func(ctx context.Context, _ map[string]any) (Result, error) {
		units, err := repo.ListVacancies(ctx)
		if err != nil {
			return Result{}, err
		}
		if len(units) == 0 {
			return Result{Success: true, Message: "There are no vacant units right now.", Data: map[string]any{"units": units}}, nil
		}
		if err := n.Notify(ctx, owner, "New rental inquiry received"); err != nil {
			return Result{}, err
		}
		return Result{
			Success: true,
			Message: fmt.Sprintf("Available units: %s. The property manager has been notified.", strings.Join(units, ", ")),
			Data:    map[string]any{"units": units},
		}, nil
	})
}

func ticketLogger(repo store.Repository) Provider {
	return ProviderFunc(func(ctx context.Context, args map[string]any) (Result, error) {
		t, err := repo.AppendTicket(ctx, store.Ticket{
			Unit:        util.StringArg(args, "unit"),
			Resident:    util.StringArg(args, "resident"),
			Description: util.StringArg(args, "description"),
		})
		if err != nil {
			return Result{}, err
		}
		return Result{
			Success: true,
			Message: "Request logged. The maintenance team will contact you shortly.",
			Data:    map[string]any{"ticket_id": t.ID},
		}, nil
	})
}

func visitRecorder(repo store.Repository) Provider {
	return ProviderFunc(func(ctx context.Context, args map[string]any) (Result, error) {
		v, err := repo.RecordVisit(ctx, store.Visit{
			ResidentName: util.StringArg(args, "resident"),
			Unit:         util.StringArg(args, "unit"),
			VisitorName:  util.StringArg(args, "visitor"),
			Reason:       util.StringArg(args, "reason"),
			Kind:         util.StringArg(args, "kind"),
		})
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, Message: "Visit logged.", Data: map[string]any{"visit_id": v.ID}}, nil
	})
}
