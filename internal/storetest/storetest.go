// Package storetest holds a behavioural suite shared by every store.Repository backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises repo, which must be empty.
func Run(t *testing.T, repo store.Repository) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SeedDefaults(ctx, repo))
	require.NoError(t, repo.Seed(ctx, []store.Resident{{Name: "Moved Out", Unit: "E505", Phone: "+1", Active: false}}, nil))

	t.Run("lookup is case insensitive", func(t *testing.T) {
		r, err := repo.LookupResident(ctx, " john  DOE ", "a101")
		require.NoError(t, err)
		assert.Equal(t, "John Doe", r.Name)
		assert.Equal(t, "+1234567890", r.Phone)
	})

	t.Run("unknown and inactive residents are not found", func(t *testing.T) {
		var nf *core.NotFoundError
		_, err := repo.LookupResident(ctx, "John Doe", "B202")
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "resident", nf.Kind)

		_, err = repo.LookupResident(ctx, "Moved Out", "E505")
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("vacancies sorted", func(t *testing.T) {
		units, err := repo.ListVacancies(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"C303", "D404"}, units)
	})

	t.Run("tickets append in order", func(t *testing.T) {
		first, err := repo.AppendTicket(ctx, store.Ticket{Unit: "A101", Description: "leaking sink"})
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		_, err = repo.AppendTicket(ctx, store.Ticket{Description: "broken light"})
		require.NoError(t, err)

		tickets, err := repo.ListTickets(ctx)
		require.NoError(t, err)
		require.Len(t, tickets, 2)
		assert.Equal(t, first.ID, tickets[0].ID)
		assert.Equal(t, "leaking sink", tickets[0].Description)
		assert.Equal(t, "broken light", tickets[1].Description)
	})

	t.Run("visits recorded", func(t *testing.T) {
		v, err := repo.RecordVisit(ctx, store.Visit{ResidentName: "Jane Smith", Unit: "B202", VisitorName: "Bob", Reason: "dinner"})
		require.NoError(t, err)
		assert.Equal(t, "visit", v.Kind)

		visits, err := repo.ListVisits(ctx)
		require.NoError(t, err)
		require.Len(t, visits, 1)
		assert.Equal(t, "Bob", visits[0].VisitorName)
		assert.Equal(t, v.ID, visits[0].ID)
	})
}
