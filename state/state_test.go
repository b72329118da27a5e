package state

import (
	"errors"
	"testing"

	"github.com/hupe1980/concierge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSetGetUnset(t *testing.T) {
	s := New()
	require.NoError(t, s.Set(FieldResidentName, "John Doe"))
	require.NoError(t, s.Set(FieldVacancies, []string{"C303", "D404"}))

	v, ok := s.Get(FieldResidentName)
	assert.True(t, ok)
	assert.Equal(t, "John Doe", v)
	assert.Equal(t, "John Doe", s.GetString(FieldResidentName))
	assert.Equal(t, "", s.GetString(FieldVacancies))

	list, _ := s.Get(FieldVacancies)
	list.([]string)[0] = "mutated"
	again, _ := s.Get(FieldVacancies)
	assert.Equal(t, []string{"C303", "D404"}, again)

	s.Unset(FieldResidentName)
	_, ok = s.Get(FieldResidentName)
	assert.False(t, ok)
}

func TestSetRejectsUnknownFieldsAndTypes(t *testing.T) {
	s := New()
	var vErr *core.ValidationError

	err := s.Set("favourite_colour", "blue")
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "favourite_colour", vErr.Field)

	err = s.Set(FieldUnit, 101)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, FieldUnit, vErr.Field)
}

func TestSummarizeShowsUnsetFieldsAsNull(t *testing.T) {
	s := New(FieldUnit, FieldResidentName)
	require.NoError(t, s.Set(FieldUnit, "A101"))

	assert.Equal(t, "resident_name: null\nunit: A101\n", s.Summarize())

	parsed, err := ParseSummary(s.Summarize())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{FieldUnit: "A101"}, parsed)
}

func TestSummarizeQuotesAmbiguousStrings(t *testing.T) {
	s := New()
	require.NoError(t, s.Set(FieldUnit, "101"))
	require.NoError(t, s.Set(FieldVisitReason, "null"))
	require.NoError(t, s.Set(FieldResidentName, ""))

	parsed, err := ParseSummary(s.Summarize())
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), parsed)
}

func TestHandoffBookkeeping(t *testing.T) {
	s := New()
	s.Begin("main")
	assert.Equal(t, "main", s.CurrentAgent())
	assert.Equal(t, "", s.PreviousAgent())

	rec := s.RecordHandoff("main", "visitor", "caller is a visitor")
	assert.Equal(t, "visitor", s.CurrentAgent())
	assert.Equal(t, "main", s.PreviousAgent())
	assert.Equal(t, "main", rec.From)

	s.RecordHandoff("visitor", "main", "")
	assert.Equal(t, "main", s.CurrentAgent())
	assert.Equal(t, "visitor", s.PreviousAgent())
	require.Len(t, s.Handoffs(), 2)
	assert.Equal(t, "visitor", s.Handoffs()[1].From)

	s.RecordHandoff("main", "main", "")
	assert.Equal(t, "main", s.CurrentAgent())
	assert.Equal(t, "visitor", s.PreviousAgent(), "self-transition keeps the distinct prior agent")
	assert.Len(t, s.Handoffs(), 3)
}

func TestSummarizeRoundTripProperty(t *testing.T) {
	word := rapid.OneOf(
		rapid.StringMatching(`[A-Za-z0-9 ,.'\-]{0,24}`),
		rapid.SampledFrom([]string{"null", "true", "~", "0x1F", "1e3", "- item", "a: b", " padded ", "multi\nline", "#hash"}),
	)

	rapid.Check(t, func(t *rapid.T) {
		s := New()
		for _, f := range s.Fields() {
			switch rapid.IntRange(0, 2).Draw(t, "kind_"+f) {
			case 0:
				// unset
			case 1:
				if err := s.Set(f, word.Draw(t, "value_"+f)); err != nil {
					t.Fatalf("set %s: %v", f, err)
				}
			case 2:
				list := rapid.SliceOfN(word, 0, 4).Draw(t, "list_"+f)
				if err := s.Set(f, list); err != nil {
					t.Fatalf("set %s: %v", f, err)
				}
			}
		}

		parsed, err := ParseSummary(s.Summarize())
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		assert.Equal(t, s.Snapshot(), parsed)
	})
}
