package filter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derickschaefer/kpiboard/internal/filter"
	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/store"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDefaultIsYTD(t *testing.T) {
	st := filter.New(store.NewMemory())
	require.NoError(t, st.Restore())
	assert.Equal(t, filter.Selection{Preset: filter.YTD}, st.Selection())
}

func TestParsePresetAnyCase(t *testing.T) {
	for in, want := range map[string]filter.Preset{
		"YTD":    filter.YTD,
		"Weekly": filter.Weekly,
		"custom": filter.Custom,
		" mtd ":  filter.MTD,
	} {
		got, err := filter.ParsePreset(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := filter.ParsePreset("quarterly")
	assert.Error(t, err)
}

func TestWireCasing(t *testing.T) {
	assert.Equal(t, "YTD", filter.YTD.Wire(filter.CasingServer))
	assert.Equal(t, "Weekly", filter.Weekly.Wire(filter.CasingServer))
	assert.Equal(t, "custom", filter.Custom.Wire(filter.CasingServer))
	assert.Equal(t, "mtd", filter.MTD.Wire(filter.CasingLower))
	assert.Equal(t, "TODAY", filter.Today.Wire(filter.CasingUpper))
}

func TestSelectWritesThrough(t *testing.T) {
	kv := store.NewMemory()
	st := filter.New(store.Namespace(kv, "risk"))

	due, err := st.Select(filter.Weekly)
	require.NoError(t, err)
	assert.True(t, due)

	v, ok, _ := kv.Get("risk_filter")
	assert.True(t, ok)
	assert.Equal(t, "weekly", v)
}

func TestCustomGatesFetchUntilBothDates(t *testing.T) {
	kv := store.NewMemory()
	st := filter.New(store.Namespace(kv, "dashboard"))

	due, err := st.Select(filter.Custom)
	require.NoError(t, err)
	assert.False(t, due, "custom without dates must not fetch")

	due, err = st.SetCustomStart(day("2024-01-01"))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = st.SetCustomEnd(day("2024-01-31"))
	require.NoError(t, err)
	assert.True(t, due)

	sel := st.Selection()
	assert.True(t, sel.Complete())
	assert.Equal(t, "custom:2024-01-01..2024-01-31", sel.Key())

	v, _, _ := kv.Get("dashboard_start")
	assert.Equal(t, "2024-01-01", v)
}

func TestLeavingCustomClearsDates(t *testing.T) {
	kv := store.NewMemory()
	st := filter.New(store.Namespace(kv, "dashboard"))
	_, _ = st.Select(filter.Custom)
	_, _ = st.SetCustomStart(day("2024-01-01"))
	_, _ = st.SetCustomEnd(day("2024-01-31"))

	_, err := st.Select(filter.MTD)
	require.NoError(t, err)
	assert.Equal(t, filter.Selection{Preset: filter.MTD}, st.Selection())
	_, ok, _ := kv.Get("dashboard_start")
	assert.False(t, ok)
	_, ok, _ = kv.Get("dashboard_end")
	assert.False(t, ok)
}

func TestDatesRequireCustom(t *testing.T) {
	st := filter.New(store.NewMemory())
	_, err := st.SetCustomStart(day("2024-01-01"))
	assert.ErrorIs(t, err, model.ErrNotCustom)
}

func TestRestoreRoundTrip(t *testing.T) {
	kv := store.NewMemory()
	a := filter.New(store.Namespace(kv, "customers"))
	_, _ = a.Select(filter.Custom)
	_, _ = a.SetCustomStart(day("2024-02-01"))

	b := filter.New(store.Namespace(kv, "customers"))
	require.NoError(t, b.Restore())
	assert.Equal(t, filter.Selection{Preset: filter.Custom, Start: "2024-02-01"}, b.Selection())
	assert.False(t, b.Selection().Complete())
}

func TestRestoreIgnoresGarbage(t *testing.T) {
	kv := store.NewMemory()
	_ = kv.Put("p_filter", "fortnightly")
	st := filter.New(store.Namespace(kv, "p"))
	require.NoError(t, st.Restore())
	assert.Equal(t, filter.YTD, st.Selection().Preset)

	_ = kv.Put("p_filter", "custom")
	_ = kv.Put("p_start", "not-a-date")
	require.NoError(t, st.Restore())
	assert.Equal(t, filter.Selection{Preset: filter.Custom}, st.Selection())
}

func TestReset(t *testing.T) {
	kv := store.NewMemory()
	st := filter.New(store.Namespace(kv, "p"))
	_, _ = st.Select(filter.Custom)
	_, _ = st.SetCustomEnd(day("2024-05-05"))

	require.NoError(t, st.Reset())
	assert.Equal(t, filter.Selection{Preset: filter.YTD}, st.Selection())
	assert.Empty(t, kv.Keys("p_"))
}

func TestSelectionValidate(t *testing.T) {
	assert.NoError(t, filter.Selection{Preset: filter.YTD}.Validate())
	assert.NoError(t, filter.Selection{Preset: filter.Custom, Start: "2024-01-01"}.Validate())
	assert.Error(t, filter.Selection{Preset: "quarterly"}.Validate())
	assert.Error(t, filter.Selection{Preset: filter.Custom, Start: "01/02/2024"}.Validate())
	assert.Error(t, filter.Selection{Preset: filter.YTD, Start: "2024-01-01"}.Validate())
}
