// Package filter holds a page's reporting window: a preset range or a custom
// start/end pair. Every mutation writes through to the page's namespaced
// store before returning.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/derickschaefer/kpiboard/internal/model"
	"github.com/derickschaefer/kpiboard/internal/store"
	"github.com/derickschaefer/kpiboard/internal/util"
)

// Preset is a reporting window, stored in lower case.
type Preset string

const (
	Today     Preset = "today"
	Yesterday Preset = "yesterday"
	Daily     Preset = "daily"
	Weekly    Preset = "weekly"
	Monthly   Preset = "monthly"
	MTD       Preset = "mtd"
	YTD       Preset = "ytd"
	Custom    Preset = "custom"
)

// Default is the preset used when nothing has been persisted.
const Default = YTD

// Presets lists every preset in menu order.
var Presets = []Preset{Today, Yesterday, Daily, Weekly, Monthly, MTD, YTD, Custom}

// ParsePreset accepts any casing ("YTD", "Weekly", "custom").
func ParsePreset(s string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Presets {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q: expected one of %s", s, presetList())
}

func presetList() string {
	names := make([]string, len(Presets))
	for i, p := range Presets {
		names[i] = string(p)
	}
	return strings.Join(names, "|")
}

// ─── Wire casing ──────────────────────────────────────────────────────────────

// Casing selects how a preset is spelled in the filter_type query parameter.
type Casing string

const (
	CasingServer Casing = "server" // Today, Weekly, MTD, YTD, custom
	CasingLower  Casing = "lower"
	CasingUpper  Casing = "upper"
)

var serverCasing = map[Preset]string{
	Today:     "Today",
	Yesterday: "Yesterday",
	Daily:     "Daily",
	Weekly:    "Weekly",
	Monthly:   "Monthly",
	MTD:       "MTD",
	YTD:       "YTD",
	Custom:    "custom",
}

// Wire returns the filter_type value for p.
func (p Preset) Wire(c Casing) string {
	switch c {
	case CasingLower:
		return string(p)
	case CasingUpper:
		return strings.ToUpper(string(p))
	default:
		if s, ok := serverCasing[p]; ok {
			return s
		}
		return string(p)
	}
}

// ─── Selection ────────────────────────────────────────────────────────────────

// Selection is an immutable snapshot of the filter.
type Selection struct {
	Preset Preset `json:"preset" validate:"required,oneof=today yesterday daily weekly monthly mtd ytd custom"`
	Start  string `json:"start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	End    string `json:"end,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

var validate = validator.New()

// Validate checks the preset and date formats. A custom selection with a
// missing bound is valid; it is just not Complete.
func (s Selection) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	if s.Preset != Custom && (s.Start != "" || s.End != "") {
		return fmt.Errorf("invalid filter: dates are only allowed with %q", Custom)
	}
	return nil
}

// Complete reports whether a request may be issued for s.
func (s Selection) Complete() bool {
	if s.Preset != Custom {
		return true
	}
	return s.Start != "" && s.End != ""
}

// Key is the filter identity used to discard stale responses.
func (s Selection) Key() string {
	if s.Preset != Custom {
		return string(s.Preset)
	}
	return "custom:" + s.Start + ".." + s.End
}

func (s Selection) String() string {
	if s.Preset != Custom {
		return strings.ToUpper(string(s.Preset))
	}
	return fmt.Sprintf("custom %s → %s", orDash(s.Start), orDash(s.End))
}

func orDash(s string) string {
	if s == "" {
		return "..."
	}
	return s
}

// ─── State ────────────────────────────────────────────────────────────────────

// Keys within a page namespace.
const (
	keyFilter = "filter"
	keyStart  = "start"
	keyEnd    = "end"
)

// State is the mutable filter for one page.
type State struct {
	kv  store.KV
	sel Selection
}

// New returns a State at the default preset. kv should already be
// namespaced to the page; call Restore to load persisted values.
func New(kv store.KV) *State {
	return &State{kv: kv, sel: Selection{Preset: Default}}
}

// Selection returns the current snapshot.
func (s *State) Selection() Selection {
	return s.sel
}

// Restore loads the persisted selection, falling back to the default preset
// with empty dates when nothing usable is stored.
func (s *State) Restore() error {
	s.sel = Selection{Preset: Default}

	raw, ok, err := s.kv.Get(keyFilter)
	if err != nil {
		return fmt.Errorf("restoring filter: %w", err)
	}
	if !ok {
		return nil
	}
	p, err := ParsePreset(raw)
	if err != nil {
		return nil
	}
	s.sel.Preset = p
	if p != Custom {
		return nil
	}
	for key, dst := range map[string]*string{keyStart: &s.sel.Start, keyEnd: &s.sel.End} {
		v, ok, err := s.kv.Get(key)
		if err != nil {
			return fmt.Errorf("restoring filter: %w", err)
		}
		if ok {
			if _, err := util.ParseDate(v); err == nil {
				*dst = v
			}
		}
	}
	return nil
}

// Select sets the preset and reports whether a fetch is now due. Leaving
// custom clears both dates in memory and in storage.
func (s *State) Select(p Preset) (bool, error) {
	s.sel.Preset = p
	if err := s.kv.Put(keyFilter, string(p)); err != nil {
		return false, fmt.Errorf("saving filter: %w", err)
	}
	if p != Custom {
		s.sel.Start, s.sel.End = "", ""
		if err := s.clearDates(); err != nil {
			return false, err
		}
	}
	return s.sel.Complete(), nil
}

// SetCustomStart sets the inclusive start date.
func (s *State) SetCustomStart(d time.Time) (bool, error) {
	return s.setDate(keyStart, &s.sel.Start, d)
}

// SetCustomEnd sets the inclusive end date.
func (s *State) SetCustomEnd(d time.Time) (bool, error) {
	return s.setDate(keyEnd, &s.sel.End, d)
}

func (s *State) setDate(key string, dst *string, d time.Time) (bool, error) {
	if s.sel.Preset != Custom {
		return false, model.ErrNotCustom
	}
	v := util.FormatDate(d)
	if err := s.kv.Put(key, v); err != nil {
		return false, fmt.Errorf("saving %s date: %w", key, err)
	}
	*dst = v
	return s.sel.Complete(), nil
}

// Reset removes every persisted key and returns to the default preset.
func (s *State) Reset() error {
	s.sel = Selection{Preset: Default}
	if err := s.kv.Delete(keyFilter); err != nil {
		return fmt.Errorf("resetting filter: %w", err)
	}
	return s.clearDates()
}

func (s *State) clearDates() error {
	for _, k := range []string{keyStart, keyEnd} {
		if err := s.kv.Delete(k); err != nil {
			return fmt.Errorf("clearing %s date: %w", k, err)
		}
	}
	return nil
}
