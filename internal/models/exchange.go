package models

import (
	"fmt"
)

// NeutralGuild is the distinguished owner name for unclaimed territory.
// It must never be treated as a combatant by any analysis stage.
const NeutralGuild = "None"

// ExchangeEvent records that a territory changed hands at a point in time.
// Territory and Guild are indices into the parallel lookup arrays of the
// ExchangeData that owns the event, keeping long histories compact.
type ExchangeEvent struct {
	Unix      int64 `json:"t"`
	Territory int   `json:"terr"`
	Guild     int   `json:"guild"`
}

// TerritoryEvent is the per-territory projection of an ExchangeEvent; the
// territory index is implied by its position in ExchangeStore.TerritoryEvents.
type TerritoryEvent struct {
	Unix  int64 `json:"t"`
	Guild int   `json:"guild"`
}

// ExchangeData holds the raw event log together with its lookup arrays.
// Events MUST be sorted ascending by Unix; every binary search and linear
// scan downstream relies on that ordering.
type ExchangeData struct {
	Territories []string        `json:"territories"`
	Guilds      []string        `json:"guilds"`
	Prefixes    []string        `json:"prefixes"`
	Events      []ExchangeEvent `json:"events"`
}

// ExchangeStore is the input contract of the analysis pipeline: the global
// event log plus per-territory time-sorted sub-lists, index-aligned to
// Data.Territories.
type ExchangeStore struct {
	Data            ExchangeData     `json:"data"`
	TerritoryEvents [][]TerritoryEvent `json:"territoryEvents"`
}

// GuildName resolves a guild index, returning NeutralGuild for out-of-range
// indices so a stale index never fails a whole batch.
func (s *ExchangeStore) GuildName(i int) string {
	if i < 0 || i >= len(s.Data.Guilds) {
		return NeutralGuild
	}
	return s.Data.Guilds[i]
}

// GuildPrefix resolves a guild's short tag, falling back to the full name.
func (s *ExchangeStore) GuildPrefix(i int) string {
	if i < 0 || i >= len(s.Data.Prefixes) || s.Data.Prefixes[i] == "" {
		return s.GuildName(i)
	}
	return s.Data.Prefixes[i]
}

// TerritoryName resolves a territory index.
func (s *ExchangeStore) TerritoryName(i int) string {
	if i < 0 || i >= len(s.Data.Territories) {
		return ""
	}
	return s.Data.Territories[i]
}

// IsNeutral reports whether a guild index refers to the unclaimed owner.
func (s *ExchangeStore) IsNeutral(i int) bool {
	return s.GuildName(i) == NeutralGuild
}

// Validate checks the caller contract: events globally sorted ascending by
// time and all indices in range. It does not attempt recovery; stores built
// through the snapshot package always pass.
func (s *ExchangeStore) Validate() error {
	var prev int64
	for i, ev := range s.Data.Events {
		if ev.Unix < prev {
			return fmt.Errorf("events not sorted: index %d (t=%d) after t=%d", i, ev.Unix, prev)
		}
		prev = ev.Unix
		if ev.Territory < 0 || ev.Territory >= len(s.Data.Territories) {
			return fmt.Errorf("event %d: territory index %d out of range", i, ev.Territory)
		}
		if ev.Guild < 0 || ev.Guild >= len(s.Data.Guilds) {
			return fmt.Errorf("event %d: guild index %d out of range", i, ev.Guild)
		}
	}
	if len(s.TerritoryEvents) != 0 && len(s.TerritoryEvents) != len(s.Data.Territories) {
		return fmt.Errorf("territoryEvents length %d does not match %d territories",
			len(s.TerritoryEvents), len(s.Data.Territories))
	}
	return nil
}
