// Package snapshot builds dense ownership state from sparse exchange events.
// It produces the ExchangeStore consumed by the detection pipeline and offers
// point-in-time reconstruction over it.
package snapshot

import (
	"sort"

	"github.com/corveth/warmap/internal/models"
)

// RawExchange is an un-interned ownership change as it arrives from the event
// log or the ingestor: territory and guild by name.
type RawExchange struct {
	Unix      int64
	Territory string
	Guild     string
	Prefix    string
}

// BuildStore interns names, sorts events ascending by time, caps the history
// at maxEvents (keeping the most recent) and derives the per-territory
// sub-lists. maxEvents <= 0 means unbounded.
func BuildStore(raw []RawExchange, maxEvents int) *models.ExchangeStore {
	events := make([]RawExchange, len(raw))
	copy(events, raw)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Unix < events[j].Unix })

	if maxEvents > 0 && len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}

	store := &models.ExchangeStore{}
	territoryIdx := make(map[string]int)
	guildIdx := make(map[string]int)

	// The neutral owner always occupies a slot so stores round-trip cleanly
	// even when the capped window contains no unclaimed territory.
	guildIdx[models.NeutralGuild] = 0
	store.Data.Guilds = append(store.Data.Guilds, models.NeutralGuild)
	store.Data.Prefixes = append(store.Data.Prefixes, models.NeutralGuild)

	for _, ev := range events {
		ti, ok := territoryIdx[ev.Territory]
		if !ok {
			ti = len(store.Data.Territories)
			territoryIdx[ev.Territory] = ti
			store.Data.Territories = append(store.Data.Territories, ev.Territory)
		}
		gi, ok := guildIdx[ev.Guild]
		if !ok {
			gi = len(store.Data.Guilds)
			guildIdx[ev.Guild] = gi
			store.Data.Guilds = append(store.Data.Guilds, ev.Guild)
			prefix := ev.Prefix
			if prefix == "" {
				prefix = ev.Guild
			}
			store.Data.Prefixes = append(store.Data.Prefixes, prefix)
		}
		store.Data.Events = append(store.Data.Events, models.ExchangeEvent{
			Unix:      ev.Unix,
			Territory: ti,
			Guild:     gi,
		})
	}

	store.TerritoryEvents = make([][]models.TerritoryEvent, len(store.Data.Territories))
	for _, ev := range store.Data.Events {
		store.TerritoryEvents[ev.Territory] = append(store.TerritoryEvents[ev.Territory],
			models.TerritoryEvent{Unix: ev.Unix, Guild: ev.Guild})
	}

	return store
}

// OwnerAt returns the guild index owning territory ti strictly before atUnix,
// using binary search over the territory's sorted sub-list. ok is false when
// no event precedes atUnix.
func OwnerAt(store *models.ExchangeStore, ti int, atUnix int64) (int, bool) {
	if ti < 0 || ti >= len(store.TerritoryEvents) {
		return 0, false
	}
	evs := store.TerritoryEvents[ti]
	// First event at or after atUnix; the one before it is the owner.
	i := sort.Search(len(evs), func(k int) bool { return evs[k].Unix >= atUnix })
	if i == 0 {
		return 0, false
	}
	return evs[i-1].Guild, true
}

// ReconstructAt builds the dense territory -> guild ownership map at a point
// in time. Territories with no prior event are omitted.
func ReconstructAt(store *models.ExchangeStore, atUnix int64) map[int]int {
	owners := make(map[int]int, len(store.TerritoryEvents))
	for ti := range store.TerritoryEvents {
		if gi, ok := OwnerAt(store, ti, atUnix); ok {
			owners[ti] = gi
		}
	}
	return owners
}

// Bounds returns the first and last event timestamps, ok=false for an empty
// store.
func Bounds(store *models.ExchangeStore) (first, last int64, ok bool) {
	if len(store.Data.Events) == 0 {
		return 0, 0, false
	}
	return store.Data.Events[0].Unix, store.Data.Events[len(store.Data.Events)-1].Unix, true
}

// Gap is an interval of the history with no events at all.
type Gap struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Gaps returns every interval longer than minSeconds with no recorded events,
// useful for flagging collection outages before trusting an analysis window.
func Gaps(store *models.ExchangeStore, minSeconds int64) []Gap {
	var gaps []Gap
	events := store.Data.Events
	for i := 1; i < len(events); i++ {
		if events[i].Unix-events[i-1].Unix > minSeconds {
			gaps = append(gaps, Gap{Start: events[i-1].Unix, End: events[i].Unix})
		}
	}
	return gaps
}
