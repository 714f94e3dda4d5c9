package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/corveth/warmap/internal/detect"
	"github.com/corveth/warmap/internal/region"
	"github.com/corveth/warmap/internal/snapshot"
)

// Feeds a synthetic two-guild siege plus background noise through the full
// detection pipeline and prints what comes out. Useful for eyeballing tuning
// changes without Kafka, Redis, or a live territory feed.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	raw := syntheticHistory()
	store := snapshot.BuildStore(raw, 0)

	detector := detect.New(detect.DefaultConfig(), region.NewClassifier(), logger)
	conflicts := detector.DetectConflicts(store)
	wars := detector.GroupWars(conflicts)

	fmt.Printf("events: %d  conflicts: %d  wars: %d\n\n", len(raw), len(conflicts), len(wars))

	for _, c := range conflicts {
		fmt.Printf("%s  %s\n", c.ID, c.Name)
		fmt.Printf("  exchanges=%d peak=%d/h region=%s territories=%d confidence=%.2f\n",
			c.TotalExchanges, c.PeakHourly, c.PrimaryRegion, c.TerritoriesInvolved, c.Confidence)
		for i, f := range c.Factions {
			names := make([]string, 0, len(f.Guilds))
			for _, g := range f.Guilds {
				names = append(names, g.Name)
			}
			fmt.Printf("  faction %d (taken=%d lost=%d): %v\n", i+1, f.TotalTaken, f.TotalLost, names)
		}
		fmt.Println()
	}

	for _, w := range wars {
		fmt.Printf("%s  %s  battles=%d exchanges=%d\n", w.ID, w.Name, len(w.Conflicts), w.TotalExchanges)
	}
}

// syntheticHistory builds a week of quiet ownership drift with one intense
// six-hour siege in the middle: two guilds trading a cluster of Gavel
// territories back and forth.
func syntheticHistory() []snapshot.RawExchange {
	var raw []snapshot.RawExchange
	base := int64(1700000000)

	territories := []string{
		"Llevigar", "Llevigar Plains", "Olux", "Olux Plains",
		"Gelibord", "Cinfras", "Cinfras County", "Thanos",
	}

	// Background drift: one lonely capture every six hours.
	for i := 0; i < 28; i++ {
		raw = append(raw, snapshot.RawExchange{
			Unix:      base + int64(i)*21600,
			Territory: "Detlas",
			Guild:     fmt.Sprintf("Wanderers%d", i%3),
			Prefix:    fmt.Sprintf("WND%d", i%3),
		})
	}

	// The siege: day 3, six hours of back-and-forth every few minutes.
	siegeStart := base + 3*86400
	attackers := [2]string{"Aequitas", "TheNarwhals"}
	prefixes := [2]string{"Aeq", "Nar"}
	for i := 0; i < 160; i++ {
		side := i % 2
		raw = append(raw, snapshot.RawExchange{
			Unix:      siegeStart + int64(i)*135,
			Territory: territories[i%len(territories)],
			Guild:     attackers[side],
			Prefix:    prefixes[side],
		})
	}

	return raw
}
