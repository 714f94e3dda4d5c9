// Package region maps territory names to world regions and derives
// per-territory resource values. Classification tries a hand-curated name
// catalog first and falls back to coordinate bounding boxes when territory
// location data has been registered.
package region

import (
	"strings"
	"sync"
)

// Region tags. Other is the sentinel for territories that match neither the
// catalog nor any bounding box; Global is used by the conflict characterizer
// for fighting spread across regions and is never returned by Classify.
const (
	Wynn          = "Wynn"
	Gavel         = "Gavel"
	Corkus        = "Corkus"
	SkyIslands    = "Sky Islands"
	MoltenHeights = "Molten Heights"
	Jungle        = "Jungle"
	Desert        = "Desert"
	Ocean         = "Ocean"
	Other         = "Other"
	Global        = "Global"
)

// namePatterns is the curated catalog: a territory whose normalized name
// contains one of these substrings belongs to the mapped region. Order
// matters only within a region; lookup scans regions in a fixed order so
// classification stays deterministic.
var namePatterns = []struct {
	region   string
	patterns []string
}{
	{Wynn, []string{
		"Detlas", "Ragni", "Nemract", "Elkurn", "Maltic", "Nivla",
		"Emerald Trail", "Plains", "Katoa Ranch", "Bremminglar",
		"Half Moon", "Pigmen Ravines",
	}},
	{Gavel, []string{
		"Llevigar", "Olux", "Gelibord", "Cinfras", "Kander", "Lexdale",
		"Thanos", "Eltom", "Cascade Falls", "Aldorei", "Efilim",
		"Light Forest", "Swamp", "Gylia", "Lutho",
	}},
	{Corkus, []string{
		"Corkus", "Avos", "Factory", "Fallen Village",
	}},
	{SkyIslands, []string{
		"Ahmsord", "Sky Island", "Kandon-Beda", "Astraulus", "Jofash",
		"Wybel Island",
	}},
	{MoltenHeights, []string{
		"Rodoroc", "Freyma", "Molten", "Lava Lake", "Dogun", "Crater",
	}},
	{Jungle, []string{
		"Troms", "Jungle", "Iboju", "Dernel", "Herb Cave", "Temple of Legends",
	}},
	{Desert, []string{
		"Almuj", "Desert", "Rymek", "Mummy", "Scorpion Nest", "Lusuco",
	}},
	{Ocean, []string{
		"Selchar", "Ocean", "Maro Peaks", "Zhight", "Skien", "Durum",
		"Mage Island", "Galleon",
	}},
}

// boundingBoxes is the coordinate fallback, in scan order. Boxes may overlap
// at the borders; the first hit wins.
var boundingBoxes = []struct {
	region                 string
	minX, maxX, minZ, maxZ float64
}{
	{SkyIslands, 800, 1600, -4800, -3400},
	{MoltenHeights, 1000, 1650, -5800, -4700},
	{Corkus, -1800, -1100, -3200, -2000},
	{Gavel, -2400, -400, -5900, -3000},
	{Jungle, -1000, -400, -3000, -2100},
	{Desert, 900, 1600, -2400, -1500},
	{Ocean, -1100, 200, -3500, -2200},
	{Wynn, -800, 1600, -2200, 200},
}

// Bounds describes a territory's axis-aligned footprint on the world map.
type Bounds struct {
	StartX float64
	StartZ float64
	EndX   float64
	EndZ   float64
}

// Resources holds the qualitative production tiers reported for a territory.
// Empty strings mean the territory does not produce that resource.
type Resources struct {
	Emeralds string
	Ore      string
	Wood     string
	Crops    string
	Fish     string
}

// TerritoryInfo is what callers register via SetTerritoryData.
type TerritoryInfo struct {
	Location  Bounds
	Resources Resources
}

// Classifier resolves territory names to regions and values. It owns its
// caches so independent instances (one per worker, one per test) never share
// state.
type Classifier struct {
	mu          sync.RWMutex
	territories map[string]TerritoryInfo
	regionCache map[string]string
	valueCache  map[string]float64
}

// NewClassifier returns a classifier with no registered territory data; the
// coordinate fallback stays inert until SetTerritoryData is called.
func NewClassifier() *Classifier {
	return &Classifier{
		territories: make(map[string]TerritoryInfo),
		regionCache: make(map[string]string),
		valueCache:  make(map[string]float64),
	}
}

// SetTerritoryData registers coordinate and resource data for territories and
// invalidates both caches: the region fallback path and the value lookup
// depend on it.
func (c *Classifier) SetTerritoryData(data map[string]TerritoryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.territories = make(map[string]TerritoryInfo, len(data))
	for name, info := range data {
		c.territories[normalizeName(name)] = info
	}
	c.regionCache = make(map[string]string)
	c.valueCache = make(map[string]float64)
}

// Classify maps a territory name to a region tag, falling back to the
// coordinate table and finally to Other.
func (c *Classifier) Classify(territory string) string {
	c.mu.RLock()
	if r, ok := c.regionCache[territory]; ok {
		c.mu.RUnlock()
		return r
	}
	c.mu.RUnlock()

	r := c.classify(territory)

	c.mu.Lock()
	c.regionCache[territory] = r
	c.mu.Unlock()
	return r
}

func (c *Classifier) classify(territory string) string {
	name := normalizeName(territory)

	for _, entry := range namePatterns {
		for _, p := range entry.patterns {
			if strings.Contains(name, p) {
				return entry.region
			}
		}
	}

	c.mu.RLock()
	info, ok := c.territories[name]
	c.mu.RUnlock()
	if ok {
		cx := (info.Location.StartX + info.Location.EndX) / 2
		cz := (info.Location.StartZ + info.Location.EndZ) / 2
		for _, box := range boundingBoxes {
			if cx >= box.minX && cx <= box.maxX && cz >= box.minZ && cz <= box.maxZ {
				return box.region
			}
		}
	}

	return Other
}

// Resource value weights per type. Emeralds dominate because they drive guild
// economy; fish and crops are near-commodity.
const (
	weightEmeralds = 1.0
	weightOre      = 0.8
	weightWood     = 0.6
	weightCrops    = 0.4
	weightFish     = 0.4
)

// Value returns the weighted importance score of a territory, 0 for unknown
// territories.
func (c *Classifier) Value(territory string) float64 {
	key := normalizeName(territory)

	c.mu.RLock()
	if v, ok := c.valueCache[key]; ok {
		c.mu.RUnlock()
		return v
	}
	info, ok := c.territories[key]
	c.mu.RUnlock()

	var v float64
	if ok {
		v = weightEmeralds*float64(ParseTier(info.Resources.Emeralds)) +
			weightOre*float64(ParseTier(info.Resources.Ore)) +
			weightWood*float64(ParseTier(info.Resources.Wood)) +
			weightCrops*float64(ParseTier(info.Resources.Crops)) +
			weightFish*float64(ParseTier(info.Resources.Fish))
	}

	c.mu.Lock()
	c.valueCache[key] = v
	c.mu.Unlock()
	return v
}

// ParseTier converts a qualitative resource tier label to a 0-4 scale.
// Unknown or absent labels parse to 0.
func ParseTier(label string) int {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "very high":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

// normalizeName folds the Unicode apostrophe variants the game data mixes
// freely into the ASCII form so catalog matching is stable.
func normalizeName(name string) string {
	return strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'", "`", "'").Replace(name)
}
