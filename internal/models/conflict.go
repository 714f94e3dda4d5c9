package models

// GuildStanding is a single guild's tally within one faction of a conflict.
type GuildStanding struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Taken  int    `json:"taken"`
	Lost   int    `json:"lost"`
}

// ConflictSide is one detected faction. Guilds is truncated to the top 10 by
// involvement for display; TotalTaken/TotalLost are computed over ALL
// assigned members before truncation and must never shrink to match the
// displayed list.
type ConflictSide struct {
	Guilds     []GuildStanding `json:"guilds"`
	TotalTaken int             `json:"totalTaken"`
	TotalLost  int             `json:"totalLost"`
}

// ConflictEvent is a characterized burst of inter-guild fighting.
type ConflictEvent struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	StartTime          int64          `json:"startTime"`
	EndTime            int64          `json:"endTime"`
	TotalExchanges     int            `json:"totalExchanges"`
	PeakHourly         int            `json:"peakHourly"`
	PrimaryRegion      string         `json:"primaryRegion"`
	RegionBreakdown    map[string]int `json:"regionBreakdown"`
	Factions           []ConflictSide `json:"factions"`
	Sides              []ConflictSide `json:"sides"`
	TerritoriesInvolved int           `json:"territoriesInvolved"`
	Confidence         float64        `json:"confidence"`
	IsMultiFront       bool           `json:"isMultiFront"`
	WeightedExchanges  float64        `json:"weightedExchanges"`
}

// War groups two or more conflicts that share guilds across a bounded window.
type War struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	StartTime      int64           `json:"startTime"`
	EndTime        int64           `json:"endTime"`
	Conflicts      []ConflictEvent `json:"conflicts"`
	TotalExchanges int             `json:"totalExchanges"`
}
