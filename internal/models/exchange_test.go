package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStore() *ExchangeStore {
	return &ExchangeStore{
		Data: ExchangeData{
			Territories: []string{"Detlas", "Ragni"},
			Guilds:      []string{NeutralGuild, "Alpha", "Beta"},
			Prefixes:    []string{NeutralGuild, "ALP", ""},
			Events: []ExchangeEvent{
				{Unix: 100, Territory: 0, Guild: 1},
				{Unix: 200, Territory: 1, Guild: 2},
				{Unix: 200, Territory: 0, Guild: 2},
			},
		},
	}
}

func TestStoreLookups(t *testing.T) {
	s := validStore()

	assert.Equal(t, "Alpha", s.GuildName(1))
	assert.Equal(t, NeutralGuild, s.GuildName(-1))
	assert.Equal(t, NeutralGuild, s.GuildName(99))

	assert.Equal(t, "ALP", s.GuildPrefix(1))
	assert.Equal(t, "Beta", s.GuildPrefix(2), "empty prefix falls back to the guild name")

	assert.Equal(t, "Ragni", s.TerritoryName(1))
	assert.Empty(t, s.TerritoryName(99))

	assert.True(t, s.IsNeutral(0))
	assert.True(t, s.IsNeutral(-5), "out-of-range indices resolve neutral")
	assert.False(t, s.IsNeutral(1))
}

func TestValidate(t *testing.T) {
	require.NoError(t, validStore().Validate())

	unsorted := validStore()
	unsorted.Data.Events[2].Unix = 50
	err := unsorted.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not sorted")

	badTerritory := validStore()
	badTerritory.Data.Events[0].Territory = 7
	require.Error(t, badTerritory.Validate())

	badGuild := validStore()
	badGuild.Data.Events[0].Guild = -1
	require.Error(t, badGuild.Validate())

	badProjection := validStore()
	badProjection.TerritoryEvents = make([][]TerritoryEvent, 1)
	require.Error(t, badProjection.Validate())
}
