package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

func TestPresets_AreValidAndEscalate(t *testing.T) {
	junior, err := Preset(PresetJunior)
	require.NoError(t, err)
	senior, err := Preset(PresetSenior)
	require.NoError(t, err)
	superego, err := Preset(PresetSuperego)
	require.NoError(t, err)

	for _, cfg := range []entities.AgentConfiguration{junior, senior, superego} {
		assert.NoError(t, cfg.Validate())
	}

	assert.Equal(t, entities.StyleConcise, junior.ResponseStyle)
	assert.Equal(t, entities.StrategyNaive, junior.RetrievalStrategy)
	assert.Equal(t, entities.ToolsEnabled{}, junior.ToolsEnabled)

	assert.Equal(t, entities.StyleDetailed, senior.ResponseStyle)
	assert.Equal(t, entities.StrategyParentDoc, senior.RetrievalStrategy)
	assert.True(t, senior.ToolsEnabled.WebSearch)
	assert.False(t, senior.ToolsEnabled.DeepResearch)

	assert.Equal(t, entities.StyleSocratic, superego.ResponseStyle)
	assert.Equal(t, entities.StrategyContextual, superego.RetrievalStrategy)
	assert.Equal(t, entities.ToolsEnabled{WebSearch: true, DeepResearch: true}, superego.ToolsEnabled)

	assert.Less(t, junior.TopK, senior.TopK)
	assert.Less(t, senior.TopK, superego.TopK)
	assert.Less(t, junior.MaxSteps, senior.MaxSteps)
	assert.Less(t, senior.MaxSteps, superego.MaxSteps)
}

func TestPreset_Unknown(t *testing.T) {
	_, err := Preset("intern")
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.Equal(t, []string{"junior", "senior", "superego"}, PresetNames())
}

func TestConfigStore_MergeIsShallowAndValidated(t *testing.T) {
	store, err := NewConfigStoreFromPreset(PresetSuperego)
	require.NoError(t, err)

	off := false
	updated, err := store.Merge(entities.ConfigPatch{ToolsEnabled: &entities.ToolsPatch{DeepResearch: &off}})
	require.NoError(t, err)
	assert.True(t, updated.ToolsEnabled.WebSearch)
	assert.False(t, updated.ToolsEnabled.DeepResearch)
	assert.Equal(t, updated, store.Get())

	zero := 0
	_, err = store.Merge(entities.ConfigPatch{MaxSteps: &zero})
	assert.ErrorIs(t, err, entities.ErrInvalidConfig)
	assert.Equal(t, updated, store.Get(), "invalid merge must not change anything")
}

func TestConfigStore_ApplyPresetReplacesEverything(t *testing.T) {
	store, err := NewConfigStoreFromPreset(PresetSenior)
	require.NoError(t, err)

	persona := "custom"
	_, err = store.Merge(entities.ConfigPatch{Persona: &persona})
	require.NoError(t, err)

	_, err = store.ApplyPreset(PresetJunior)
	require.NoError(t, err)
	junior, _ := Preset(PresetJunior)
	assert.Equal(t, junior, store.Get())

	_, err = store.ApplyPreset("nope")
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.Equal(t, junior, store.Get())
}

func TestConfigStore_SubscribersSeeSessionRelevantChanges(t *testing.T) {
	store, err := NewConfigStoreFromPreset(PresetSenior)
	require.NoError(t, err)

	var changes []ConfigChange
	store.Subscribe(func(c ConfigChange) { changes = append(changes, c) })

	k := 9
	_, err = store.Merge(entities.ConfigPatch{TopK: &k})
	require.NoError(t, err)
	style := entities.StyleBullets
	_, err = store.Merge(entities.ConfigPatch{ResponseStyle: &style})
	require.NoError(t, err)

	require.Len(t, changes, 2)
	assert.False(t, changes[0].SessionRelevant())
	assert.True(t, changes[1].StyleChanged)
	assert.True(t, changes[1].SessionRelevant())
}

func TestNewConfigStore_RejectsInvalid(t *testing.T) {
	_, err := NewConfigStore(entities.AgentConfiguration{})
	assert.ErrorIs(t, err, entities.ErrInvalidConfig)
}
