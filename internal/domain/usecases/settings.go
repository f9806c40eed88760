// Package usecases contains application business rules.
// Usecases orchestrate entities and depend only on port interfaces.
package usecases

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/0xcro3dile/ragtutor/internal/domain/entities"
)

// ErrUnknownPreset is returned for a preset name outside the known set.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset names.
const (
	PresetJunior   = "junior"
	PresetSenior   = "senior"
	PresetSuperego = "superego"
)

// DefaultPreset is applied at startup when none is configured.
const DefaultPreset = PresetSenior

var presets = map[string]entities.AgentConfiguration{
	PresetJunior: {
		Persona:           "You are a patient teaching assistant for newcomers to retrieval-augmented generation. Keep explanations simple and use everyday analogies.",
		ResponseStyle:     entities.StyleConcise,
		RetrievalStrategy: entities.StrategyNaive,
		TopK:              2,
		MinRelevanceScore: 0.2,
		MaxSteps:          3,
		ToolsEnabled:      entities.ToolsEnabled{},
	},
	PresetSenior: {
		Persona:           "You are a senior AI engineer mentoring a colleague. Be precise, cite the course material and explain trade-offs.",
		ResponseStyle:     entities.StyleDetailed,
		RetrievalStrategy: entities.StrategyParentDoc,
		TopK:              4,
		MinRelevanceScore: 0.2,
		MaxSteps:          5,
		ToolsEnabled:      entities.ToolsEnabled{WebSearch: true},
	},
	PresetSuperego: {
		Persona:           "You are a demanding research advisor. Push the student to reason from first principles and verify claims against live sources.",
		ResponseStyle:     entities.StyleSocratic,
		RetrievalStrategy: entities.StrategyContextual,
		TopK:              6,
		MinRelevanceScore: 0.1,
		MaxSteps:          10,
		ToolsEnabled:      entities.ToolsEnabled{WebSearch: true, DeepResearch: true},
	},
}

// Preset returns the named preset.
func Preset(name string) (entities.AgentConfiguration, error) {
	cfg, ok := presets[name]
	if !ok {
		return entities.AgentConfiguration{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return cfg, nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigChange describes an applied configuration update.
type ConfigChange struct {
	Old, New entities.AgentConfiguration

	PersonaChanged bool
	StyleChanged   bool
	ToolsChanged   bool
}

// SessionRelevant reports whether the change alters what a live session was created with.
func (c ConfigChange) SessionRelevant() bool {
	return c.PersonaChanged || c.StyleChanged || c.ToolsChanged
}

func diffConfig(old, updated entities.AgentConfiguration) ConfigChange {
	return ConfigChange{
		Old:            old,
		New:            updated,
		PersonaChanged: old.Persona != updated.Persona,
		StyleChanged:   old.ResponseStyle != updated.ResponseStyle,
		ToolsChanged:   old.ToolsEnabled != updated.ToolsEnabled,
	}
}

// ConfigStore holds the live agent configuration. Safe for concurrent use.
type ConfigStore struct {
	mu          sync.RWMutex
	cfg         entities.AgentConfiguration
	subscribers []func(ConfigChange)
}

// NewConfigStore creates a store initialized from a valid configuration.
func NewConfigStore(initial entities.AgentConfiguration) (*ConfigStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &ConfigStore{cfg: initial}, nil
}

// NewConfigStoreFromPreset creates a store initialized from a named preset.
func NewConfigStoreFromPreset(name string) (*ConfigStore, error) {
	cfg, err := Preset(name)
	if err != nil {
		return nil, err
	}
	return NewConfigStore(cfg)
}

// Get returns a snapshot of the current configuration.
func (s *ConfigStore) Get() entities.AgentConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Merge applies a partial update. An invalid result leaves the configuration unchanged.
func (s *ConfigStore) Merge(patch entities.ConfigPatch) (entities.AgentConfiguration, error) {
	s.mu.Lock()
	updated := patch.Apply(s.cfg)
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return s.Get(), err
	}
	change := s.swapLocked(updated)
	s.mu.Unlock()

	s.notify(change)
	return updated, nil
}

// ApplyPreset atomically replaces the configuration with a named preset.
func (s *ConfigStore) ApplyPreset(name string) (entities.AgentConfiguration, error) {
	cfg, err := Preset(name)
	if err != nil {
		return s.Get(), err
	}

	s.mu.Lock()
	change := s.swapLocked(cfg)
	s.mu.Unlock()

	s.notify(change)
	return cfg, nil
}

// Subscribe registers fn to be called after every applied update.
func (s *ConfigStore) Subscribe(fn func(ConfigChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *ConfigStore) swapLocked(cfg entities.AgentConfiguration) ConfigChange {
	change := diffConfig(s.cfg, cfg)
	s.cfg = cfg
	return change
}

func (s *ConfigStore) notify(change ConfigChange) {
	s.mu.RLock()
	subs := append([]func(ConfigChange){}, s.subscribers...)
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}
}
