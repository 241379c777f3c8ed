package session

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/matbeedotcom/media-transparency-sub001/internal/lead"
)

// Config holds a session's tunable limits. It is validated at creation time
// and never mutated afterward.
type Config struct {
	MaxDepth         int     `json:"max_depth" yaml:"max_depth"`
	MaxEntities      int     `json:"max_entities" yaml:"max_entities"`
	MaxRelationships int     `json:"max_relationships" yaml:"max_relationships"`
	MinConfidence    float64 `json:"min_confidence" yaml:"min_confidence"`
	MinFundingAmount float64 `json:"min_funding_amount" yaml:"min_funding_amount"`

	// EnabledLeadTypes limits which extracted leads are followed. Empty
	// means all types.
	EnabledLeadTypes []lead.Type `json:"enabled_lead_types,omitempty" yaml:"enabled_lead_types,omitempty"`

	// Jurisdictions limits discovery to these jurisdiction codes. Empty
	// means unrestricted.
	Jurisdictions []string `json:"jurisdictions,omitempty" yaml:"jurisdictions,omitempty"`

	// PriorityBoosts shifts lead priority per type at enqueue time. Negative
	// values raise priority (1 is highest).
	PriorityBoosts map[lead.Type]int `json:"priority_boosts,omitempty" yaml:"priority_boosts,omitempty"`

	// RateLimitPerSec caps outbound connector calls for the session.
	// Zero means no limit.
	RateLimitPerSec float64 `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`

	// AutoPauseAfterErrors pauses the session after this many consecutive
	// lead failures. Zero disables auto-pause.
	AutoPauseAfterErrors int `json:"auto_pause_after_errors" yaml:"auto_pause_after_errors"`
}

// DefaultConfig returns the limits used when a caller supplies none.
func DefaultConfig() Config {
	return Config{
		MaxDepth:         3,
		MaxEntities:      500,
		MaxRelationships: 2000,
		MinConfidence:    0.5,
	}
}

// Validate checks the config invariants and fills zero-valued limits with
// defaults.
func (c *Config) Validate() error {
	d := DefaultConfig()
	if c.MaxDepth == 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxEntities == 0 {
		c.MaxEntities = d.MaxEntities
	}
	if c.MaxRelationships == 0 {
		c.MaxRelationships = d.MaxRelationships
	}

	if c.MaxDepth < 1 {
		return eris.Errorf("session: max_depth %d must be >= 1", c.MaxDepth)
	}
	if c.MaxEntities < 1 {
		return eris.Errorf("session: max_entities %d must be >= 1", c.MaxEntities)
	}
	if c.MaxRelationships < 1 {
		return eris.Errorf("session: max_relationships %d must be >= 1", c.MaxRelationships)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return eris.Errorf("session: min_confidence %f outside [0,1]", c.MinConfidence)
	}
	if c.MinFundingAmount < 0 {
		return eris.Errorf("session: min_funding_amount %f must be >= 0", c.MinFundingAmount)
	}
	if c.RateLimitPerSec < 0 {
		return eris.Errorf("session: rate_limit_per_sec %f must be >= 0", c.RateLimitPerSec)
	}
	if c.AutoPauseAfterErrors < 0 {
		return eris.Errorf("session: auto_pause_after_errors %d must be >= 0", c.AutoPauseAfterErrors)
	}
	for _, t := range c.EnabledLeadTypes {
		if _, err := lead.ParseType(string(t)); err != nil {
			return err
		}
	}
	for t := range c.PriorityBoosts {
		if _, err := lead.ParseType(string(t)); err != nil {
			return err
		}
	}
	return nil
}

// TypeEnabled reports whether a lead type passes the config's filter.
func (c Config) TypeEnabled(t lead.Type) bool {
	if len(c.EnabledLeadTypes) == 0 {
		return true
	}
	for _, enabled := range c.EnabledLeadTypes {
		if enabled == t {
			return true
		}
	}
	return false
}

// JurisdictionAllowed reports whether a jurisdiction passes the config's
// filter. An empty jurisdiction on the entity always passes; restrictions
// only apply to known locations.
func (c Config) JurisdictionAllowed(code string) bool {
	if len(c.Jurisdictions) == 0 || code == "" {
		return true
	}
	for _, j := range c.Jurisdictions {
		if j == code {
			return true
		}
	}
	return false
}

// BoostedPriority applies the per-type boost and clamps to [1,5].
func (c Config) BoostedPriority(t lead.Type, priority int) int {
	return lead.ClampPriority(priority + c.PriorityBoosts[t])
}

// LoadConfigFile reads and validates a session config from a YAML file.
func LoadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "session: read config %s", path)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, eris.Wrapf(err, "session: parse config %s", path)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
