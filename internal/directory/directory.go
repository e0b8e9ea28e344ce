// Package directory holds the queryable registry of agent capability profiles.
package directory

import (
	"fmt"
	"sync"

	"github.com/davisfield/switchboard/internal/config"
)

// Profile is one agent's declared capability profile. Profiles are owned by
// configuration and read-only at runtime.
type Profile struct {
	Name                  string
	Role                  string
	PrimaryCapabilities   []string
	SecondaryCapabilities []string
	ForbiddenCapabilities []string
	MaxConcurrentTasks    int
	BusinessImpactTier    string
}

// HasPrimary reports whether cap is one of the agent's primary capabilities.
func (p *Profile) HasPrimary(cap string) bool { return contains(p.PrimaryCapabilities, cap) }

// HasSecondary reports whether cap is one of the agent's secondary capabilities.
func (p *Profile) HasSecondary(cap string) bool { return contains(p.SecondaryCapabilities, cap) }

// Forbids reports whether cap is forbidden for the agent.
func (p *Profile) Forbids(cap string) bool { return contains(p.ForbiddenCapabilities, cap) }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Directory is the agent registry. Reads are safe for concurrent use;
// Reload swaps the profile set atomically under the lock.
type Directory struct {
	mu          sync.RWMutex
	profiles    []Profile
	byName      map[string]int
	coordinator string
}

// New builds a Directory from agent configuration. Declaration order is
// preserved: it is the documented tie-break for capability scoring.
func New(agents []config.AgentConfig) (*Directory, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("directory: at least one agent is required")
	}
	d := &Directory{}
	if err := d.load(agents); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) load(agents []config.AgentConfig) error {
	profiles := make([]Profile, 0, len(agents))
	byName := make(map[string]int, len(agents))
	coordinator := ""
	for i, a := range agents {
		if a.Name == "" {
			return fmt.Errorf("directory: agents[%d] has no name", i)
		}
		if _, dup := byName[a.Name]; dup {
			return fmt.Errorf("directory: duplicate agent %q", a.Name)
		}
		byName[a.Name] = len(profiles)
		profiles = append(profiles, Profile{
			Name:                  a.Name,
			Role:                  a.Role,
			PrimaryCapabilities:   a.PrimaryCapabilities,
			SecondaryCapabilities: a.SecondaryCapabilities,
			ForbiddenCapabilities: a.ForbiddenCapabilities,
			MaxConcurrentTasks:    a.MaxConcurrentTasks,
			BusinessImpactTier:    a.BusinessImpactTier,
		})
		if a.Role == "coordinator" {
			coordinator = a.Name
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles = profiles
	d.byName = byName
	d.coordinator = coordinator
	return nil
}

// Reload replaces the profile set, typically after a config file change.
// On error the previous profiles remain in effect.
func (d *Directory) Reload(agents []config.AgentConfig) error {
	if len(agents) == 0 {
		return fmt.Errorf("directory: reload with empty agent list")
	}
	return d.load(agents)
}

// Resolve returns the profile for name.
func (d *Directory) Resolve(name string) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("directory: unknown agent %q", name)
	}
	p := d.profiles[idx]
	return &p, nil
}

// IsRegistered reports whether name resolves to a registered agent.
func (d *Directory) IsRegistered(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byName[name]
	return ok
}

// Coordinator returns the name of the coordinator agent.
func (d *Directory) Coordinator() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.coordinator
}

// All returns a copy of all profiles in declaration order.
func (d *Directory) All() []Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Profile, len(d.profiles))
	copy(out, d.profiles)
	return out
}
