package store

import (
	"fmt"
	"time"

	"github.com/davisfield/switchboard/internal/models"
)

// OpenDelegations counts delegations assigned to agent within the trailing
// window that have not yet produced a completion. A delegation threaded on a
// context is open until a TASK_COMPLETED from the agent shares that context;
// an unthreaded delegation is open while its status is still SENT.
func (s *Store) OpenDelegations(agent string, window time.Duration) (int, error) {
	if agent == "" {
		return 0, fmt.Errorf("store: open delegations: agent is required: %w", ErrValidation)
	}
	cutoff := time.Now().Add(-window)

	var delegations []models.Message
	if err := s.db.Where("recipient = ? AND type = ? AND created_at >= ?",
		agent, models.TypeDelegation, cutoff).
		Find(&delegations).Error; err != nil {
		return 0, fmt.Errorf("store: open delegations for %s: %w: %v", agent, ErrDelivery, err)
	}
	if len(delegations) == 0 {
		return 0, nil
	}

	var completions []models.Message
	if err := s.db.Where("sender = ? AND type = ? AND created_at >= ? AND context_id IS NOT NULL",
		agent, models.TypeCompletion, cutoff).
		Find(&completions).Error; err != nil {
		return 0, fmt.Errorf("store: completions for %s: %w: %v", agent, ErrDelivery, err)
	}
	completed := make(map[string]bool, len(completions))
	for _, c := range completions {
		completed[*c.ContextID] = true
	}

	open := 0
	for _, d := range delegations {
		if d.ContextID != nil {
			if !completed[*d.ContextID] {
				open++
			}
			continue
		}
		if d.Status == models.StatusSent {
			open++
		}
	}
	return open, nil
}
