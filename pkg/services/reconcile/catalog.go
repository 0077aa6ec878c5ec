package reconcile

import (
	"fmt"
	"sync"

	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
)

const (
	RuleFixOrphanedVehicles     = "fix_orphaned_vehicles"
	RuleFixUsernameMismatches   = "fix_username_mismatches"
	RuleUpdateMissingMetadata   = "update_missing_metadata"
	RuleResolveDuplicateDevices = "resolve_duplicate_devices"
	RuleFixInactiveWithActivity = "fix_inactive_with_activity"
)

func defaultRules() []domain.ReconciliationRule {
	return []domain.ReconciliationRule{
		{
			ID:          RuleFixOrphanedVehicles,
			CheckType:   domain.CheckUserVehicleLink,
			Severities:  []domain.Severity{domain.SeverityHigh, domain.SeverityCritical},
			AutoExecute: true,
			Strategy:    domain.StrategyMerge,
		},
		{
			ID:          RuleFixUsernameMismatches,
			CheckType:   domain.CheckUserVehicleLink,
			Severities:  []domain.Severity{domain.SeverityCritical},
			AutoExecute: true,
			Strategy:    domain.StrategyOverwriteLocal,
		},
		{
			ID:          RuleUpdateMissingMetadata,
			CheckType:   domain.CheckDataIntegrity,
			Severities:  []domain.Severity{domain.SeverityMedium, domain.SeverityHigh},
			AutoExecute: false,
			Strategy:    domain.StrategyOverwriteLocal,
		},
		{
			ID:          RuleResolveDuplicateDevices,
			CheckType:   domain.CheckDataIntegrity,
			Severities:  []domain.Severity{domain.SeverityCritical},
			AutoExecute: false,
			Strategy:    domain.StrategyManualReview,
		},
		{
			ID:          RuleFixInactiveWithActivity,
			CheckType:   domain.CheckDataIntegrity,
			Severities:  []domain.Severity{domain.SeverityMedium},
			AutoExecute: true,
			Strategy:    domain.StrategyOverwriteLocal,
		},
	}
}

// Catalog is the mutable registry of immutable repair rules. Updates replace
// the whole rule list copy-on-write; readers always see a consistent slice.
type Catalog struct {
	mu    sync.RWMutex
	rules []domain.ReconciliationRule
}

func NewCatalog() *Catalog {
	return &Catalog{rules: defaultRules()}
}

// Rules returns the rules in catalog order. Automatic runs execute in this
// order because later rules may depend on earlier repairs (linking precedes
// metadata refresh).
func (c *Catalog) Rules() []domain.ReconciliationRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.ReconciliationRule(nil), c.rules...)
}

func (c *Catalog) Get(id string) (domain.ReconciliationRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if r.ID == id {
			return r, true
		}
	}
	return domain.ReconciliationRule{}, false
}

func (c *Catalog) AddCustomRule(rule domain.ReconciliationRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("rule %q already registered", rule.ID)
		}
	}
	c.rules = append(append([]domain.ReconciliationRule(nil), c.rules...), rule)
	return nil
}

func (c *Catalog) UpdateRule(id string, rule domain.ReconciliationRule) error {
	if rule.ID != id {
		return fmt.Errorf("rule id %q does not match %q", rule.ID, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.rules {
		if r.ID == id {
			next := append([]domain.ReconciliationRule(nil), c.rules...)
			next[i] = rule
			c.rules = next
			return nil
		}
	}
	return fmt.Errorf("rule %q not found", id)
}
