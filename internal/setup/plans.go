package setup

import (
	"fmt"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

// PlanCatalog maps plan tiers to their quota configuration. Every quota the
// workflow reads comes from this table; phases look their tier up once on
// entry rather than branching on tier names inline.
type PlanCatalog map[models.PlanTier]models.PlanConfig

// DefaultPlanCatalog returns the built-in tier configuration.
func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		models.PlanBasic: {
			MinPositive:       3,
			MaxPositive:       7,
			MinWorries:        2,
			MaxWorries:        5,
			MinOpportunities:  2,
			MaxOpportunities:  3,
			MaxTasksPerFocus:  3,
			RequiresSelection: false,
			MessagesPerDay:    1,
			Cadence:           "one message per day",
		},
		models.PlanAccelerated: {
			MinPositive:       3,
			MaxPositive:       5,
			MinWorries:        2,
			MaxWorries:        5,
			MinOpportunities:  2,
			MaxOpportunities:  3,
			MaxTasksPerFocus:  1,
			RequiresSelection: true,
			RequiredTasks:     2,
			MessagesPerDay:    1,
			Cadence:           "one message per day for two weeks",
		},
		models.PlanExpress: {
			MinPositive:       3,
			MaxPositive:       5,
			MinWorries:        2,
			MaxWorries:        5,
			MinOpportunities:  2,
			MaxOpportunities:  3,
			MaxTasksPerFocus:  1,
			RequiresSelection: true,
			RequiredTasks:     6,
			MessagesPerDay:    6,
			Cadence:           "a message every 2-3 hours for a week",
		},
	}
}

// Config looks up the configuration for a tier. An unknown tier is an
// invariant violation: sessions are only created with validated tiers.
func (c PlanCatalog) Config(tier models.PlanTier) (models.PlanConfig, error) {
	cfg, ok := c[tier]
	if !ok {
		return models.PlanConfig{}, fmt.Errorf("%w: no plan config for tier %q", models.ErrInvariantViolation, tier)
	}
	return cfg, nil
}
