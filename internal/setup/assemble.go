package setup

import "github.com/BTreeMap/GoalPipe/internal/models"

// AssembleFocusStatements merges the collected categories into the final
// ordered focus statement list: positive feelings, then opportunities, then
// the reframing texts, each preserving collection order. There is no
// filtering and no cross-category deduplication; a phrase entered in two
// categories appears twice.
func AssembleFocusStatements(positive, opportunities []models.StatementEntry, reframed []models.Reframing) []string {
	statements := make([]string, 0, len(positive)+len(opportunities)+len(reframed))
	for _, e := range positive {
		statements = append(statements, e.Text)
	}
	for _, e := range opportunities {
		statements = append(statements, e.Text)
	}
	for _, r := range reframed {
		statements = append(statements, r.Reframing)
	}
	return statements
}
