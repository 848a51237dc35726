package setup

import (
	"reflect"
	"testing"

	"github.com/BTreeMap/GoalPipe/internal/models"
)

func entries(texts ...string) []models.StatementEntry {
	var es []models.StatementEntry
	for _, t := range texts {
		es = append(es, models.StatementEntry{Text: t})
	}
	return es
}

func TestAssembleFocusStatementsOrdering(t *testing.T) {
	positive := entries("p1", "p2", "p3")
	opportunities := entries("o1", "o2")
	reframed := []models.Reframing{{OriginalWorry: "w1", Reframing: "r1"}}

	got := AssembleFocusStatements(positive, opportunities, reframed)
	want := []string{"p1", "p2", "p3", "o1", "o2", "r1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestAssembleFocusStatementsKeepsCrossCategoryDuplicates(t *testing.T) {
	// The same phrase entered as both a positive feeling and an opportunity
	// stays in the list twice; only within-category duplicates are rejected,
	// and that happens at collection time.
	positive := entries("I feel free")
	opportunities := entries("I feel free")

	got := AssembleFocusStatements(positive, opportunities, nil)
	want := []string{"I feel free", "I feel free"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected duplicate preserved across categories, got %v", got)
	}
}

func TestAssembleFocusStatementsEmpty(t *testing.T) {
	got := AssembleFocusStatements(nil, nil, nil)
	if len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
}
