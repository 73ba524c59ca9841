package cancorr

import (
	"math/rand"
	"testing"

	"neurocca/internal/testkit"
)

func TestFitCV_SelectsFromGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	x, y := testkit.CorrelatedFeatures(rng, 60, 4, 4, 0.7)

	engine := NewEngine()
	regGrid := []float64{0.01, 0.1, 1}
	compGrid := []int{1, 2, 3}
	result, err := engine.FitCV(x, y, regGrid, compGrid, 5, 42, false)
	if err != nil {
		t.Fatalf("FitCV: %v", err)
	}

	foundReg, foundComp := false, false
	for _, r := range regGrid {
		if result.Best.Reg == r {
			foundReg = true
		}
	}
	for _, k := range compGrid {
		if result.Best.NumComponents == k {
			foundComp = true
		}
	}
	if !foundReg || !foundComp {
		t.Fatalf("selected config %+v not drawn from the grids", result.Best)
	}
	if result.Model == nil || result.Model.NumComponents() != result.Best.NumComponents {
		t.Fatalf("refit model does not match selected config")
	}
}

func TestFitCV_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	x, y := testkit.CorrelatedFeatures(rng, 50, 3, 3, 0.6)

	engine := NewEngine()
	first, err := engine.FitCV(x, y, []float64{0.1, 1}, []int{1, 2}, 4, 7, false)
	if err != nil {
		t.Fatalf("FitCV: %v", err)
	}
	second, err := engine.FitCV(x, y, []float64{0.1, 1}, []int{1, 2}, 4, 7, false)
	if err != nil {
		t.Fatalf("FitCV: %v", err)
	}
	if first.Best != second.Best {
		t.Fatalf("same seed selected different configs: %+v vs %+v", first.Best, second.Best)
	}
	for key, score := range first.Scores {
		if second.Scores[key] != score && !(score != score && second.Scores[key] != second.Scores[key]) {
			t.Fatalf("score for %s differs between runs", key)
		}
	}
}

func TestFitCV_EmptyGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x, y := testkit.CorrelatedFeatures(rng, 30, 3, 3, 0.5)
	engine := NewEngine()
	if _, err := engine.FitCV(x, y, nil, []int{1}, 3, 1, false); err == nil {
		t.Fatal("expected error for empty regularization grid")
	}
}

func TestFitCV_TooFewFolds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x, y := testkit.CorrelatedFeatures(rng, 30, 3, 3, 0.5)
	engine := NewEngine()
	if _, err := engine.FitCV(x, y, []float64{0.1}, []int{1}, 1, 1, false); err == nil {
		t.Fatal("expected error for single-fold cross-validation")
	}
}

func TestFoldAssignments_Balanced(t *testing.T) {
	assignments := foldAssignments(17, 4, 99)
	counts := make(map[int]int)
	for _, f := range assignments {
		counts[f]++
	}
	if len(counts) != 4 {
		t.Fatalf("expected 4 folds, got %d", len(counts))
	}
	for fold, n := range counts {
		if n < 4 || n > 5 {
			t.Errorf("fold %d has %d subjects, expected 4 or 5", fold, n)
		}
	}
}
