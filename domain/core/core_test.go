package core

import (
	"errors"
	"math"
	"testing"
)

func TestNewRunID_Unique(t *testing.T) {
	seen := make(map[RunID]bool)
	for i := 0; i < 100; i++ {
		id := NewRunID()
		if id.String() == "" {
			t.Fatal("empty run ID")
		}
		if seen[id] {
			t.Fatalf("duplicate run ID %s", id)
		}
		seen[id] = true
	}
}

func TestParseSubjectID(t *testing.T) {
	if _, err := ParseSubjectID("  "); err == nil {
		t.Fatal("expected error for blank subject ID")
	}
	id, err := ParseSubjectID("100610")
	if err != nil || id.String() != "100610" {
		t.Fatalf("unexpected result: %v, %v", id, err)
	}
}

func TestHashFloats_BitExact(t *testing.T) {
	a := []float64{0.1, math.NaN(), 1e-300}
	b := []float64{0.1, math.NaN(), 1e-300}
	if HashFloats(a) != HashFloats(b) {
		t.Fatal("identical bit patterns must hash equally")
	}
	c := []float64{0.1, math.NaN(), math.Nextafter(1e-300, 1)}
	if HashFloats(a) == HashFloats(c) {
		t.Fatal("one-ulp difference must change the hash")
	}
}

func TestNotFoundTaxonomy(t *testing.T) {
	for _, err := range []error{ErrSubjectNotFound, ErrRunNotFound, ErrConditionNotFound, ErrArtifactNotFound} {
		if !IsNotFoundError(err) {
			t.Errorf("%v should satisfy IsNotFoundError", err)
		}
	}
	wrapped := NewSubjectError("100610", "WM", "2bk_faces", ErrConditionNotFound)
	if !errors.Is(wrapped, ErrConditionNotFound) || !IsNotFoundError(wrapped) {
		t.Error("subject wrap must preserve the sentinel chain")
	}
}

func TestIsTrialRecoverable(t *testing.T) {
	for _, err := range []error{ErrDegenerateInput, ErrInsufficientRank, ErrNumericalInstability} {
		if !IsTrialRecoverable(NewTrialError(3, err)) {
			t.Errorf("%v should be recoverable at trial granularity", err)
		}
	}
	if IsTrialRecoverable(ErrShapeMismatch) {
		t.Error("shape mismatches must abort the run")
	}
}
