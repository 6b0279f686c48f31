package flex

import "testing"

func TestScalarBroadcast(t *testing.T) {
	a := Scalar(3.14)
	for i := 0; i < 5; i++ {
		for c := 0; c < 5; c++ {
			if got := a.Get(i, c, false); got != 3.14 {
				t.Fatalf("Get(%d,%d)=%v, want 3.14", i, c, got)
			}
		}
	}
}

func TestPerColumn(t *testing.T) {
	a := PerColumn([]float64{1, 2, 3})
	if a.Get(0, 1, false) != 2 {
		t.Fatalf("expected col 1 -> 2")
	}
	if a.Get(99, 2, false) != 3 {
		t.Fatalf("per-column broadcasts across rows")
	}
}

func TestPerRowFlex2D(t *testing.T) {
	a := PerRow([]float64{10, 20, 30})
	if got := a.Get(1, 0, true); got != 20 {
		t.Fatalf("flex2D per-row: got %v want 20", got)
	}
	if got := a.Get(1, 5, true); got != 20 {
		t.Fatalf("per-row broadcasts across columns: got %v", got)
	}
}

func TestPerRowWithoutFlex2DIsPerColumn(t *testing.T) {
	a := PerRow([]float64{10, 20, 30})
	if got := a.Get(0, 2, false); got != 30 {
		t.Fatalf("non-flex2D (R,) should index by column: got %v want 30", got)
	}
}

func TestFullMatrix(t *testing.T) {
	a := Full([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if a.Get(0, 0, false) != 1 || a.Get(0, 2, false) != 3 || a.Get(1, 1, false) != 5 {
		t.Fatalf("full matrix indexing incorrect")
	}
}
