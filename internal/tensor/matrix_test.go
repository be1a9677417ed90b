package tensor

import (
	"encoding/json"
	"testing"
)

func TestMatMul(t *testing.T) {
	a, _ := New(2, 3, []float64{1, 2, 3, 4, 5, 6})
	b, _ := New(3, 2, []float64{7, 8, 9, 10, 11, 12})

	out, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul: %v", err)
	}

	want := []float64{58, 64, 139, 154}
	got := out.Data()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MatMul[%d]: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestMatMul_DimMismatch(t *testing.T) {
	a := Zeros(2, 3)
	b := Zeros(2, 3)

	if _, err := MatMul(a, b); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestAddScaled(t *testing.T) {
	p, _ := New(1, 3, []float64{1, 2, 3})
	g, _ := New(1, 3, []float64{10, 20, 30})

	// p -= 0.1 * g
	if err := p.AddScaled(-0.1, g); err != nil {
		t.Fatalf("AddScaled: %v", err)
	}

	want := []float64{0, 0, 0}
	for i, v := range p.Data() {
		if diff := v - want[i]; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("AddScaled[%d]: got %f, want %f", i, v, want[i])
		}
	}
}

func TestRand_Deterministic(t *testing.T) {
	a := Rand(3, 3, 0)
	b := Rand(3, 3, 0)
	c := Rand(3, 3, 1)

	if !a.Equal(b) {
		t.Error("same seed must produce identical matrices")
	}
	if a.Equal(c) {
		t.Error("different seeds produced identical matrices")
	}
}

func TestClone_Independent(t *testing.T) {
	a := Ones(2, 2)
	b := a.Clone()
	b.Set(0, 0, 42)

	if a.At(0, 0) != 1 {
		t.Error("Clone must not share backing storage")
	}
}

func TestTransposeSum(t *testing.T) {
	a, _ := New(2, 3, []float64{1, 2, 3, 4, 5, 6})
	at := a.T()

	if r, c := at.Dims(); r != 3 || c != 2 {
		t.Fatalf("T dims: got %dx%d, want 3x2", r, c)
	}
	if at.At(0, 1) != 4 {
		t.Errorf("T[0][1]: got %f, want 4", at.At(0, 1))
	}
	if a.Sum() != 21 {
		t.Errorf("Sum: got %f, want 21", a.Sum())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	a := Rand(3, 3, 7)

	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Matrix
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !a.Equal(&out) {
		t.Error("round-tripped matrix differs")
	}
}
