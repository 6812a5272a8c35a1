package model

import "testing"

func TestOneHot(t *testing.T) {
	v, err := OneHot(5, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 0, 1, 0, 0}
	if len(v) != len(want) {
		t.Fatalf("length = %d, want %d", len(v), len(want))
	}
	for i := range want {
		if v[i] != want[i] {
			t.Fatalf("vector = %v, want %v", v, want)
		}
	}

	idx, err := OneHotIndex(v)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}
}

func TestOneHotRejectsBadInput(t *testing.T) {
	if _, err := OneHot(0, 0); err == nil {
		t.Error("zero length accepted")
	}
	if _, err := OneHot(3, 3); err == nil {
		t.Error("out-of-range index accepted")
	}
	if _, err := OneHot(3, -1); err == nil {
		t.Error("negative index accepted")
	}
}

func TestOneHotIndexRejectsBadVectors(t *testing.T) {
	tests := []struct {
		name string
		v    []int
	}{
		{"empty", nil},
		{"all zero", []int{0, 0, 0}},
		{"two bits", []int{1, 0, 1}},
		{"non binary", []int{0, 2, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OneHotIndex(tt.v); err == nil {
				t.Errorf("vector %v accepted", tt.v)
			}
		})
	}
}
