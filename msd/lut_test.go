package msd

import (
	"testing"

	"github.com/bemasher/rtlmsd/iqgen"
)

func TestNormLUT(t *testing.T) {
	lut := NewNormLUT()

	if lut[0] != -1 || lut[255] != 1 {
		t.Fatalf("expected limits -1 and 1, got %f and %f\n", lut[0], lut[255])
	}
	for idx := 1; idx < len(lut); idx++ {
		if lut[idx] <= lut[idx-1] {
			t.Fatalf("lut not increasing at %d\n", idx)
		}
	}

	// Every byte value as I, reversed as Q.
	input := make([]byte, 512)
	for idx := 0; idx < 256; idx++ {
		input[idx<<1] = byte(idx)
		input[idx<<1+1] = byte(255 - idx)
	}

	expected := iqgen.U8toC64(input)
	for idx, s := range expected {
		got := complex(lut[input[idx<<1]], lut[input[idx<<1+1]])
		if got != s {
			t.Fatalf("sample %d: expected %v, got %v\n", idx, s, got)
		}
	}
}
