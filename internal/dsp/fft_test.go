package dsp

import (
	"math"
	"testing"
)

func tone(n int, freq, sampleRate, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Cos(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

func TestMagnitudeDBFSFullScaleTone(t *testing.T) {
	const n = 1024
	frame := tone(n, 64, n, 1)
	db := MagnitudeDBFS(frame)
	if len(db) != n/2+1 {
		t.Fatalf("unexpected bin count %d", len(db))
	}
	bin, peak := PeakBin(db)
	if bin != 64 {
		t.Fatalf("expected peak at bin 64 got %d", bin)
	}
	if math.Abs(peak) > 0.5 {
		t.Fatalf("expected full-scale tone near 0 dBFS, got %.3f", peak)
	}
	for i, v := range db {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("bin %d not finite: %v", i, v)
		}
	}
}

func TestMagnitudeDBFSSilenceFloors(t *testing.T) {
	db := MagnitudeDBFS(make([]float64, 16))
	for i, v := range db {
		if v != MinDB {
			t.Fatalf("bin %d expected floor %.1f got %.3f", i, MinDB, v)
		}
	}
	if len(MagnitudeDBFS(nil)) != 0 {
		t.Fatalf("expected empty result for empty frame")
	}
}

func TestBinFrequency(t *testing.T) {
	if got := BinFrequency(10, 1024, 44100); math.Abs(got-430.6640625) > 1e-9 {
		t.Fatalf("unexpected bin frequency %.6f", got)
	}
	if BinFrequency(3, 0, 44100) != 0 {
		t.Fatalf("expected zero for empty transform")
	}
}
