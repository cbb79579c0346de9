package avmu

import "testing"

func TestHopRateSamplesPerSecond(t *testing.T) {
	if got := Hop90K.SamplesPerSecond(); got != 90000 {
		t.Errorf("Hop90K.SamplesPerSecond() = %v, want 90000", got)
	}
	if got := HopUndefined.SamplesPerSecond(); got != 0 {
		t.Errorf("HopUndefined.SamplesPerSecond() = %v, want 0", got)
	}
}

func TestHopRateValid(t *testing.T) {
	if HopUndefined.valid() {
		t.Errorf("HopUndefined should not be valid")
	}
	if !Hop1K.valid() {
		t.Errorf("Hop1K should be valid")
	}
}

func TestIfGainValid(t *testing.T) {
	cases := []struct {
		gain IfGain
		want bool
	}{
		{IfGainUseDefault, true},
		{0, true},
		{3, true},
		{45, true},
		{46, false},
		{-5, false},
		{2, false}, // not a multiple of 3
	}
	for _, tc := range cases {
		if got := tc.gain.valid(); got != tc.want {
			t.Errorf("IfGain(%d).valid() = %v, want %v", tc.gain, got, tc.want)
		}
	}
}

func TestSweepConfigExclusionBandOrderPreserved(t *testing.T) {
	c := NewSweepConfig()
	_ = c.addExclusionBand(10, 20)
	_ = c.addExclusionBand(5, 8)
	_ = c.addExclusionBand(50, 60)

	want := []ExclusionBand{{10, 20}, {5, 8}, {50, 60}}
	for i, w := range want {
		got, err := c.ExclusionBandAt(i)
		if err != nil {
			t.Fatalf("ExclusionBandAt(%d): %v", i, err)
		}
		if got != w {
			t.Errorf("band %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestSweepConfigMeasuredPathOrderPreserved(t *testing.T) {
	c := NewSweepConfig()
	_ = c.addPathToMeasure(Path2, Path3)
	_ = c.addPathToMeasure(Path0, Path1)

	first, _ := c.PathAt(0)
	second, _ := c.PathAt(1)
	if first != (PathPair{Tx: Path2, Rx: Path3}) {
		t.Errorf("first path = %+v, want (2,3)", first)
	}
	if second != (PathPair{Tx: Path0, Rx: Path1}) {
		t.Errorf("second path = %+v, want (0,1)", second)
	}
}

func TestSweepConfigAddPathToMeasureRejectsDuplicate(t *testing.T) {
	c := NewSweepConfig()
	if err := c.addPathToMeasure(Path0, Path0); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := c.addPathToMeasure(Path0, Path0); err == nil {
		t.Fatalf("expected duplicate-path error")
	}
}

func TestSweepConfigClearMeasuredPaths(t *testing.T) {
	c := NewSweepConfig()
	_ = c.addPathToMeasure(Path0, Path1)
	c.clearMeasuredPaths()
	if c.MeasuredPathCount() != 0 {
		t.Fatalf("expected 0 paths after clear, got %d", c.MeasuredPathCount())
	}
}

func TestSweepConfigFrequenciesReturnsCopy(t *testing.T) {
	c := NewSweepConfig()
	c.setFrequenciesRaw([]float64{1, 2, 3})
	got := c.Frequencies()
	got[0] = 999
	again := c.Frequencies()
	if again[0] != 1 {
		t.Fatalf("Frequencies() leaked internal slice: got %v after external mutation", again)
	}
}

func TestPathPairString(t *testing.T) {
	p := PathPair{Tx: Path1, Rx: Path2}
	if got := p.String(); got == "" {
		t.Fatalf("expected a non-empty String() representation")
	}
}
