package strategies

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMACrossGeneratorFiresOnGoldenCross(t *testing.T) {
	// fast(2) crosses above slow(4) once the recent uptick pulls it past
	closes := []float64{10, 10, 10, 10, 20, 20}
	g := MACrossGenerator{FastPeriod: 2, SlowPeriod: 4}
	sigs := g.Generate(closes)

	found := false
	for _, s := range sigs {
		if s.LongEntry {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a long entry signal on golden cross, got none in %+v", sigs)
	}
}

func TestRSIGeneratorFiresLongEntryWhenOversold(t *testing.T) {
	closes := []float64{100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 87, 86}
	g := RSIGenerator{Period: 14, OversoldThreshold: 30, OverboughtThreshold: 70}
	sigs := g.Generate(closes)

	last := sigs[len(sigs)-1]
	if !last.LongEntry {
		t.Fatalf("expected long entry on sustained decline (oversold RSI), got %+v", last)
	}
}

func TestBollingerGeneratorFiresLongEntryAtLowerBand(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 50}
	g := BollingerGenerator{Period: 5, NumStdDev: 1.0}
	sigs := g.Generate(closes)

	last := sigs[len(sigs)-1]
	if !last.LongEntry {
		t.Fatalf("expected long entry breaking below lower band, got %+v", last)
	}
}

func TestLoadPresetsParsesYAMLAndBuildsGenerators(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	yamlContent := `
strategies:
  - id: s1
    name: fast-ma-cross
    type: ma_cross
    symbol: BTCUSDT
    is_active: true
    parameters:
      fast_period: 5
      slow_period: 20
  - id: s2
    name: classic-rsi
    type: rsi
    symbol: ETHUSDT
    is_active: true
    parameters:
      period: 14
      oversold: 30
      overbought: 70
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write preset file: %v", err)
	}

	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("load presets: %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("expected 2 presets, got %d", len(presets))
	}

	gen, err := Build(presets[0])
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}
	if _, ok := gen.(MACrossGenerator); !ok {
		t.Fatalf("expected MACrossGenerator, got %T", gen)
	}

	gen2, err := Build(presets[1])
	if err != nil {
		t.Fatalf("build generator: %v", err)
	}
	if _, ok := gen2.(RSIGenerator); !ok {
		t.Fatalf("expected RSIGenerator, got %T", gen2)
	}
}

func TestBuildRejectsUnknownPresetType(t *testing.T) {
	_, err := Build(Preset{Type: "unknown"})
	if err == nil {
		t.Fatalf("expected error for unknown preset type")
	}
}
