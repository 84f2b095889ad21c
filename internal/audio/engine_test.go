// SPDX-License-Identifier: MIT
package audio

import (
	"testing"

	"bassmonitor/internal/analysis"
	"bassmonitor/internal/config"
	"bassmonitor/internal/intensity"
	"bassmonitor/pkg/utils"
)

func TestNewEngineValidation(t *testing.T) {
	if _, err := NewEngine(nil, &discardProcessor{}); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := NewEngine(testConfig(), nil); err == nil {
		t.Error("Expected error for nil processor")
	}

	cfg := testConfig()
	cfg.Audio.GateThreshold = 0.2
	e, err := NewEngine(cfg, &discardProcessor{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if !e.gateEnabled || e.GateThreshold() != float64(float32(0.2)) {
		t.Errorf("Gate should be enabled from config, got enabled=%v threshold=%v", e.gateEnabled, e.GateThreshold())
	}
}

func TestDownmix(t *testing.T) {
	tests := []struct {
		name string
		dst  int
		in   [][]float32
		want []float32
	}{
		{"no channels", 4, nil, []float32{}},
		{"mono copies", 4, [][]float32{{0.1, 0.2, 0.3}}, []float32{0.1, 0.2, 0.3}},
		{"stereo averages", 4, [][]float32{{1, 0, -1}, {0, 0, 1}}, []float32{0.5, 0, 0}},
		{"quad averages", 2, [][]float32{{1, 1}, {1, 1}, {0, 1}, {0, 1}}, []float32{0.5, 1}},
		{"capped by dst", 2, [][]float32{{1, 2, 3}, {1, 2, 3}}, []float32{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]float32, tt.dst)
			n := Downmix(dst, tt.in)
			if n != len(tt.want) {
				t.Fatalf("Downmix returned %d frames, want %d", n, len(tt.want))
			}
			for i, w := range tt.want {
				if dst[i] != w {
					t.Errorf("dst[%d] = %v, want %v", i, dst[i], w)
				}
			}
		})
	}
}

func TestPassThrough(t *testing.T) {
	in := [][]float32{{0.1, 0.2}}
	out := [][]float32{{9, 9}, {9, 9}}

	passThrough(out, in)
	for c := range out {
		if out[c][0] != 0.1 || out[c][1] != 0.2 {
			t.Errorf("out[%d] = %v, want mono input repeated", c, out[c])
		}
	}

	passThrough(out, nil)
	for c := range out {
		if out[c][0] != 0 || out[c][1] != 0 {
			t.Errorf("out[%d] = %v, want silence without input", c, out[c])
		}
	}
}

func TestProcessFeedsMonoBlock(t *testing.T) {
	rec := &blockRecorder{}
	e, err := NewEngine(testConfig(), rec)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	in := stereoBlock(testFrameSize, 0.5, -0.25)
	out := [][]float32{make([]float32, testFrameSize), make([]float32, testFrameSize)}
	e.Process(in, out)

	if len(rec.blocks) != 1 || len(rec.blocks[0]) != testFrameSize {
		t.Fatalf("Expected one block of %d frames, got %d blocks", testFrameSize, len(rec.blocks))
	}
	if got := rec.blocks[0][0]; got != 0.125 {
		t.Errorf("Downmixed sample = %v, want 0.125", got)
	}
	if out[0][10] != 0.5 || out[1][10] != -0.25 {
		t.Errorf("Output should pass input through, got %v / %v", out[0][10], out[1][10])
	}
	if e.Blocks() != 1 {
		t.Errorf("Blocks = %d, want 1", e.Blocks())
	}
}

func TestProcessGateSilencesQuietBlocks(t *testing.T) {
	rec := &blockRecorder{}
	e, _ := NewEngine(testConfig(), rec)
	e.SetGateThreshold(0.1)
	e.EnableGate()

	e.Process(stereoBlock(64, 0.05, 0.05), nil)
	e.Process(stereoBlock(64, 0.5, 0.5), nil)

	for _, v := range rec.blocks[0] {
		if v != 0 {
			t.Fatalf("Quiet block should reach the analyser as silence, got %v", v)
		}
	}
	if rec.blocks[1][0] != 0.5 {
		t.Errorf("Loud block should pass, got %v", rec.blocks[1][0])
	}
}

// TestProcessDrivesAnalyzer runs a bass tone through the engine and checks
// that intensities come out the other side of the channel.
func TestProcessDrivesAnalyzer(t *testing.T) {
	cfg := testConfig()
	cfg.Analysis.FFTSize = 4096

	tx, rx := intensity.New(16)
	an, err := analysis.NewAnalyzer(analysis.AnalyzerConfig{
		FFTSize:    cfg.Analysis.FFTSize,
		SampleRate: cfg.Audio.SampleRate,
		Window:     analysis.Rectangular,
		Policy:     analysis.DiscardOnOverflow,
		Params:     analysis.NewParams(analysis.Band{LowFreq: 20, HighFreq: 200, BassCutoff: 0.3}),
	}, tx)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	e, _ := NewEngine(cfg, an)
	tone := utils.GenerateSineWave(testFrameSize*16, testSampleRate, 100, 0.8)
	for off := 0; off < len(tone); off += testFrameSize {
		block := tone[off : off+testFrameSize]
		e.Process([][]float32{block, block}, nil)
	}

	if an.Transforms() == 0 {
		t.Fatal("Expected at least one transform")
	}
	v, status := rx.TryReceive()
	if status != intensity.Received {
		t.Fatalf("Expected an intensity, got %s", status)
	}
	if v < analysis.MinIntensity || v > analysis.MaxIntensity {
		t.Errorf("Tone inside the band should yield a non-zero intensity, got %v", v)
	}
}

func TestProcessNoAllocsHotPath(t *testing.T) {
	e, _ := NewEngine(testConfig(), &discardProcessor{})
	e.SetGateThreshold(0.01)
	e.EnableGate()

	in := stereoBlock(testFrameSize, 0.3, -0.3)
	out := [][]float32{make([]float32, testFrameSize), make([]float32, testFrameSize)}

	allocs := testing.AllocsPerRun(100, func() {
		e.Process(in, out)
	})
	if allocs > 0 {
		t.Errorf("Process allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func TestEngineMonoBufferCoversMaxFrames(t *testing.T) {
	e, _ := NewEngine(testConfig(), &discardProcessor{})
	if len(e.mono) != config.MaxBufferFrames {
		t.Errorf("mono buffer = %d frames, want %d", len(e.mono), config.MaxBufferFrames)
	}
}

func BenchmarkProcessHotPath(b *testing.B) {
	e, _ := NewEngine(testConfig(), &discardProcessor{})
	in := stereoBlock(testFrameSize, 0.3, -0.3)
	out := [][]float32{make([]float32, testFrameSize), make([]float32, testFrameSize)}

	b.ReportAllocs()
	for b.Loop() {
		e.Process(in, out)
	}
}
