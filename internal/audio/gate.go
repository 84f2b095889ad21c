// SPDX-License-Identifier: MIT
package audio

// EnableGate makes blocks whose peak is at or below the threshold reach the
// analyser as silence.
func (e *Engine) EnableGate() {
	e.gateEnabled = true
}

// DisableGate passes every block to the analyser unchanged.
func (e *Engine) DisableGate() {
	e.gateEnabled = false
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	e.gateThreshold = float32(min(max(threshold, 0), 1))
}

// GateThreshold returns the current noise gate threshold.
func (e *Engine) GateThreshold() float64 {
	return float64(e.gateThreshold)
}

// gateOpen reports whether any sample of block exceeds threshold.
func gateOpen(block []float32, threshold float32) bool {
	var peak float32
	for _, v := range block {
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return peak > threshold
}
