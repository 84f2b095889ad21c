// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"
)

// OverflowPolicy writes a block of samples into w and calls flush every time
// the window has to be transformed. flush must leave the cursor at zero.
type OverflowPolicy func(w *Window, block []float32, flush func())

// DiscardOnOverflow transforms the current window contents as soon as an
// incoming block does not fit in the remaining space, then writes the whole
// block from offset zero. The unwritten tail slots go into that transform with
// whatever they held from the previous cycle, and up to one block of tail
// space per cycle is never filled with fresh samples. Blocks longer than the
// window are split into window-sized chunks first.
func DiscardOnOverflow(w *Window, block []float32, flush func()) {
	for len(block) > 0 {
		n := min(len(block), w.Capacity())
		chunk := block[:n]
		block = block[n:]

		if n > w.Remaining() {
			flush()
		}
		for _, s := range chunk {
			if w.Push(s) == Ready {
				flush()
			}
		}
	}
}

// CarryOver fills the window sample by sample and transforms every time it
// becomes full, so no sample is lost and the remainder of a block starts the
// next window.
func CarryOver(w *Window, block []float32, flush func()) {
	for _, s := range block {
		if w.Push(s) == Ready {
			flush()
		}
	}
}

// ParseOverflowPolicy maps a config name to a policy.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "discard":
		return DiscardOnOverflow, nil
	case "carry", "carry-over", "carryover":
		return CarryOver, nil
	default:
		return DiscardOnOverflow, fmt.Errorf("unknown overflow policy: '%s'", name)
	}
}
