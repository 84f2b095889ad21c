// SPDX-License-Identifier: MIT
package analysis

// Processor is implemented by components that consume mono audio blocks.
// Process is called from the real-time audio callback: implementations must
// not block, lock, or allocate in steady state.
type Processor interface {
	Process(block []float32)
}

// Compile-time check for interface implementation.
var _ Processor = (*Analyzer)(nil)
