// Package archconst holds the small set of architecture-keyed constants
// shared across mm, sched, and interrupts, following the same
// string-typed-enum shape the teacher uses for hv.CpuArchitecture
// (internal/hv/common.go) to key per-architecture tables without resorting
// to runtime type switches on every hot path.
package archconst

// Arch identifies one of the three supported instruction set architectures.
type Arch string

const (
	X86_64  Arch = "x86_64"
	AArch64 Arch = "aarch64"
	RISCV64 Arch = "riscv64"
)

// Native is the Arch matching the Go build's GOARCH, resolved in
// arch_*.go via build tags the same way the teacher resolves
// hv.ArchitectureNative in internal/hv/common.go.
var Native Arch
