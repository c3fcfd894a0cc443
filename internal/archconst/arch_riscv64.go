//go:build riscv64

package archconst

func init() { Native = RISCV64 }
