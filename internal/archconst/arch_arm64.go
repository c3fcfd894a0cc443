//go:build arm64

package archconst

func init() { Native = AArch64 }
