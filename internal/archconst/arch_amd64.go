//go:build amd64

package archconst

func init() { Native = X86_64 }
