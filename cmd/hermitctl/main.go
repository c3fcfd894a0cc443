// Command hermitctl inspects a compiled BootInfo descriptor, per spec.md
// §6's external interface for boot-time tooling. Grounded on
// tinyrange-cc's internal/cmd/kernel/main.go flag.NewFlagSet pattern.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hermit-os/kernel-go/boot"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	describe := fs.String("describe", "", "Decode and print the BootInfo YAML file at this path")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if *describe == "" {
		fmt.Fprintln(os.Stderr, "usage: hermitctl -describe <bootinfo.yaml>")
		os.Exit(2)
	}

	data, err := os.ReadFile(*describe)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hermitctl: read %q: %v\n", *describe, err)
		os.Exit(1)
	}

	info, err := boot.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hermitctl: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("platform:     %s\n", info.Platform)
	fmt.Printf("arch:         %s\n", info.Arch)
	fmt.Printf("cpu count:    %d\n", info.CPUCount)
	fmt.Printf("ram:          [%#x, %#x)\n", info.RAMStart, info.RAMStart+info.RAMSize)
	fmt.Printf("kernel image: [%#x, %#x)\n", info.KernelImageStart, info.KernelImageEnd)
	if info.FDTAddress != 0 {
		fmt.Printf("fdt address:  %#x\n", info.FDTAddress)
	}
	fmt.Printf("command line: %q\n", info.CommandLine)
}
