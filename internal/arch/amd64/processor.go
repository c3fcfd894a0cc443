package amd64

import "log/slog"

// Features mirrors the subset of original_source's processor::CpuFeatures
// bitflags this kernel acts on (original_source/src/arch/x86_64/kernel/processor.rs),
// represented as simulated capabilities since this kernel never executes a
// real CPUID instruction.
type Features struct {
	TSCDeadline bool
	X2APIC      bool
	NX          bool
}

// HostedFeatures is what every simulated core reports: the modern baseline
// the rest of this package assumes (TSC-deadline timer, x2APIC, NX bit),
// matching what the original requires as a hard minimum on real hardware.
func HostedFeatures() Features {
	return Features{TSCDeadline: true, X2APIC: true, NX: true}
}

// Halt is the idle-task body's innermost step, standing in for the `hlt`
// instruction original_source's processor::halt() issues: block until
// something wakes this core rather than spin, per spec.md §4.4's idle task
// contract.
func Halt(wakeup <-chan struct{}) {
	<-wakeup
}

// Shutdown logs the ACPI-initiated shutdown spec.md §4.7 describes (writing
// SLP_TYPa|SLP_EN to the FADT's PM1a control block). It only logs: there is
// no real chipset here to accept the write, and the process is not ended.
func Shutdown(logger *slog.Logger, exitCode int) {
	logger.Info("amd64: shutdown requested", slog.Int("exit_code", exitCode))
}
