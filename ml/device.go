package ml

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

type Device int

const (
	CPU Device = iota
	GPU
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(s) {
	case "cpu":
		return CPU, nil
	case "gpu", "cuda":
		return GPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q, expected gpu or cpu", s)
	}
}

// SelectDevice resolves the requested device to one that is available. No
// accelerator backend is compiled in, so a GPU request runs on the CPU.
func SelectDevice(requested Device) Device {
	if requested == GPU {
		slog.Warn("no accelerator backend available, using cpu", "requested", requested)
	}

	slog.Info("inference device", "device", CPU, "arch", runtime.GOARCH, "features", strings.Join(cpuFeatures(), ","))
	return CPU
}

func cpuFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		for _, f := range []struct {
			name string
			ok   bool
		}{
			{"sse4.1", cpu.X86.HasSSE41},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
			{"fma", cpu.X86.HasFMA},
			{"avx512f", cpu.X86.HasAVX512F},
		} {
			if f.ok {
				features = append(features, f.name)
			}
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fphp")
		}
	}

	return features
}
