package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/stylegans/stylegans/logutil"
)

const defaultDir = "/tmp/stylegans-pytorch"

var (
	// Set via STYLEGANS_DEBUG in the environment. 1 enables debug logging, 2 enables trace logging
	Debug int
	// Set via STYLEGANS_WEIGHT_DIR in the environment
	WeightDir string
	// Set via STYLEGANS_OUTPUT_DIR in the environment
	OutputDir string
	// Set via STYLEGANS_NUM_THREADS in the environment
	NumThreads int
	// Set via STYLEGANS_NOPROGRESS in the environment
	NoProgress bool
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"STYLEGANS_DEBUG":       {"STYLEGANS_DEBUG", Debug, "Show additional debug information (e.g. STYLEGANS_DEBUG=1)"},
		"STYLEGANS_WEIGHT_DIR":  {"STYLEGANS_WEIGHT_DIR", WeightDir, "Directory holding source weights and converted checkpoints (default \"" + defaultDir + "\")"},
		"STYLEGANS_OUTPUT_DIR":  {"STYLEGANS_OUTPUT_DIR", OutputDir, "Directory holding latents and generated images (default \"" + defaultDir + "\")"},
		"STYLEGANS_NUM_THREADS": {"STYLEGANS_NUM_THREADS", NumThreads, "Maximum number of samples computed in parallel (default number of CPUs)"},
		"STYLEGANS_NOPROGRESS":  {"STYLEGANS_NOPROGRESS", NoProgress, "Do not render progress bars"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug = 0
	if debug := clean("STYLEGANS_DEBUG"); debug != "" {
		if n, err := strconv.Atoi(debug); err == nil {
			Debug = n
		} else if b, err := strconv.ParseBool(debug); err == nil {
			if b {
				Debug = 1
			}
		} else {
			Debug = 1
		}
	}

	WeightDir = defaultDir
	if dir := clean("STYLEGANS_WEIGHT_DIR"); dir != "" {
		WeightDir = dir
	}

	OutputDir = defaultDir
	if dir := clean("STYLEGANS_OUTPUT_DIR"); dir != "" {
		OutputDir = dir
	}

	NumThreads = runtime.NumCPU()
	if n := clean("STYLEGANS_NUM_THREADS"); n != "" {
		val, err := strconv.Atoi(n)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "STYLEGANS_NUM_THREADS", n, "error", err)
		} else {
			NumThreads = val
		}
	}

	NoProgress = false
	if noprogress := clean("STYLEGANS_NOPROGRESS"); noprogress != "" {
		b, err := strconv.ParseBool(noprogress)
		NoProgress = err != nil || b
	}
}

func LogLevel() slog.Level {
	switch {
	case Debug >= 2:
		return logutil.LevelTrace
	case Debug == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
