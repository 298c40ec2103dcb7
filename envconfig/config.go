package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ZailiWang/sglang/logutil"
)

var (
	// Set via SGLANG_DEBUG in the environment
	Debug bool
	// Set via SGLANG_DEBUG in the environment. Values above 1 enable trace logging.
	DebugLevel int
	// Set via SGLANG_DOWNLOAD_DIR in the environment
	DownloadDir string
	// Set via SGLANG_QUANTIZATION in the environment
	Quantization string
	// Set via SGLANG_IGNORE_PATTERNS in the environment
	IgnorePatterns []string
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SGLANG_DEBUG":           {"SGLANG_DEBUG", DebugLevel, "Show additional debug information (e.g. SGLANG_DEBUG=1, SGLANG_DEBUG=2 for trace)"},
		"SGLANG_DOWNLOAD_DIR":    {"SGLANG_DOWNLOAD_DIR", DownloadDir, "Checkpoint directory read when no model filesystem is given"},
		"SGLANG_QUANTIZATION":    {"SGLANG_QUANTIZATION", Quantization, "Quantization method to use when none is requested, must agree with the checkpoint's quantization_config"},
		"SGLANG_IGNORE_PATTERNS": {"SGLANG_IGNORE_PATTERNS", IgnorePatterns, "A comma separated list of checkpoint file patterns to skip"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var defaultIgnorePatterns = []string{
	"original/**/*",
	"*.pt",
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Debug, DebugLevel = false, 0
	if debug := clean("SGLANG_DEBUG"); debug != "" {
		if n, err := strconv.Atoi(debug); err == nil {
			DebugLevel = n
		} else if b, err := strconv.ParseBool(debug); err == nil {
			if b {
				DebugLevel = 1
			}
		} else {
			DebugLevel = 1
		}
		Debug = DebugLevel > 0
	}

	DownloadDir = clean("SGLANG_DOWNLOAD_DIR")
	Quantization = strings.ToLower(clean("SGLANG_QUANTIZATION"))

	IgnorePatterns = defaultIgnorePatterns
	if patterns := clean("SGLANG_IGNORE_PATTERNS"); patterns != "" {
		IgnorePatterns = nil
		for _, p := range strings.Split(patterns, ",") {
			if p = strings.TrimSpace(p); p != "" {
				IgnorePatterns = append(IgnorePatterns, p)
			}
		}
	}
}

// LogLevel maps SGLANG_DEBUG to a slog level: unset is INFO, 1 is DEBUG and
// anything higher is TRACE.
func LogLevel() slog.Level {
	switch {
	case DebugLevel > 1:
		return logutil.LevelTrace
	case DebugLevel == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
