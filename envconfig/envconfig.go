// Package envconfig holds the runner's environment-variable overrides,
// read once at startup and exposed both as package-level vars for
// direct use and via AsMap for diagnostics.
package envconfig

import (
	"os"
	"strconv"
)

var (
	// Set via PAGEDLLAMA_BLOCK_SIZE. Number of token positions held per
	// physical KV block.
	BlockSize int
	// Set via PAGEDLLAMA_NUM_BLOCKS. Physical blocks in the pool.
	NumBlocks int
	// Set via PAGEDLLAMA_MAX_BATCH_SIZE. Cap on requests per scheduled batch.
	MaxBatchSize int
	// Set via PAGEDLLAMA_MAX_TOKENS_PER_BATCH. Cap on prefill tokens per batch.
	MaxTokensPerBatch int
	// Set via PAGEDLLAMA_DEBUG. Enables trace-level logging.
	Debug bool
)

func init() {
	BlockSize = intFromEnv("PAGEDLLAMA_BLOCK_SIZE", 16)
	NumBlocks = intFromEnv("PAGEDLLAMA_NUM_BLOCKS", 256)
	MaxBatchSize = intFromEnv("PAGEDLLAMA_MAX_BATCH_SIZE", 16)
	MaxTokensPerBatch = intFromEnv("PAGEDLLAMA_MAX_TOKENS_PER_BATCH", 2048)
	Debug = boolFromEnv("PAGEDLLAMA_DEBUG", false)
}

func intFromEnv(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvVar documents one environment override for diagnostics output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap reports the current value of every recognized environment
// variable, for a --help-style diagnostics dump.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"PAGEDLLAMA_BLOCK_SIZE":           {"PAGEDLLAMA_BLOCK_SIZE", BlockSize, "Token positions per physical KV block (default 16)"},
		"PAGEDLLAMA_NUM_BLOCKS":           {"PAGEDLLAMA_NUM_BLOCKS", NumBlocks, "Physical blocks in the KV block pool (default 256)"},
		"PAGEDLLAMA_MAX_BATCH_SIZE":       {"PAGEDLLAMA_MAX_BATCH_SIZE", MaxBatchSize, "Maximum requests per scheduled batch (default 16)"},
		"PAGEDLLAMA_MAX_TOKENS_PER_BATCH": {"PAGEDLLAMA_MAX_TOKENS_PER_BATCH", MaxTokensPerBatch, "Maximum prefill tokens admitted per batch (default 2048)"},
		"PAGEDLLAMA_DEBUG":                {"PAGEDLLAMA_DEBUG", Debug, "Enable trace-level logging"},
	}
}
