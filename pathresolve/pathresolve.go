// Package pathresolve turns a single user-supplied path into a model
// weights file and a tokenizer file, the way the CLI's positional
// argument is resolved: a directory is expected to hold model.bin and
// tokenizer.bin, a file is used directly as the model with its
// tokenizer.bin looked for alongside it and, failing that, in the
// current working directory.
package pathresolve

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Resolve returns the model path and tokenizer path implied by input.
func Resolve(input string) (modelPath, tokenizerPath string, err error) {
	info, err := os.Stat(input)
	if err != nil {
		return "", "", fmt.Errorf("pathresolve: %w", err)
	}

	if info.IsDir() {
		modelPath = filepath.Join(input, "model.bin")
		tokenizerPath = filepath.Join(input, "tokenizer.bin")

		if _, err := os.Stat(modelPath); err != nil {
			return "", "", fmt.Errorf("pathresolve: model.bin not found in %s", input)
		}
		if _, err := os.Stat(tokenizerPath); err != nil {
			return "", "", fmt.Errorf("pathresolve: tokenizer.bin not found in %s", input)
		}
		slog.Debug("resolved model directory", "path", input)
		return modelPath, tokenizerPath, nil
	}

	modelPath = input
	parent := filepath.Dir(input)
	tokenizerPath = filepath.Join(parent, "tokenizer.bin")

	if _, err := os.Stat(tokenizerPath); err != nil {
		slog.Warn("tokenizer.bin not found next to model, trying current directory", "parent", parent)
		tokenizerPath = "tokenizer.bin"
		if _, err := os.Stat(tokenizerPath); err != nil {
			return "", "", fmt.Errorf("pathresolve: tokenizer.bin not found next to %s or in the current directory", input)
		}
	}

	return modelPath, tokenizerPath, nil
}
