// Package cmd implements the command-line surface: a single positional
// model path plus flags selecting single-prompt or batch-file input,
// sampling parameters, and paging configuration.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pagedkv/llamarunner/envconfig"
	"github.com/pagedkv/llamarunner/ingest"
	"github.com/pagedkv/llamarunner/logutil"
	"github.com/pagedkv/llamarunner/model"
	"github.com/pagedkv/llamarunner/pathresolve"
	"github.com/pagedkv/llamarunner/request"
	"github.com/pagedkv/llamarunner/runner"
	"github.com/pagedkv/llamarunner/scheduler"
	"github.com/pagedkv/llamarunner/tokenizer"
	"github.com/spf13/cobra"
)

type flags struct {
	prompt            string
	inputJSON         string
	temperature       float32
	topP              float32
	steps             int
	withoutPagedAttn  bool
	blockSize         int
	numBlocks         int
	maxBatchSize      int
	maxTokensPerBatch int
	samplingOverrides map[string]string
}

// NewCLI builds the root command: pagedllama <path> [flags].
func NewCLI() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "pagedllama <model-path>",
		Short: "Run a Llama-family model with paged-attention continuous batching",
		Args:  cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
			level := slog.LevelInfo
			if envconfig.Debug {
				level = logutil.LevelTrace
			}
			slog.SetDefault(logutil.NewLogger(os.Stderr, level))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], f)
		},
	}

	root.Flags().StringVarP(&f.prompt, "prompt", "i", "", "Single prompt to run (mutually exclusive with --input-json)")
	root.Flags().StringVar(&f.inputJSON, "input-json", "", "Path to a JSON request file (mutually exclusive with --prompt)")
	root.Flags().Float32VarP(&f.temperature, "temperature", "t", 1.0, "Sampling temperature (0 selects greedy decoding)")
	root.Flags().Float32VarP(&f.topP, "top-p", "p", 0.9, "Nucleus sampling mass")
	root.Flags().IntVarP(&f.steps, "steps", "n", 256, "Maximum tokens to generate per request")
	root.Flags().BoolVar(&f.withoutPagedAttn, "without-paged-attn", false, "Use the contiguous comparison KV cache instead of paged attention")
	root.Flags().IntVar(&f.blockSize, "block-size", envconfig.BlockSize, "Token positions per physical KV block")
	root.Flags().IntVar(&f.numBlocks, "num-blocks", envconfig.NumBlocks, "Physical blocks in the KV block pool")
	root.Flags().IntVar(&f.maxBatchSize, "max-batch-size", envconfig.MaxBatchSize, "Maximum requests per scheduled batch")
	root.Flags().IntVar(&f.maxTokensPerBatch, "max-tokens-per-batch", envconfig.MaxTokensPerBatch, "Maximum prefill tokens admitted per batch")
	root.Flags().StringToStringVar(&f.samplingOverrides, "sampling", nil, "Sampling parameter overrides applied to every request, e.g. --sampling temperature=0.7,top_p=0.95")

	return root
}

func run(path string, f *flags) error {
	if f.prompt != "" && f.inputJSON != "" {
		return fmt.Errorf("--prompt and --input-json are mutually exclusive")
	}
	if f.prompt == "" && f.inputJSON == "" {
		return fmt.Errorf("one of --prompt or --input-json is required")
	}

	modelPath, tokenizerPath, err := pathresolve.Resolve(path)
	if err != nil {
		return err
	}

	modelFile, err := os.Open(modelPath)
	if err != nil {
		return fmt.Errorf("opening model file: %w", err)
	}
	defer modelFile.Close()

	cfg, weights, err := model.LoadWeights(modelFile)
	if err != nil {
		return fmt.Errorf("loading model weights: %w", err)
	}
	cfg.UsePagedAttention = !f.withoutPagedAttn
	cfg.BlockSize = f.blockSize
	cfg.NumBlocks = f.numBlocks

	tokenizerFile, err := os.Open(tokenizerPath)
	if err != nil {
		return fmt.Errorf("opening tokenizer file: %w", err)
	}
	defer tokenizerFile.Close()

	tok, err := tokenizer.Load(tokenizerFile, cfg.VocabSize)
	if err != nil {
		return fmt.Errorf("loading tokenizer: %w", err)
	}

	reqs, err := loadRequests(f, tok, cfg.NumLayers)
	if err != nil {
		return err
	}

	if len(f.samplingOverrides) > 0 {
		overrides, err := ingest.SamplingOverrides(f.samplingOverrides)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			if _, ok := f.samplingOverrides["temperature"]; ok {
				r.Sampling.Temperature = overrides.Temperature
			}
			if _, ok := f.samplingOverrides["top_p"]; ok {
				r.Sampling.TopP = overrides.TopP
			}
			if _, ok := f.samplingOverrides["max_tokens"]; ok {
				r.Sampling.MaxTokens = overrides.MaxTokens
			}
		}
	}

	m := model.New(cfg, weights)
	sched := scheduler.New(scheduler.Config{
		MaxBatchSize:      f.maxBatchSize,
		MaxTokensPerBatch: f.maxTokensPerBatch,
	})
	rnr := runner.New(m, tok, sched)

	intake := scheduler.NewIntake()
	ingest.Submit(intake, reqs, time.Now())

	rnr.RunUntilQuiescent(intake, time.Now().UnixNano())

	for _, r := range reqs {
		fmt.Printf("--- request %d (%s) ---\n%s\n", r.Seq, r.FinishedReason, r.OutputText)
	}

	rnr.Metrics.Report(os.Stdout)
	if cfg.UsePagedAttention {
		runner.ReportKVCacheComparison(os.Stdout, cfg.NumLayers, cfg.NumKVHeads, cfg.HeadDim(), cfg.MaxSeqLen, cfg.BlockSize, cfg.NumBlocks-m.Pool.FreeCount())
	}

	return nil
}

func loadRequests(f *flags, tok *tokenizer.Tokenizer, numLayers int) ([]*request.Request, error) {
	if f.inputJSON != "" {
		file, err := os.Open(f.inputJSON)
		if err != nil {
			return nil, fmt.Errorf("opening input json: %w", err)
		}
		defer file.Close()

		reqs, err := ingest.Load(file, numLayers)
		if err != nil {
			return nil, err
		}
		ingest.Tokenize(reqs, tok)
		return reqs, nil
	}

	promptTokens := tok.Encode(f.prompt, true, false)
	params := request.SamplingParams{Temperature: f.temperature, TopP: f.topP, MaxTokens: f.steps}
	return []*request.Request{request.New(0, f.prompt, promptTokens, params, numLayers)}, nil
}
