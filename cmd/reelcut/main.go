package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kikiluvv/reelcut/internal/config"
	"github.com/kikiluvv/reelcut/internal/logging"
	"github.com/kikiluvv/reelcut/internal/pipeline"
	"github.com/kikiluvv/reelcut/internal/reel"
	"github.com/kikiluvv/reelcut/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode separates "nothing worth showing" from real failures.
func exitCode(err error) int {
	var nh *reel.NoHighlightsError
	var ae *reel.AssemblyError
	switch {
	case errors.As(err, &nh):
		fmt.Fprintf(os.Stderr, "no usable footage: %v\n", err)
		return 2
	case errors.As(err, &ae):
		fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
		return 3
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

var rootCmd = &cobra.Command{
	Use:           "reelcut",
	Short:         "reelcut - highlight extraction and reel assembly",
	Long:          "Cuts the most active moments out of one or more source videos and stitches them into a single crossfaded highlight reel.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

var generateFlags struct {
	subject        string
	topK           int
	minLen         float64
	maxLen         float64
	padBefore      float64
	crossfade      float64
	dedupThreshold int
	outputDir      string
	strategy       string
	deadline       time.Duration
}

var generateCmd = &cobra.Command{
	Use:   "generate --subject <id> <locator>...",
	Short: "Build a highlight reel from source videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		applyGenerateFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if generateFlags.deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, generateFlags.deadline)
			defer cancel()
		}

		hr, err := pipe.GenerateReel(ctx, generateFlags.subject, args)
		if err != nil {
			return err
		}

		log.Info().
			Str("reel", hr.Path).
			Int("clips", len(hr.Clips)).
			Float64("duration", hr.Duration).
			Msg("done")
		fmt.Fprintln(cmd.OutOrStdout(), hr.Path)
		return nil
	},
}

// applyGenerateFlags copies explicitly set flags over the loaded config.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("top-k") {
		cfg.Reel.TopKPerSource = generateFlags.topK
	}
	if f.Changed("min-len") {
		cfg.Reel.MinLen = generateFlags.minLen
	}
	if f.Changed("max-len") {
		cfg.Reel.MaxLen = generateFlags.maxLen
	}
	if f.Changed("pad-before") {
		cfg.Reel.PadBefore = generateFlags.padBefore
	}
	if f.Changed("crossfade") {
		cfg.Reel.Crossfade = generateFlags.crossfade
	}
	if f.Changed("dedup-threshold") {
		cfg.Reel.DedupThreshold = generateFlags.dedupThreshold
	}
	if f.Changed("output-dir") {
		cfg.OutputDir = generateFlags.outputDir
	}
	if f.Changed("strategy") {
		cfg.Ranking.Strategy = generateFlags.strategy
	}
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Detect and rank highlights in a local video without encoding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}

		a, err := pipe.Analyze(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		for _, seg := range a.Selected {
			log.Info().
				Int("rank", seg.Rank).
				Float64("start", seg.Start).
				Float64("end", seg.End).
				Float64("motion", seg.Motion).
				Float64("density", seg.Density).
				Bool("spike", seg.Spike).
				Float64("score", seg.Composite).
				Bool("fallback", seg.Fallback).
				Msg("segment")
		}

		log.Info().
			Str("input", args[0]).
			Int("scenes", len(a.Scenes)).
			Int("candidates", len(a.Candidates)).
			Int("selected", len(a.Selected)).
			Msg("analysis complete")

		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "./reelcut.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./reelcut.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	f := generateCmd.Flags()
	f.StringVar(&generateFlags.subject, "subject", "", "subject identifier used for logging and output naming")
	f.IntVar(&generateFlags.topK, "top-k", 3, "highlights kept per source")
	f.Float64Var(&generateFlags.minLen, "min-len", 3, "minimum clip length in seconds")
	f.Float64Var(&generateFlags.maxLen, "max-len", 12, "maximum clip length in seconds")
	f.Float64Var(&generateFlags.padBefore, "pad-before", 0.3, "seconds of lead-in before each highlight")
	f.Float64Var(&generateFlags.crossfade, "crossfade", 0.5, "crossfade length in seconds")
	f.IntVar(&generateFlags.dedupThreshold, "dedup-threshold", 5, "max hash distance treated as a duplicate")
	f.StringVar(&generateFlags.outputDir, "output-dir", "", "directory the reel is written to")
	f.StringVar(&generateFlags.strategy, "strategy", config.StrategyScore, "ranking strategy: score or llm")
	f.DurationVar(&generateFlags.deadline, "deadline", 0, "stop processing sources after this long and assemble what was cut")
	_ = generateCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
