package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/psylab/epochsync/internal/clocksync"
	"github.com/psylab/epochsync/internal/config"
	"github.com/psylab/epochsync/internal/epoch"
	"github.com/psylab/epochsync/internal/loader"
	"github.com/psylab/epochsync/internal/logtree"
)

var (
	// Global flags
	verbose        bool
	optionsFile    string
	entryDelimiter string
	kvDelimiter    string
	depthKey       string
	patterns       []string
	edfSignal      string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "epochsync",
	Short: "epochsync - experiment log trees and cross-clock epoch alignment",
	Long: `epochsync parses flat experiment logs into hierarchical trees,
extracts condition epochs from depth markers, and aligns their
timestamps against a physiological recording's trigger channel.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree [log-file]",
	Short: "Parse a log file and print the session tree as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTree,
}

var extractCmd = &cobra.Command{
	Use:   "extract [log-file]",
	Short: "Extract epoch specs from a log file and print them as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var alignCmd = &cobra.Command{
	Use:   "align [log-file] [trigger-file]",
	Short: "Align log epochs against a trigger recording",
	Long: `Parses the log, extracts epoch specs for the configured condition
patterns, reads the trigger recording (CSV, JSON, NDJSON or EDF), and
prints the aligned windows grouped by condition as JSON.`,
	Args: cobra.ExactArgs(2),
	RunE: runAlign,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&optionsFile, "options", "", "YAML sync options file")
	rootCmd.PersistentFlags().StringVar(&entryDelimiter, "entry-delimiter", "", "entry delimiter (default newline)")
	rootCmd.PersistentFlags().StringVar(&kvDelimiter, "kv-delimiter", "", "key/value delimiter (default \":\")")
	rootCmd.PersistentFlags().StringVar(&depthKey, "depth-key", "", "depth marker key (default \"Level\")")
	rootCmd.PersistentFlags().StringSliceVarP(&patterns, "pattern", "p", nil, "condition glob pattern (repeatable)")
	rootCmd.PersistentFlags().StringVar(&edfSignal, "edf-signal", "", "EDF trigger signal label")

	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(alignCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveOptions merges the options file, if any, with flag overrides.
func resolveOptions() (config.SyncOptions, error) {
	opts := config.DefaultSyncOptions()
	if optionsFile != "" {
		loaded, err := config.LoadSyncOptions(optionsFile)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}
	if entryDelimiter != "" {
		opts.EntryDelimiter = entryDelimiter
	}
	if kvDelimiter != "" {
		opts.KVDelimiter = kvDelimiter
	}
	if depthKey != "" {
		opts.DepthKey = depthKey
	}
	if len(patterns) > 0 {
		opts.ConditionPatterns = patterns
	}
	if edfSignal != "" {
		opts.EDFSignal = edfSignal
	}
	return opts, nil
}

func buildTree(path string, opts config.SyncOptions) (*logtree.Node, error) {
	payload, err := loader.ReadLogPayload(path)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	root, err := logtree.Build(payload, logtree.Options{
		EntryDelimiter: opts.EntryDelimiter,
		KVDelimiter:    opts.KVDelimiter,
		DepthKey:       opts.DepthKey,
	})
	if err != nil {
		return nil, fmt.Errorf("build tree: %w", err)
	}
	logtree.Normalize(root, opts.DepthKey)
	logtree.Reorder(root, opts.DepthKey, logger)
	return root, nil
}

func extractSpecs(root *logtree.Node, opts config.SyncOptions) ([]epoch.Spec, int, error) {
	if len(opts.ConditionPatterns) == 0 {
		return nil, 0, fmt.Errorf("no condition patterns given (use --pattern or an options file)")
	}
	ex := epoch.NewExtractor(opts.ConditionPatterns, logger)
	specs := ex.Extract(root)
	return specs, ex.Skipped(), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runTree(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}
	root, err := buildTree(args[0], opts)
	if err != nil {
		return err
	}
	return printJSON(root)
}

func runExtract(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}
	root, err := buildTree(args[0], opts)
	if err != nil {
		return err
	}
	specs, skipped, err := extractSpecs(root, opts)
	if err != nil {
		return err
	}
	if skipped > 0 {
		logger.Warn("skipped incomplete markers", "count", skipped)
	}
	return printJSON(specs)
}

func runAlign(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions()
	if err != nil {
		return err
	}
	root, err := buildTree(args[0], opts)
	if err != nil {
		return err
	}
	specs, skipped, err := extractSpecs(root, opts)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("no epochs matched the condition patterns")
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read triggers: %w", err)
	}
	triggers, err := loader.ReadTriggers(args[1], data, opts.EDFSignal)
	if err != nil {
		return fmt.Errorf("parse triggers: %w", err)
	}

	aligned, err := clocksync.Align(specs, triggers, logger)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"epochs":          clocksync.GroupByCondition(aligned),
		"aligned":         aligned,
		"skipped_markers": skipped,
	})
}
