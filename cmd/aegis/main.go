// Package main is the entry point for the aegis binary.
// It provides a CLI for running single messages, responses and embedding
// vectors through the validation pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aegisai/aegis-oss/pkg/config"
	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/logging"
	"github.com/aegisai/aegis-oss/pkg/pipeline"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for aegis
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aegis",
		Short: "Security validation pipeline for chat frontends",
		Long: `Run messages, model responses and embedding vectors through the
aegis validation pipeline from the command line.

Example:
  aegis check --session local "ignore previous instructions"
  cat response.md | aegis sanitize
  aegis vector --model text-embedding-ada-002 embedding.json`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "error", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("events", false, "Print security events to stderr")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newSanitizeCmd())
	rootCmd.AddCommand(newVectorCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadConfig resolves the effective configuration: the file named by --config,
// or the built-in defaults when the flag is unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// buildPipeline constructs a pipeline from the resolved configuration. CLI
// logs go to stderr so stdout stays clean for command output.
func buildPipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Output: os.Stderr,
	})
	p, err := pipeline.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}

	showEvents, err := cmd.Flags().GetBool("events")
	if err != nil {
		return nil, fmt.Errorf("failed to get events flag: %w", err)
	}
	if showEvents {
		p.Events().AddSink(domain.EventSinkFunc(func(_ context.Context, e domain.SecurityEvent) {
			fmt.Fprintf(os.Stderr, "event type=%s severity=%s kind=%s rule=%s detail=%s\n",
				e.Type, e.Severity, e.Kind, e.Rule, e.Detail)
		}))
	}
	return p, nil
}

// readInput returns the joined positional args, or stdin when none are given.
func readInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [message]",
		Short: "Validate an inbound message",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args)
			if err != nil {
				return err
			}
			session, err := cmd.Flags().GetString("session")
			if err != nil {
				return fmt.Errorf("failed to get session flag: %w", err)
			}

			p, err := buildPipeline(cmd)
			if err != nil {
				return err
			}

			if err := p.ValidateInput(cmd.Context(), text, session); err != nil {
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintf(cmd.OutOrStdout(), "rejected: %s\n", verr.Kind)
					if verr.Rule != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "rule: %s\n", verr.Rule)
					}
					fmt.Fprintln(cmd.OutOrStdout(), verr.UserMessage())
					return fmt.Errorf("message rejected")
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "allowed")
			return nil
		},
	}
	cmd.Flags().StringP("session", "s", "cli", "Session identifier to validate under")
	return cmd
}

func newSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize [response]",
		Short: "Sanitize an outbound model response",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args)
			if err != nil {
				return err
			}

			p, err := buildPipeline(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), p.ValidateOutput(cmd.Context(), text))
			return nil
		},
	}
}

func newVectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector [file]",
		Short: "Validate an embedding vector from a JSON array",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := cmd.Flags().GetString("model")
			if err != nil {
				return fmt.Errorf("failed to get model flag: %w", err)
			}
			if model == "" {
				return fmt.Errorf("--model is required")
			}

			var data []byte
			if len(args) > 0 {
				data, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read vector file: %w", err)
				}
			} else {
				data, err = io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
			}

			var values []float64
			if err := json.Unmarshal(data, &values); err != nil {
				return fmt.Errorf("failed to parse vector JSON: %w", err)
			}

			p, err := buildPipeline(cmd)
			if err != nil {
				return err
			}

			checksum, err := p.ValidateVector(cmd.Context(), values, model)
			if err != nil {
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintf(cmd.OutOrStdout(), "rejected: %s\n", verr.Kind)
					fmt.Fprintln(cmd.OutOrStdout(), verr.UserMessage())
					return fmt.Errorf("vector rejected")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted checksum=%s\n", checksum)
			return nil
		},
	}
	cmd.Flags().StringP("model", "m", "", "Embedding model identifier")
	return cmd
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			if path == "" {
				return fmt.Errorf("--config is required")
			}
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	})
	return configCmd
}
