package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	v1 "agrocert/certification-backend/api/v1"
	"agrocert/certification-backend/internal/auth"
	"agrocert/certification-backend/internal/certification"
)

func topicCmd(flags *globalFlags) *cobra.Command {
	topic := &cobra.Command{
		Use:   "topic",
		Short: "Manage the attestation log.",
	}

	var memo string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new attestation topic and print its id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()

			api, err := v1.SetupCertificationAPI(cfg, v1.SetupOptions{}, logger)
			if err != nil {
				return err
			}
			defer api.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Issuance.StepTimeout)
			defer cancel()
			topicID, err := api.CreateTopic(ctx, memo, cfg.Ledger.MaxFeeTinybars())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), topicID)
			return nil
		},
	}
	create.Flags().StringVar(&memo, "memo", "agrocert attestations", "topic memo")
	topic.AddCommand(create)

	return topic
}

func issueCmd(flags *globalFlags) *cobra.Command {
	var payloadPath string
	var resumePath string
	var productName string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a certificate from a JSON payload, or resume one from a checkpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateIssuer(); err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()

			api, err := v1.SetupCertificationAPI(cfg, v1.SetupOptions{}, logger)
			if err != nil {
				return err
			}
			defer api.Close()
			if api.Pipeline == nil {
				return fmt.Errorf("issuer credentials are not configured")
			}

			var result *certification.IssuanceResult
			if resumePath != "" {
				data, err := readInput(cmd, resumePath)
				if err != nil {
					return err
				}
				var checkpoint certification.Checkpoint
				if err := json.Unmarshal(data, &checkpoint); err != nil {
					return fmt.Errorf("failed to parse checkpoint: %w", err)
				}
				result, err = api.Pipeline.Resume(cmd.Context(), checkpoint, productName)
				if err != nil {
					return reportIssueError(cmd, err)
				}
			} else {
				data, err := readInput(cmd, payloadPath)
				if err != nil {
					return err
				}
				payload, err := certification.DecodePayload(bytes.NewReader(data))
				if err != nil {
					return err
				}
				result, err = api.Pipeline.Issue(cmd.Context(), payload)
				if err != nil {
					return reportIssueError(cmd, err)
				}
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "-", "payload JSON file, - for stdin")
	cmd.Flags().StringVar(&resumePath, "resume", "", "checkpoint JSON file to resume from")
	cmd.Flags().StringVar(&productName, "product-name", "", "product name, needed when resuming before the class exists")

	return cmd
}

// reportIssueError prints the checkpoint of a partial issuance so it can be resumed
func reportIssueError(cmd *cobra.Command, err error) error {
	var partial *certification.PartialIssuanceError
	if errors.As(err, &partial) {
		fmt.Fprintln(cmd.ErrOrStderr(), "issuance stopped after a partial commit; resume with --resume and this checkpoint:")
		_ = writeJSON(cmd.ErrOrStderr(), partial.Checkpoint)
	}
	return err
}

func verifyCmd(flags *globalFlags) *cobra.Command {
	var serial int64
	var withAttestation bool

	cmd := &cobra.Command{
		Use:   "verify <asset-id>",
		Short: "Resolve a certificate unit to its attestation.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer logger.Sync()

			api, err := v1.SetupCertificationAPI(cfg, v1.SetupOptions{ReadOnly: true}, logger)
			if err != nil {
				return err
			}
			defer api.Close()

			record, err := api.Resolver.Verify(cmd.Context(), args[0], serial)
			if err != nil {
				return err
			}
			if !withAttestation {
				return writeJSON(cmd.OutOrStdout(), record)
			}

			attestation, err := api.Resolver.Attestation(cmd.Context(), record.Locator)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"record":    record,
				"contentId": attestation.ContentID,
				"payload":   json.RawMessage(attestation.Bytes),
			})
		},
	}
	cmd.Flags().Int64Var(&serial, "serial", 1, "unit serial")
	cmd.Flags().BoolVar(&withAttestation, "attestation", false, "also fetch the attestation payload")

	return cmd
}

func tokenCmd(flags *globalFlags) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an operator token for the write routes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(cfg.Security.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
