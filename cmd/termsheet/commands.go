package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/termsheet-validation/backend/internal/app"
	"github.com/termsheet-validation/backend/internal/extraction"
	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/reference"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/internal/versioning"
)

func (c *cli) ingestCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Extract, version and classify termsheet documents",
		Long: `Ingest each file (and every supported file directly inside --dir).
A failing document is reported and the remaining ones are still processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := append([]string(nil), args...)
			if dir != "" {
				found, err := supportedFiles(dir)
				if err != nil {
					return err
				}
				paths = append(paths, found...)
			}
			if len(paths) == 0 {
				return errors.New("no documents given; pass file paths or --dir")
			}

			return c.withPipeline(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, path := range paths {
					outcome, err := a.Processor.IngestFile(ctx, path)
					if err != nil {
						failed++
						fmt.Fprintf(out, "FAILED  %s: %v\n", path, err)
						continue
					}
					fmt.Fprintf(out, "%-7s %s trade=%s version=%d type=%s\n",
						outcome.Commit.Status, path, outcome.Commit.TradeID,
						outcome.Commit.Version, outcome.Classification.Primary)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(paths))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory of documents to ingest")
	return cmd
}

func supportedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := extraction.DetectFormat(e.Name()); err == nil {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func readRecord(path string) (record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	rec, err := record.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return rec, nil
}

func (c *cli) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [record.json]",
		Short: "Score a JSON record against every derivative type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(args[0])
			if err != nil {
				return err
			}
			return c.withPipeline(cmd, func(_ context.Context, a *app.App) error {
				report := a.Classifier.Classify(rec)
				report.TradeID = rec.Text("tradeId")
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [type] [record.json]",
		Short: "Validate a JSON swap record against the risk system export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecord(args[1])
			if err != nil {
				return err
			}
			return c.withPipeline(cmd, func(ctx context.Context, a *app.App) error {
				report, status, err := a.Validator.Validate(ctx, args[0], rec)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				switch {
				case status == validation.StatusBadRequest:
					return errors.New(report.Error)
				case status == validation.StatusNotFound:
					return fmt.Errorf("no reference swap for %s", report.TradeID)
				case !report.Valid:
					return fmt.Errorf("%d anomalies found (%d high)", len(report.Anomalies), report.HighCount())
				}
				return nil
			})
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [tradeId]",
		Short: "List the stored versions of a trade and its latest diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(cmd, func(ctx context.Context, a *app.App) error {
				versions, err := a.Store.Versions(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, v := range versions {
					fmt.Fprintf(out, "v%-3d %s  %s  %d fields\n",
						v.Version, v.Timestamp.Format("2006-01-02 15:04:05"), v.SnapshotID, len(v.Data))
				}

				diff, err := a.Store.Diff(ctx, args[0])
				if errors.Is(err, versioning.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nchanges v%d -> v%d\n", diff.FromVersion, diff.Version)
				return writeJSON(out, diff)
			})
		},
	}
}

func (c *cli) referenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Risk system export utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "template [out.xlsx]",
		Short: "Write an empty risk system workbook with the expected sheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create template: %w", err)
			}
			if err := reference.WriteTemplate(f, c.cfg.Reference.Tables); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write template: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template written to %s\n", args[0])
			return nil
		},
	})
	return cmd
}
