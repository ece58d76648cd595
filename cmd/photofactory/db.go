package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/photofactory/internal/atomicfile"
	"github.com/mesh-intelligence/photofactory/internal/staging"
	"github.com/mesh-intelligence/photofactory/pkg/sqlite"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

func (c *cli) newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect, export and maintain the local store",
	}
	cmd.AddCommand(
		c.newDBStatsCmd(),
		c.newDBExportCmd(),
		c.newDBImportCmd(),
		c.newDBSweepCmd(),
		c.newDBClearCmd(),
	)
	return cmd
}

func (c *cli) newDBStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count rows per table and stored image bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				s, err := a.store.Stats(cmd.Context())
				if err != nil {
					return types.DatabaseError("reading store stats", err)
				}
				return c.emit(s, func(w io.Writer) error {
					return table(w, []string{"TABLE", "ROWS"}, [][]string{
						{types.JobsTable, fmt.Sprint(s.Jobs)},
						{types.PhotosTable, fmt.Sprint(s.Photos)},
						{types.StagedPhotosTable, fmt.Sprint(s.StagedPhotos)},
						{types.UsersTable, fmt.Sprint(s.Users)},
						{types.SettingsTable, fmt.Sprint(s.Settings)},
						{"image bytes", fmt.Sprint(s.TotalBytes)},
					})
				})
			})
		},
	}
}

func (c *cli) newDBExportCmd() *cobra.Command {
	var jsonl bool
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Export jobs, photos, users and settings",
		Long: `Export jobs, photos, users and settings to a JSON snapshot file, or with
--jsonl to a directory holding one JSONL file per table. Staged photos are
not exported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := args[0]
			return c.withApp(func(a *app) error {
				var err error
				if jsonl {
					err = a.store.ExportJSONL(ctx, target)
				} else {
					err = atomicfile.WriteFunc(target, 0o644, func(w io.Writer) error {
						return a.store.WriteSnapshot(ctx, w)
					})
				}
				if err != nil {
					return types.DatabaseError("exporting store", err)
				}
				return c.emit(map[string]string{"exported": target}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Exported to", target)
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&jsonl, "jsonl", false, "write one JSONL file per table into the directory <path>")
	return cmd
}

func (c *cli) newDBImportCmd() *cobra.Command {
	var jsonl bool
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Replace jobs, photos, users and settings with an export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source := args[0]
			return c.withApp(func(a *app) error {
				if jsonl {
					// A missing directory would import as an empty store.
					if fi, err := os.Stat(source); err != nil || !fi.IsDir() {
						return types.ValidationError("path", fmt.Sprintf("%s is not an export directory.", source))
					}
					if err := a.store.ImportJSONL(ctx, source); err != nil {
						return importError(err)
					}
				} else {
					f, err := os.Open(source)
					if err != nil {
						return types.ValidationError("path", fmt.Sprintf("Cannot read %s.", source))
					}
					defer f.Close()
					if err := a.store.ReadSnapshot(ctx, f); err != nil {
						return importError(err)
					}
				}
				s, err := a.store.Stats(ctx)
				if err != nil {
					return types.DatabaseError("reading store stats", err)
				}
				return c.emit(s, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Imported %d jobs, %d photos, %d users\n", s.Jobs, s.Photos, s.Users)
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&jsonl, "jsonl", false, "read one JSONL file per table from the directory <path>")
	return cmd
}

// importError separates a bad import file from a store failure.
func importError(err error) error {
	if errors.Is(err, sqlite.ErrSnapshotInvalid) || errors.Is(err, sqlite.ErrSnapshotVersion) || errors.Is(err, os.ErrNotExist) {
		return &types.AppError{
			Kind:        types.KindValidation,
			Message:     "importing store",
			UserMessage: "The import file is not a valid photofactory export.",
			Err:         err,
		}
	}
	return types.DatabaseError("importing store", err)
}

func (c *cli) newDBSweepCmd() *cobra.Command {
	var age time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete staged photos left behind by abandoned sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				n, err := staging.Sweep(cmd.Context(), a.store, c.now(), age)
				if err != nil {
					return err
				}
				return c.emit(map[string]int{"removed": n}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Removed %d staged photos older than %s\n", n, age)
					return err
				})
			})
		},
	}
	cmd.Flags().DurationVar(&age, "max-age", staging.DefaultSweepAge, "minimum age of staged photos to delete")
	return cmd
}

func (c *cli) newDBClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every row from every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return types.ValidationError("yes", "This deletes all jobs, photos and users. Pass --yes to confirm.")
			}
			return c.withApp(func(a *app) error {
				if err := a.store.ClearAll(cmd.Context()); err != nil {
					return types.DatabaseError("clearing store", err)
				}
				return c.emit(map[string]bool{"cleared": true}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Store cleared")
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting everything")
	return cmd
}
