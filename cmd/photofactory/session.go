package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/photofactory/internal/imageproc"
	"github.com/mesh-intelligence/photofactory/internal/staging"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// sessionView is the JSON form of the current session.
type sessionView struct {
	SessionID    string                               `json:"session_id"`
	NextNumber   string                               `json:"next_job_number"`
	VehicleModel string                               `json:"vehicle_model"`
	Location     string                               `json:"location,omitempty"`
	CreatedAt    time.Time                            `json:"created_at"`
	UpdatedAt    time.Time                            `json:"updated_at"`
	Photos       map[types.Category][]types.PhotoMeta `json:"photos"`
	Staged       map[types.Category]int               `json:"staged"`
	PhotoCount   int                                  `json:"photo_count"`
}

func (c *cli) newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Work with the in-progress job",
	}
	cmd.AddCommand(
		c.newSessionShowCmd(),
		c.newSessionAddCmd(),
		c.newSessionRemoveCmd(),
		c.newSessionSetCmd(),
		c.newSessionResetCmd(),
		c.newSessionSaveCmd(),
	)
	return cmd
}

func (c *cli) newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current session and its staged photos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withSession(ctx, func(a *app, m *staging.Manager) error {
				counts, err := m.CountsByCategory(ctx)
				if err != nil {
					return err
				}
				st := m.State()
				view := sessionView{
					SessionID:    st.SessionID,
					NextNumber:   m.PreviewNumber(ctx),
					VehicleModel: st.VehicleModel,
					Location:     st.Location,
					CreatedAt:    st.CreatedAt,
					UpdatedAt:    st.UpdatedAt,
					Photos:       st.Photos,
					Staged:       counts,
					PhotoCount:   st.PhotoCount(),
				}
				return c.emit(view, func(w io.Writer) error {
					fmt.Fprintf(w, "Session %s (next job number %s)\n", view.SessionID, view.NextNumber)
					fmt.Fprintf(w, "  vehicle:  %s\n", orDash(view.VehicleModel))
					fmt.Fprintf(w, "  location: %s\n", orDash(view.Location))
					fmt.Fprintf(w, "  started:  %s\n", view.CreatedAt.Format(time.DateTime))
					rows := make([][]string, 0, view.PhotoCount)
					for _, cat := range types.Categories {
						for i, p := range st.Photos[cat] {
							rows = append(rows, []string{cat.Label(), strconv.Itoa(i), p.FileName, strconv.FormatInt(p.FileSize, 10)})
						}
					}
					if len(rows) == 0 {
						_, err := fmt.Fprintln(w, "No photos staged.")
						return err
					}
					return table(w, []string{"CATEGORY", "INDEX", "FILE", "BYTES"}, rows)
				})
			})
		},
	}
}

func (c *cli) newSessionAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <category> <file>",
		Short: "Stage a photo in a category",
		Long: `Stage a photo in a category. The image is resized and re-encoded as
JPEG with a thumbnail before it is stored. Categories: before_car,
before_wheel, during, after_wheel, after_car.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := parseCategory(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return types.ValidationError("file", fmt.Sprintf("Cannot read %s.", args[1]))
			}
			defer f.Close()
			payload, err := imageproc.Process(f, filepath.Base(args[1]), c.cfg.ImageOptions())
			if err != nil {
				return err
			}

			return c.withSession(ctx, func(a *app, m *staging.Manager) error {
				id, err := m.AddPhoto(ctx, cat, payload)
				if err != nil {
					return err
				}
				out := map[string]any{"id": id, "category": cat, "file_name": payload.FileName, "file_size": payload.FileSize}
				return c.emit(out, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Added %s to %s (%d of %d)\n",
						payload.FileName, cat.Label(), len(m.CategoryPhotos(cat)), c.cfg.SessionLimits().PhotosPerCategory)
					return err
				})
			})
		},
	}
}

func (c *cli) newSessionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <category> <index>",
		Short: "Remove a staged photo by its position in the category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := parseCategory(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return types.ValidationError("index", fmt.Sprintf("%q is not a photo index.", args[1]))
			}
			return c.withSession(ctx, func(a *app, m *staging.Manager) error {
				if err := m.RemovePhoto(ctx, cat, index); err != nil {
					return err
				}
				return c.emit(map[string]any{"category": cat, "removed": index}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Removed photo %d from %s\n", index, cat.Label())
					return err
				})
			})
		},
	}
}

func (c *cli) newSessionSetCmd() *cobra.Command {
	var vehicle, location string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the vehicle model or location of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var patch types.SessionPatch
			if cmd.Flags().Changed("vehicle") {
				patch.VehicleModel = &vehicle
			}
			if cmd.Flags().Changed("location") {
				patch.Location = &location
			}
			if patch.VehicleModel == nil && patch.Location == nil {
				return types.ValidationError("session", "Nothing to change. Pass --vehicle or --location.")
			}
			return c.withSession(ctx, func(a *app, m *staging.Manager) error {
				if err := m.Update(ctx, patch); err != nil {
					return err
				}
				st := m.State()
				out := map[string]string{"vehicle_model": st.VehicleModel, "location": st.Location}
				return c.emit(out, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Session updated: vehicle %s, location %s\n", orDash(st.VehicleModel), orDash(st.Location))
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "vehicle model")
	cmd.Flags().StringVar(&location, "location", "", "work location")
	return cmd
}

func (c *cli) newSessionResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the session and its staged photos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withSession(ctx, func(a *app, m *staging.Manager) error {
				if err := m.Reset(ctx); err != nil {
					return err
				}
				return c.emit(map[string]string{"session_id": m.SessionID()}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Session reset, new session %s\n", m.SessionID())
					return err
				})
			})
		},
	}
}

func (c *cli) newSessionSaveCmd() *cobra.Command {
	var req types.SaveRequest
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save the session as a numbered job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withSession(ctx, func(a *app, m *staging.Manager) error {
				job, err := m.Save(ctx, req)
				if err != nil {
					return err
				}
				return c.emit(job, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Saved job %s with %d photos (%s, %s)\n",
						job.JobNumber, len(job.Photos), job.VehicleModel, job.WorkDate)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.VehicleModel, "vehicle", "", "vehicle model (overrides the session's)")
	cmd.Flags().StringVar(&req.Location, "location", "", "work location (overrides the session's)")
	cmd.Flags().StringVar(&req.WorkDate, "date", "", "work date YYYY-MM-DD (default today)")
	return cmd
}
