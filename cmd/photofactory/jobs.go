package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/photofactory/internal/jobnumber"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

func (c *cli) newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and manage saved jobs",
	}
	cmd.AddCommand(
		c.newJobsListCmd(),
		c.newJobsShowCmd(),
		c.newJobsUpdateCmd(),
		c.newJobsDeleteCmd(),
	)
	return cmd
}

func (c *cli) newJobsListCmd() *cobra.Command {
	var (
		opts   types.JobListOptions
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the signed-in technician's jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Status = types.JobStatus(status)
			if opts.Status != "" && !opts.Status.Valid() {
				return types.ValidationError("status", "Status must be uploaded, processing or published.")
			}
			return c.withApp(func(a *app) error {
				user, err := a.auth.Require(ctx)
				if err != nil {
					return err
				}
				jobs, err := a.api.Jobs.SelectByTechnician(ctx, user.UserID, opts).Unwrap()
				if err != nil {
					return err
				}
				return c.emit(jobs, func(w io.Writer) error {
					if len(jobs) == 0 {
						_, err := fmt.Fprintln(w, "No jobs found.")
						return err
					}
					rows := make([][]string, 0, len(jobs))
					for _, j := range jobs {
						rows = append(rows, []string{
							strconv.FormatInt(j.JobID, 10), j.JobNumber, j.WorkDate,
							j.VehicleModel, orDash(j.Location), string(j.Status), strconv.Itoa(len(j.Photos)),
						})
					}
					return table(w, []string{"ID", "NUMBER", "DATE", "VEHICLE", "LOCATION", "STATUS", "PHOTOS"}, rows)
				})
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only jobs with this status")
	cmd.Flags().StringVar(&opts.FromDate, "from", "", "earliest work date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.ToDate, "to", "", "latest work date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.VehicleModelLike, "vehicle", "", "only jobs whose vehicle model contains this text")
	cmd.Flags().BoolVar(&opts.Ascending, "asc", false, "oldest first")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of jobs (0 for all)")
	return cmd
}

// lookupJob finds a job by row id or by job number.
func lookupJob(cmd *cobra.Command, a *app, arg string) (*types.Job, error) {
	ctx := cmd.Context()
	var id int64
	if jobnumber.Valid(arg) {
		job, err := a.api.Jobs.GetByNumber(ctx, arg).Unwrap()
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, types.ValidationError("job", fmt.Sprintf("No job numbered %s.", arg))
		}
		id = job.JobID
	} else {
		var err error
		if id, err = parseID("job", arg); err != nil {
			return nil, err
		}
	}
	// Get loads photos; GetByNumber does not.
	return a.api.Jobs.Get(ctx, id).Unwrap()
}

func (c *cli) newJobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|job-number>",
		Short: "Show one job with its photos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				job, err := lookupJob(cmd, a, args[0])
				if err != nil {
					return err
				}
				return c.emit(job, func(w io.Writer) error {
					fmt.Fprintf(w, "Job %s (id %d)\n", job.JobNumber, job.JobID)
					fmt.Fprintf(w, "  date:     %s\n", job.WorkDate)
					fmt.Fprintf(w, "  vehicle:  %s\n", job.VehicleModel)
					fmt.Fprintf(w, "  location: %s\n", orDash(job.Location))
					fmt.Fprintf(w, "  status:   %s\n", job.Status)
					if len(job.Photos) == 0 {
						_, err := fmt.Fprintln(w, "No photos.")
						return err
					}
					rows := make([][]string, 0, len(job.Photos))
					for _, p := range job.Photos {
						where := p.URL
						if where == "" {
							where = fmt.Sprintf("stored locally (%d bytes)", len(p.ImageData))
						}
						rows = append(rows, []string{p.Category.Label(), strconv.Itoa(p.Sequence), orDash(p.FileName), where})
					}
					return table(w, []string{"CATEGORY", "SEQ", "FILE", "LOCATION"}, rows)
				})
			})
		},
	}
}

func (c *cli) newJobsUpdateCmd() *cobra.Command {
	var vehicle, location, status, date string
	cmd := &cobra.Command{
		Use:   "update <id|job-number>",
		Short: "Change a saved job's details or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch types.JobPatch
			flags := cmd.Flags()
			if flags.Changed("vehicle") {
				patch.VehicleModel = &vehicle
			}
			if flags.Changed("location") {
				patch.Location = &location
			}
			if flags.Changed("status") {
				s := types.JobStatus(status)
				patch.Status = &s
			}
			if flags.Changed("date") {
				patch.WorkDate = &date
			}
			if patch.Empty() {
				return types.ValidationError("job", "Nothing to change. Pass --vehicle, --location, --status or --date.")
			}
			return c.withApp(func(a *app) error {
				job, err := lookupJob(cmd, a, args[0])
				if err != nil {
					return err
				}
				updated, err := a.api.Jobs.Update(cmd.Context(), job.JobID, patch).Unwrap()
				if err != nil {
					return err
				}
				return c.emit(updated, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Updated job %s\n", updated.JobNumber)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "vehicle model")
	cmd.Flags().StringVar(&location, "location", "", "work location")
	cmd.Flags().StringVar(&status, "status", "", "uploaded, processing or published")
	cmd.Flags().StringVar(&date, "date", "", "work date YYYY-MM-DD")
	return cmd
}

func (c *cli) newJobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|job-number>",
		Short: "Delete a job and its photos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				job, err := lookupJob(cmd, a, args[0])
				if err != nil {
					return err
				}
				if _, err := a.api.Jobs.Delete(cmd.Context(), job.JobID).Unwrap(); err != nil {
					return err
				}
				return c.emit(map[string]any{"deleted": job.JobNumber, "id": job.JobID}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted job %s\n", job.JobNumber)
					return err
				})
			})
		},
	}
}
