package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bosley/relayscribe/client"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var serverURL string
	var cancelID string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List or cancel jobs running on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.serverURL(serverURL)
			if err != nil {
				return err
			}
			c, err := client.New(client.Options{BaseURL: base})
			if err != nil {
				return err
			}

			if cancelID != "" {
				job, err := c.CancelJob(cmd.Context(), cancelID)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelling job %s (%s)\n", job.ID, job.Source)
				return nil
			}

			jobs, err := c.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs running")
				return nil
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					job.Kind,
					job.Source,
					job.Stage,
					fmt.Sprintf("%.1f%%", job.Percentage),
					time.Since(job.StartedAt).Round(time.Second).String(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Source", "Stage", "Progress", "Running"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL, overriding client.server_url")
	cmd.Flags().StringVar(&cancelID, "cancel", "", "Cancel the job with this ID")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	return cmd
}
