package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewJobsCmd создаёт группу команд для управления job'ами через C9.
func NewJobsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage background jobs",
	}

	cmd.AddCommand(
		newJobsListCmd(clientFn, outputFn),
		newJobsStatusCmd(clientFn, outputFn),
		newJobsCancelCmd(clientFn, outputFn),
		newJobsDeadLetterCmd(clientFn, outputFn),
		newJobsMetricsCmd(clientFn, outputFn),
	)

	return cmd
}

func jobRow(j JobStatusResponse) []string {
	return []string{j.JobID, j.Type, j.Status, strconv.Itoa(j.RetryCount), j.CreatedAt}
}

func newJobsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status, jobType, source string
	var skip, take int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(ListJobsOpts{Status: status, Type: jobType, Source: source, Skip: skip, Take: take})
			if err != nil {
				return err
			}

			headers := []string{"JOB_ID", "TYPE", "STATUS", "RETRIES", "CREATED"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = jobRow(j)
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (queued, processing, retrying, completed, failed, dead_letter, cancelled)")
	cmd.Flags().StringVar(&jobType, "type", "", "Filter by job type")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source tag")
	cmd.Flags().IntVar(&skip, "skip", 0, "Number of records to skip")
	cmd.Flags().IntVar(&take, "take", 0, "Maximum number of records to return")

	return cmd
}

func newJobsStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show a job's status record, including attempt history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.GetJobStatus(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"JOB_ID", "TYPE", "STATUS", "RETRIES", "LAST_ERROR", "CREATED"},
				[][]string{{status.JobID, status.Type, status.Status, strconv.Itoa(status.RetryCount), status.LastError, status.CreatedAt}},
				status,
			)
			return nil
		},
	}
}

func newJobsCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Request cooperative cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelJob(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cancellation requested for job %s", args[0]))
			return nil
		},
	}
}

func newJobsDeadLetterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var skip, take int

	cmd := &cobra.Command{
		Use:   "dead-letter",
		Short: "List jobs that exhausted their retry budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListDeadLetter(skip, take)
			if err != nil {
				return err
			}

			headers := []string{"JOB_ID", "TYPE", "STATUS", "RETRIES", "LAST_ERROR"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{j.JobID, j.Type, j.Status, strconv.Itoa(j.RetryCount), j.LastError}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().IntVar(&skip, "skip", 0, "Number of records to skip")
	cmd.Flags().IntVar(&take, "take", 0, "Maximum number of records to return")

	return cmd
}

func newJobsMetricsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show aggregated job metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			metrics, err := client.Metrics()
			if err != nil {
				return err
			}

			headers := []string{"TYPE", "TOTAL", "SUCCEEDED", "FAILED"}
			rows := make([][]string, 0, len(metrics.ByType))
			for t, m := range metrics.ByType {
				rows = append(rows, []string{t, strconv.Itoa(m.Total), strconv.Itoa(m.Succeeded), strconv.Itoa(m.Failed)})
			}

			out.Print(headers, rows, metrics)
			if !out.jsonMode {
				out.Success(fmt.Sprintf("dead_letter=%d queue_depth=%d", metrics.DeadLetterTotal, metrics.QueueDepth))
			}
			return nil
		},
	}
}
