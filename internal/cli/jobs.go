package cli

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgeorchestra/edgeorchestra/internal/domain"
)

func init() {
	jobsCreateCmd.Flags().StringVar(&jobModelID, "model", "", "Named model to train (omit for an ephemeral job)")
	jobsCreateCmd.Flags().IntVar(&jobRounds, "rounds", 10, "Number of federated rounds")
	jobsCreateCmd.Flags().IntVar(&jobMinDevices, "min-devices", 1, "Minimum devices per round")
	jobsCreateCmd.Flags().Float64Var(&jobLearningRate, "lr", 0.01, "Base learning rate")
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (pending, running, completed, stopped, failed)")
	jobsDownloadCmd.Flags().StringVarP(&jobOutput, "output", "o", "", "Output file (default <job-id>.bin)")

	jobsCmd.AddCommand(jobsCreateCmd, jobsListCmd, jobsShowCmd, jobsStopCmd, jobsRetryCmd, jobsDownloadCmd)
	rootCmd.AddCommand(jobsCmd)
}

var (
	jobModelID      string
	jobRounds       int
	jobMinDevices   int
	jobLearningRate float64
	jobsStatus      string
	jobOutput       string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage training jobs",
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a training job",
	RunE:  runJobsCreate,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List training jobs",
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job and its round history",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job-id>",
	Short: "Stop a job at the next round boundary",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStop,
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry a failed job from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRetry,
}

var jobsDownloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download the job's current global model",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDownload,
}

func runJobsCreate(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"num_rounds":    jobRounds,
		"min_devices":   jobMinDevices,
		"learning_rate": jobLearningRate,
	}
	if jobModelID != "" {
		body["model_id"] = jobModelID
	}

	var job domain.TrainingJob
	if err := newClient().post("/api/v1/training/jobs", body, &job); err != nil {
		return err
	}
	fmt.Printf("Created job %s (%d rounds, min %d devices)\n", job.ID, job.NumRounds, job.MinDevices)
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	path := "/api/v1/training/jobs"
	if jobsStatus != "" {
		path += "?status=" + url.QueryEscape(jobsStatus)
	}

	var resp struct {
		Jobs []domain.TrainingJob `json:"jobs"`
	}
	if err := newClient().get(path, &resp); err != nil {
		return err
	}
	if len(resp.Jobs) == 0 {
		fmt.Println("No training jobs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tROUND\tMODEL\tCREATED")
	for _, j := range resp.Jobs {
		model := "-"
		if j.ModelID != nil {
			model = j.ModelID.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Status, j.CurrentRound, j.NumRounds, model,
			j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	var job domain.TrainingJob
	if err := newClient().get("/api/v1/training/jobs/"+args[0], &job); err != nil {
		return err
	}

	fmt.Printf("ID:             %s\n", job.ID)
	fmt.Printf("Status:         %s\n", job.Status)
	fmt.Printf("Round:          %d/%d\n", job.CurrentRound, job.NumRounds)
	fmt.Printf("Min devices:    %d\n", job.MinDevices)
	fmt.Printf("Learning rate:  %g\n", job.LearningRate)
	if job.ModelID != nil {
		fmt.Printf("Model:          %s\n", job.ModelID)
	}
	if job.CompletedAt != nil {
		fmt.Printf("Completed:      %s\n", job.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if job.RoundMetrics == nil || len(job.RoundMetrics.Rounds) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROUND\tDEVICES\tLOSS\tACCURACY\tNOTE")
	for _, rec := range job.RoundMetrics.Rounds {
		loss, acc, note := "-", "-", ""
		if rec.AvgLoss != nil {
			loss = fmt.Sprintf("%.4f", *rec.AvgLoss)
		}
		if rec.AvgAccuracy != nil {
			acc = fmt.Sprintf("%.4f", *rec.AvgAccuracy)
		}
		if rec.Skipped {
			note = "skipped: " + rec.Reason
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", rec.Round, rec.Participants, loss, acc, note)
	}
	return w.Flush()
}

func runJobsStop(cmd *cobra.Command, args []string) error {
	var resp map[string]string
	if err := newClient().post("/api/v1/training/jobs/"+args[0]+"/stop", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Job %s: %s\n", args[0], resp["status"])
	return nil
}

func runJobsRetry(cmd *cobra.Command, args []string) error {
	var resp struct {
		Status          string `json:"status"`
		ResumeFromRound int    `json:"resume_from_round"`
	}
	if err := newClient().post("/api/v1/training/jobs/"+args[0]+"/retry", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Job %s: %s, resuming from round %d\n", args[0], resp.Status, resp.ResumeFromRound)
	return nil
}

func runJobsDownload(cmd *cobra.Command, args []string) error {
	raw, err := newClient().download("/api/v1/training/jobs/" + args[0] + "/model")
	if err != nil {
		return err
	}

	out := jobOutput
	if out == "" {
		out = args[0] + ".bin"
	}
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(raw), out)
	return nil
}
