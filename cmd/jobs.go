/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	model2 "github.com/neoproj/robo32/api/model"
	"github.com/neoproj/robo32/internal/sheet"
	"github.com/neoproj/robo32/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func jobCommands(app *robo32Instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "operate on cloning jobs",
	}

	cmd.AddCommand(cancelJobCommand(app))
	cmd.AddCommand(cancelStuckJobsCommand(app))
	cmd.AddCommand(submitJobCommand(app))
	cmd.AddCommand(summaryJobCommand(app))

	return cmd
}

func parseJobID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		log.Fatalf("invalid job id %q", arg)
	}
	return id
}

func cancelJobCommand(app *robo32Instance) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "mark a PROCESSING job as FAILED",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseJobID(args[0])
			cancelled, err := app.robo32.CancelJob(cmd.Context(), id)
			if err != nil {
				log.Fatalf("Error cancelling job %d: %v", id, err)
			}
			if !cancelled {
				fmt.Printf("Job %d is not processing, nothing to cancel\n", id)
				return
			}
			fmt.Printf("Job %d cancelled\n", id)
		},
	}
}

// cancelStuckJobsCommand recovers from a crash that left jobs PROCESSING and blocked admission.
func cancelStuckJobsCommand(app *robo32Instance) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-stuck",
		Short: "mark every PROCESSING job as FAILED",
		Run: func(cmd *cobra.Command, args []string) {
			jobs, err := app.robo32.CancelStuckJobs(cmd.Context())
			if err != nil {
				log.Fatalf("Error cancelling stuck jobs: %v", err)
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs in PROCESSING")
				return
			}
			for _, job := range jobs {
				fmt.Printf("Job %d (%s, by %s) cancelled\n", job.ID, job.Filename, job.UploadedBy)
			}
		},
	}
}

// submitJobCommand admits a spreadsheet and runs it in the foreground. Interrupting the command
// stops after the current row and leaves the job FAILED.
func submitJobCommand(app *robo32Instance) *cobra.Command {
	var file, mapping, user string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "admit a spreadsheet and process it synchronously",
		Run: func(cmd *cobra.Command, args []string) {
			form := model2.SubmitJob{Mapping: mapping, UploadedBy: user}
			if err := form.ValidateSubmitJob(); err != nil {
				log.Fatalf("invalid mapping: %v", err)
			}
			m, err := form.ToMapping()
			if err != nil {
				log.Fatalf("invalid mapping: %v", err)
			}

			f, err := os.Open(file)
			if err != nil {
				log.Fatalf("Error opening %s: %v", file, err)
			}
			rows, err := sheet.Parse(file, f)
			_ = f.Close()
			if err != nil {
				log.Fatalf("Error reading %s: %v", file, err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			submitter := form.Submitter()
			jobID, err := app.robo32.AdmitJob(ctx, model.JobRequest{
				Filename:   filepath.Base(file),
				UploadedBy: submitter,
				TotalRows:  len(rows),
			})
			if err != nil {
				log.Fatalf("Error admitting job: %v", err)
			}

			if err := app.robo32.Run(ctx, jobID, rows, m, submitter); err != nil {
				logrus.Errorf("job %d failed: %v", jobID, err)
			}
			printSummary(ctx, app, jobID)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "spreadsheet to process (.xlsx or .csv)")
	cmd.Flags().StringVar(&mapping, "mapping", "", "JSON column mapping, e.g. {\"Produto\":\"cd_produto_antecessor\"}")
	cmd.Flags().StringVar(&user, "user", "", "who submitted the spreadsheet")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("mapping")

	return cmd
}

func summaryJobCommand(app *robo32Instance) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <job-id>",
		Short: "print the progress of a job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printSummary(cmd.Context(), app, parseJobID(args[0]))
		},
	}
}

func printSummary(ctx context.Context, app *robo32Instance, jobID int64) {
	summary, err := app.robo32.SummarizeJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		log.Fatalf("Error fetching summary for job %d: %v", jobID, err)
	}
	data, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		log.Fatalf("Error printing summary: %v", err)
	}
	fmt.Println(string(data))
}
