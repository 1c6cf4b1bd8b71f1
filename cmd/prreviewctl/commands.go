package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	api "prreview/internal/http"
	"prreview/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func submitCmd(client func() *apiClient) *cobra.Command {
	var (
		repo     string
		number   int
		token    string
		wait     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a pull request for review and print its task id",
		Example: `  prreviewctl submit --repo octo/hello --pr 42
  prreviewctl submit --repo https://github.com/octo/hello --pr 42 --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if repo == "" {
				return errors.New("--repo is required")
			}
			if number <= 0 {
				return errors.New("--pr must be a positive number")
			}

			c := client()
			id, err := c.submit(cmd.Context(), api.AnalyzePRRequest{
				RepoURL:     repo,
				PRNumber:    number,
				GitHubToken: token,
			})
			if err != nil {
				return err
			}
			if !wait {
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}
			return waitAndPrint(cmd, c, id, interval)
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "repository as owner/name or GitHub URL")
	cmd.Flags().IntVar(&number, "pr", 0, "pull request number")
	cmd.Flags().StringVar(&token, "token", "", "GitHub token for private repositories")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the review and print its result")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval when waiting")
	return cmd
}

func statusCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task_id>",
		Short: "Show the status of a review task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func resultCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "result <task_id>",
		Short: "Print the result of a completed review task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().result(cmd.Context(), args[0])
			if errors.Is(err, errNotFound) {
				return fmt.Errorf("no result for task %s (unknown or not completed)", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Result)
		},
	}
}

func waitCmd(client func() *apiClient) *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait <task_id>",
		Short: "Wait for a review task to finish and print its result",
		Long: `Poll the task status until it is completed or failed.

Exit codes:
  0  Review completed, result printed
  1  Review failed, task unknown, or timeout reached`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				cmd.SetContext(ctx)
			}
			return waitAndPrint(cmd, client(), args[0], interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	return cmd
}

func waitAndPrint(cmd *cobra.Command, c *apiClient, id string, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		st, err := c.status(ctx, id)
		if err != nil {
			return err
		}
		switch st.Status {
		case model.StateCompleted:
			res, err := c.result(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Result)
		case model.StateFailed:
			return fmt.Errorf("review %s failed: %s", id, st.Reason)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s (last status %s)", id, st.Status)
		case <-time.After(interval):
		}
	}
}
