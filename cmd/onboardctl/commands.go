package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlesng35/careerhub/internal/onboarding"
)

func sweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one onboarding sweep and deliver everything it queued",
		Long: `Schedule welcomes for recent users without a bonus, advance claimed users
whose next stage is overdue, then run the queued welcomes before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(opts)
			if err != nil {
				return err
			}
			defer env.Close()

			report, sweepErr := env.sequencer.Sweep(cmd.Context())
			env.sequencer.Flush()

			if err := render(cmd.OutOrStdout(), opts, report, func(w io.Writer) {
				fmt.Fprintf(w, "Welcomes scheduled: %d\n", report.WelcomesScheduled)
				fmt.Fprintf(w, "Claims recovered:   %d\n", report.ClaimsRecovered)
				fmt.Fprintf(w, "Users advanced:     %d\n", report.UsersAdvanced)
			}); err != nil {
				return err
			}
			return sweepErr
		},
	}
}

func claimCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim [user-id]",
		Short: "Claim the welcome bonus on behalf of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(opts)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := env.sequencer.Claim(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts, result, func(w io.Writer) {
				if !result.Granted {
					fmt.Fprintf(w, "Welcome bonus already claimed by %s\n", result.UserID)
					return
				}
				fmt.Fprintf(w, "Granted %d coins to %s (%s)\n", result.Amount, result.UserName, result.UserID)
				fmt.Fprintln(w, "Remaining stages are delivered by the server sweep.")
			})
		},
	}
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [user-id]",
		Short: "Show a user's onboarding progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(opts)
			if err != nil {
				return err
			}
			defer env.Close()

			progress, err := env.sequencer.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			balance, err := env.ledger.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			view := struct {
				onboarding.Progress
				Balance int64 `json:"balance"`
			}{Progress: progress, Balance: balance}

			return render(cmd.OutOrStdout(), opts, view, func(w io.Writer) {
				fmt.Fprintf(w, "User:    %s\n", progress.UserID)
				fmt.Fprintf(w, "State:   %s\n", progress.State)
				fmt.Fprintf(w, "Balance: %d\n", balance)
				if progress.OptedOut {
					fmt.Fprintln(w, "Opted out")
				}
				for _, stage := range []onboarding.Stage{onboarding.StageWelcome, onboarding.StageBonus, onboarding.StageFeatures, onboarding.StageTips} {
					fmt.Fprintf(w, "  %-9s %s\n", stage+":", formatTime(progress.Sent[stage]))
				}
				if progress.NextStage != "" {
					fmt.Fprintf(w, "Next:   %s at %s\n", progress.NextStage, formatTime(progress.NextStageDueAt))
				}
			})
		},
	}
}

func cancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [user-id]",
		Short: "Opt a user out of the remaining onboarding stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(opts)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.sequencer.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts, map[string]any{"user_id": args[0], "cancelled": true}, func(w io.Writer) {
				fmt.Fprintf(w, "Onboarding cancelled for %s\n", args[0])
			})
		},
	}
}

func deleteUserCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user [user-id]",
		Short: "Delete a user profile and drop their onboarding progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment(opts)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.users.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts, map[string]any{"user_id": args[0], "deleted": true}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
}

func render(w io.Writer, opts *rootOptions, value any, text func(io.Writer)) error {
	if opts.jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	}
	text(w)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "pending"
	}
	return t.UTC().Format(time.RFC3339)
}
