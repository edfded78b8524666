// cmd/goldencobra/commands.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"goldencobra/internal/audit"
	"goldencobra/internal/bot"
	"goldencobra/internal/client"
	"goldencobra/internal/web"
)

const defaultServer = "http://localhost:8080"

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web API and action webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(flags)
			if err != nil {
				return err
			}
			return a.serve(ctx)
		},
	}
}

func migrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			return a.migrate(cmd.Context())
		},
	}
}

func auditCmd(flags *globalFlags) *cobra.Command {
	var (
		batchSize int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify that every balance equals the sum of its transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			report, err := a.audit(cmd.Context(), batchSize)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				audit.PrintReport(out, report)
			}
			if !report.Passed {
				return audit.ErrAuditFailed
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Transactions read per query")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func topCmd() *cobra.Command {
	var (
		server string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Print the leaderboard of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := client.NewClient(server).Leaderboard(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("fetch leaderboard: %w", err)
			}
			return printLeaderboard(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServer, "Base URL of the server")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of entries (1-100)")
	return cmd
}

func printLeaderboard(w io.Writer, entries []web.LeaderboardEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "Рейтинг пуст")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tUSER\tSPENT\tRANK")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\n", e.Position, e.Username, bot.FormatStars(e.Spent), e.Rank, e.Icon)
	}
	return tw.Flush()
}

func spendCmd() *cobra.Command {
	var (
		server   string
		identity string
		name     string
		secret   string
	)

	cmd := &cobra.Command{
		Use:   "spend AMOUNT",
		Short: "Send a spend action to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.NewClient(server).WithWebhookSecret(secret).SendAction(cmd.Context(), bot.Action{
				UserIdentity: identity,
				DisplayName:  name,
				Action:       bot.ActionSpend,
				Payload:      args[0],
			})
			if resp != nil && resp.Reply != nil {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Reply.Text)
			}
			var se *client.StatusError
			if errors.As(err, &se) {
				return fmt.Errorf("spend rejected: %s", se.Message)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServer, "Base URL of the server")
	cmd.Flags().StringVarP(&identity, "user", "u", "", "User identity")
	cmd.Flags().StringVar(&name, "name", "", "Display name used on first contact")
	cmd.Flags().StringVar(&secret, "webhook-secret", os.Getenv("BOT_WEBHOOK_SECRET"), "Shared secret of the action webhook")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
