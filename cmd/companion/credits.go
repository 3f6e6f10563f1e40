package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/normanking/cortexcompanion/internal/credits"
)

var (
	creditsUser  string
	grantReason  string
	historyLimit int
)

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Inspect and top up message credits",
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the user's balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *credits.Ledger, user string) error {
			bal, err := l.Balance(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", user, bal)
			return nil
		})
	},
}

var creditsGrantCmd = &cobra.Command{
	Use:   "grant <amount|package>",
	Short: "Add credits, either a number or a package id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *credits.Ledger, user string) error {
			var (
				bal int
				err error
			)
			if n, convErr := strconv.Atoi(args[0]); convErr == nil {
				bal, err = l.Grant(cmd.Context(), user, n, grantReason)
			} else {
				bal, err = l.GrantPackage(cmd.Context(), user, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d credits\n", user, bal)
			return nil
		})
	},
}

var creditsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent balance changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *credits.Ledger, user string) error {
			txs, err := l.History(cmd.Context(), user, historyLimit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tDELTA\tREASON")
			for _, t := range txs {
				fmt.Fprintf(w, "%s\t%+d\t%s\n", t.CreatedAt.Local().Format("2006-01-02 15:04"), t.Delta, t.Reason)
			}
			return w.Flush()
		})
	},
}

var creditsPackagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List credit packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREDITS\tPRICE")
		for _, p := range credits.Packages {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d.%02d\n", p.ID, p.Name, p.Credits, p.Price/100, p.Price%100)
		}
		return w.Flush()
	},
}

func init() {
	creditsCmd.PersistentFlags().StringVar(&creditsUser, "user", "", "user id (default from config)")
	creditsGrantCmd.Flags().StringVar(&grantReason, "reason", "grant", "reason recorded with the grant")
	creditsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "rows to show")
}

func withLedger(fn func(l *credits.Ledger, user string) error) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	user := creditsUser
	if user == "" {
		user = cfg.User.ID
	}

	l, err := credits.Open(cfg.Credits.DSN)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(l, user)
}
