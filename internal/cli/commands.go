package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/repository/postgres"
	"property-ledger-backend/internal/security"
)

func migrateCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
				for _, stmt := range postgres.Migrations() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", strings.TrimSpace(stmt))
				}
				return nil
			}
			return withApp(open, func(cmd *cobra.Command, args []string, app *App) error {
				if err := app.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().Bool("print", false, "Print the schema statements without connecting")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			issuer, _ := cmd.Flags().GetString("issuer")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or JWT_SECRET)")
			}
			actor, err := actorFromFlags(cmd)
			if err != nil {
				return err
			}
			token, err := security.NewTokenManager(secret, issuer).GenerateAccessToken(actor.ID, email, actor.Role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the API")
	cmd.Flags().String("issuer", os.Getenv("JWT_ISSUER"), "Token issuer")
	cmd.Flags().String("email", "", "Email claim")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}

func entriesCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List a payer's entries on a property",
		RunE: withApp(open, func(cmd *cobra.Command, args []string, app *App) error {
			actor, err := actorFromFlags(cmd)
			if err != nil {
				return err
			}
			propertyID, _ := cmd.Flags().GetInt32("property")
			payerID, _ := cmd.Flags().GetInt32("payer")
			statusFlags, _ := cmd.Flags().GetStringSlice("status")
			var statuses []domain.EntryStatus
			for _, st := range statusFlags {
				statuses = append(statuses, domain.EntryStatus(strings.ToUpper(st)))
			}
			entries, err := app.Ledger.FindByPropertyAndPayer(cmd.Context(), actor, propertyID, payerID, statuses...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		}),
	}
	cmd.Flags().Int32("property", 0, "Property id")
	cmd.Flags().Int32("payer", 0, "Payer id")
	cmd.Flags().StringSlice("status", nil, "Only entries in these statuses")
	_ = cmd.MarkFlagRequired("property")
	_ = cmd.MarkFlagRequired("payer")
	return cmd
}

func balanceCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show paid, remaining and progress for a payer on a property",
		RunE: withApp(open, func(cmd *cobra.Command, args []string, app *App) error {
			propertyID, _ := cmd.Flags().GetInt32("property")
			payerID, _ := cmd.Flags().GetInt32("payer")
			agreementID, _ := cmd.Flags().GetInt32("agreement")
			ctx := cmd.Context()

			var (
				price     decimal.Decimal
				fullyPaid bool
				err       error
			)
			if agreementID != 0 {
				price, fullyPaid, err = app.Balance.ReferencePriceForAgreement(ctx, agreementID)
			} else {
				price, err = app.Balance.ReferencePriceForProperty(ctx, propertyID)
			}
			if err != nil {
				return err
			}
			progress, err := app.Balance.Progress(ctx, propertyID, payerID, price, fullyPaid)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), progress)
		}),
	}
	cmd.Flags().Int32("property", 0, "Property id")
	cmd.Flags().Int32("payer", 0, "Payer id")
	cmd.Flags().Int32("agreement", 0, "Measure against this agreement's contract total instead of the listing price")
	_ = cmd.MarkFlagRequired("property")
	_ = cmd.MarkFlagRequired("payer")
	return cmd
}

func transitionCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition ENTRY_ID STATUS",
		Short: "Move a ledger entry to PENDING, PROCESSING, COMPLETED or CANCELLED",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(open, func(cmd *cobra.Command, args []string, app *App) error {
			actor, err := actorFromFlags(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			note, _ := cmd.Flags().GetString("note")
			entry, err := app.Ledger.TransitionStatus(cmd.Context(), actor, id, domain.EntryStatus(strings.ToUpper(args[1])), note)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		}),
	}
	cmd.Flags().String("note", "", "Note appended to the entry's admin notes")
	return cmd
}

func agreementCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agreement",
		Short: "Review rental agreements",
	}

	action := func(use, short string, withReason bool, run func(app *App, cmd *cobra.Command, actor domain.Actor, id int32, reason string) (*domain.RentalAgreement, error)) *cobra.Command {
		sub := &cobra.Command{
			Use:   use + " AGREEMENT_ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: withApp(open, func(cmd *cobra.Command, args []string, app *App) error {
				actor, err := actorFromFlags(cmd)
				if err != nil {
					return err
				}
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				reason := ""
				if withReason {
					reason, _ = cmd.Flags().GetString("reason")
				}
				a, err := run(app, cmd, actor, id, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a)
			}),
		}
		if withReason {
			sub.Flags().String("reason", "", "Reason recorded on the agreement")
		}
		return sub
	}

	cmd.AddCommand(
		action("show", "Print an agreement", false, func(app *App, cmd *cobra.Command, actor domain.Actor, id int32, _ string) (*domain.RentalAgreement, error) {
			return app.Agreements.Get(cmd.Context(), actor, id)
		}),
		action("approve", "Approve a pending agreement", false, func(app *App, cmd *cobra.Command, actor domain.Actor, id int32, _ string) (*domain.RentalAgreement, error) {
			return app.Agreements.Approve(cmd.Context(), actor, id)
		}),
		action("reject", "Reject a pending agreement", true, func(app *App, cmd *cobra.Command, actor domain.Actor, id int32, reason string) (*domain.RentalAgreement, error) {
			return app.Agreements.Reject(cmd.Context(), actor, id, reason)
		}),
		action("complete", "Close an approved agreement as completed", false, func(app *App, cmd *cobra.Command, actor domain.Actor, id int32, _ string) (*domain.RentalAgreement, error) {
			return app.Agreements.Complete(cmd.Context(), actor, id)
		}),
		action("cancel", "Cancel an agreement", true, func(app *App, cmd *cobra.Command, actor domain.Actor, id int32, reason string) (*domain.RentalAgreement, error) {
			return app.Agreements.Cancel(cmd.Context(), actor, id, reason)
		}),
	)
	return cmd
}

func parseID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return int32(id), nil
}
