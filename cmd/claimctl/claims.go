package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/runtime"
	"github.com/tjfontaine/claim-intake/internal/storage/sqldb"
)

func newClaimsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Inspect submitted claims in a sqlite or postgres store",
	}

	var (
		filter ports.ClaimFilter
		status string
		kind   string
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List claims, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(root)
			if err != nil {
				return err
			}
			defer store.Close()

			filter.Status = domain.ClaimStatus(status)
			filter.ClaimType = domain.ClaimType(kind)
			claims, total, err := store.ListClaims(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"claims": claims, "total": total})
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "Type", "Status", "Customer", "Submitted")
			for _, c := range claims {
				row := []string{c.ID, string(c.ClaimType), string(c.Status), c.UserName, c.SubmittedAt.Format("2006-01-02 15:04")}
				if err := table.Append(row); err != nil {
					return err
				}
			}
			if err := table.Render(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(claims), total)
			return nil
		},
	}
	list.Flags().StringVar(&filter.Search, "search", "", "match id, customer, email or product")
	list.Flags().StringVar(&status, "status", "", "received, under_review, approved, rejected or pending")
	list.Flags().StringVar(&kind, "type", "", "shipping or product")
	list.Flags().IntVar(&filter.Limit, "limit", ports.DefaultListLimit, "page size")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "rows to skip")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	get := &cobra.Command{
		Use:   "get <claim-id>",
		Short: "Print one claim and its events as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(root)
			if err != nil {
				return err
			}
			defer store.Close()

			claim, err := store.GetClaim(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get claim %s: %w", args[0], err)
			}
			events, err := store.ListEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"claim": claim, "events": events})
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func openStore(root *rootOptions) (*sqldb.Store, error) {
	cfg, err := root.load()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Type != "sqlite" && cfg.Storage.Type != "postgres" {
		return nil, fmt.Errorf("storage.type %q is not a sql store", cfg.Storage.Type)
	}
	driver := cfg.Storage.Database.Driver
	if driver == "" {
		driver = cfg.Storage.Type
	}
	dsn := cfg.Storage.Database.DSN
	if dsn == "" && driver == "sqlite" {
		dsn = runtime.DefaultSQLiteDSN
	}
	return sqldb.New(sqldb.Config{Driver: driver, DSN: dsn})
}
