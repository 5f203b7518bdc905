package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inaltera/inaltera/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile   string
	serverURL string
	token     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inalteractl",
	Short: "Inaltera ledger CLI",
	Long: `inalteractl is the operator command-line interface for an Inaltera
ledger server.

It verifies document hashes, audits chain integrity, and inspects the
records and audit events belonging to the configured session token.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.inaltera")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.inaltera/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "API server base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "owner session token for authenticated commands")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(versionCmd)
}

func apiClient() *client.Client {
	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <hash>",
	Short: "Verify a document hash against the ledger",
	Long: `Verify checks whether the given hash identifies a document recorded
on the ledger. This queries the public endpoint and needs no token:

  inalteractl verify 3b4f…64 hex chars…9c1d`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient().Verify(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !res.Valid {
			fmt.Println("NOT VALID — no document on the ledger matches this hash")
			return nil
		}
		fmt.Println("VALID")
		if res.Document != nil {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "document\t%s\n", res.Document.DocNumber)
			fmt.Fprintf(w, "counterparty\t%s\n", res.Document.Counterparty)
			fmt.Fprintf(w, "total\t%s\n", res.Document.Total)
			fmt.Fprintf(w, "recorded\t%s\n", res.Document.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			w.Flush()
		}
		return nil
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditCmd = &cobra.Command{
	Use:   "audit [invoices|events|all]",
	Short: "Walk a ledger chain and report integrity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		which := "all"
		if len(args) == 1 {
			which = args[0]
		}

		c := apiClient()
		ctx := context.Background()
		var results []*client.AuditResult

		switch which {
		case "invoices":
			r, err := c.AuditInvoices(ctx)
			if err != nil {
				return err
			}
			results = append(results, r)
		case "events":
			r, err := c.AuditEvents(ctx)
			if err != nil {
				return err
			}
			results = append(results, r)
		case "all":
			for _, fn := range []func(context.Context) (*client.AuditResult, error){c.AuditInvoices, c.AuditEvents} {
				r, err := fn(ctx)
				if err != nil {
					return err
				}
				results = append(results, r)
			}
		default:
			return fmt.Errorf("unknown ledger %q (want invoices, events, or all)", which)
		}

		tampered := false
		for _, r := range results {
			if r.Valid {
				fmt.Printf("%-10s OK\n", r.Ledger)
				continue
			}
			tampered = true
			fmt.Printf("%-10s TAMPERED — first bad entry id %d (%s)\n", r.Ledger, r.FirstTamperedID, r.Reason)
		}
		if tampered {
			os.Exit(2)
		}
		return nil
	},
}

// ── records / events / usage ─────────────────────────────────────────────────

var recordsJSON bool

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List your invoice records, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := apiClient().Records(context.Background())
		if err != nil {
			return err
		}
		if recordsJSON {
			return json.NewEncoder(os.Stdout).Encode(records)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDOCUMENT\tKIND\tSTATUS\tTOTAL\tHASH")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s…\n",
				r.ID, r.Payload.DocNumber, r.Payload.Kind, r.Payload.Status,
				r.Payload.Total, r.CurrentHash[:12])
		}
		return w.Flush()
	},
}

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List your audit events, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := apiClient().Events(context.Background(), eventsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWHEN\tCATEGORY\tLEVEL\tDESCRIPTION")
		for _, e := range events {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.Payload.Category,
				e.Payload.Level, e.Payload.Description)
		}
		return w.Flush()
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show your issuance volume for the current month",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := apiClient().Usage(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%d / %d invoices this month (%d%%), resets %s\n",
			u.Used, u.Limit, u.Percent, u.ResetAt.Format("2006-01-02"))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("inalteractl", version)
	},
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "Output raw JSON")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to fetch (0 = no limit)")
}
