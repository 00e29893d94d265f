package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/saccochain/ledgersync/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL   string
	adminSecret string
	cfgFile     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lsctl",
	Short: "ledgersync admin CLI",
	Long: `lsctl is the command-line interface for a ledgersync service.

It controls the event listener, inspects ledger state, and drives the
credit score lifecycle: compute, anchor, verify.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.lsctl")
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
		if adminSecret == "" {
			adminSecret = viper.GetString("admin_secret")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.lsctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledgersync server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&adminSecret, "secret", "", "admin secret for mutating commands (or ADMIN_SECRET)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listenerCmd)
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(registerSaccoCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(versionCmd)

	listenerCmd.AddCommand(listenerStartCmd)
	listenerCmd.AddCommand(listenerStopCmd)

	scoreCmd.AddCommand(scoreComputeCmd)
	scoreCmd.AddCommand(scoreAnchorCmd)
	scoreCmd.AddCommand(scoreVerifyCmd)
}

// newClient builds an SDK client, logging in when the command needs admin
// rights and a secret is available.
func newClient(ctx context.Context, needAdmin bool) (*client.Client, error) {
	c := client.New(serverURL)
	if needAdmin {
		if adminSecret == "" {
			return nil, fmt.Errorf("this command requires --secret (or ADMIN_SECRET)")
		}
		if err := c.Login(ctx, adminSecret); err != nil {
			return nil, fmt.Errorf("admin login: %w", err)
		}
	}
	return c, nil
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the event listener status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, false)
		if err != nil {
			return err
		}

		status, err := c.ListenerStatus(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Listening:\t%v\n", status.Listening)
		fmt.Fprintf(w, "State:\t%s\n", status.State)
		fmt.Fprintf(w, "Checkpoint:\t%s\n", orDash(status.LastProcessedDigest))
		fmt.Fprintf(w, "Network:\t%s\n", status.Network)
		return w.Flush()
	},
}

// ── listener ─────────────────────────────────────────────────────────────────

var listenerCmd = &cobra.Command{
	Use:   "listener",
	Short: "Control the event listener",
}

var listenerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the event listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, true)
		if err != nil {
			return err
		}
		if err := c.StartListener(ctx); err != nil {
			return err
		}
		fmt.Println("listener started")
		return nil
	},
}

var listenerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the event listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, true)
		if err != nil {
			return err
		}
		if err := c.StopListener(ctx); err != nil {
			return err
		}
		fmt.Println("listener stopped")
		return nil
	},
}

// ── network ──────────────────────────────────────────────────────────────────

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show ledger node information",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, false)
		if err != nil {
			return err
		}

		info, err := c.NetworkInfo(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Network:\t%s\n", info.Network)
		fmt.Fprintf(w, "Chain ID:\t%s\n", info.ChainID)
		fmt.Fprintf(w, "Gas Price:\t%d\n", info.GasPrice)
		fmt.Fprintf(w, "Package:\t%s\n", info.PackageID)
		return w.Flush()
	},
}

// ── records ──────────────────────────────────────────────────────────────────

var recordsAll bool

var recordsCmd = &cobra.Command{
	Use:   "records <address>",
	Short: "List anchored credit-score records owned by an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, false)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OBJECT\tSCORE\tRISK\tSACCO\tTIMESTAMP\tHASH")

		cursor := ""
		for {
			page, err := c.HashRecords(ctx, args[0], cursor)
			if err != nil {
				return err
			}
			for _, r := range page.Records {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
					r.ObjectID, r.CreditScore, r.RiskLevel, r.SaccoID,
					r.Timestamp.Format(time.RFC3339), r.ScoreHash)
			}
			if !recordsAll || !page.HasNextPage || page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		return w.Flush()
	},
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsAll, "all", false, "Follow pagination to the last page")
}

// ── register-sacco ───────────────────────────────────────────────────────────

var (
	saccoName    string
	saccoLicense string
)

var registerSaccoCmd = &cobra.Command{
	Use:   "register-sacco <sacco-id>",
	Short: "Submit an on-chain SACCO registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, true)
		if err != nil {
			return err
		}

		res, err := c.RegisterSacco(ctx, client.RegisterSaccoRequest{
			SaccoID:   args[0],
			Name:      saccoName,
			LicenseNo: saccoLicense,
		})
		if err != nil {
			return err
		}
		fmt.Printf("submitted: %s\n", res.Digest)
		fmt.Println("confirmation arrives via the event listener")
		return nil
	},
}

func init() {
	registerSaccoCmd.Flags().StringVar(&saccoName, "name", "", "SACCO display name")
	registerSaccoCmd.Flags().StringVar(&saccoLicense, "license", "", "SACCO license number")
	registerSaccoCmd.MarkFlagRequired("name")    //nolint:errcheck
	registerSaccoCmd.MarkFlagRequired("license") //nolint:errcheck
}

// ── score ────────────────────────────────────────────────────────────────────

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Credit score lifecycle: compute, anchor, verify",
}

var scoreComputeCmd = &cobra.Command{
	Use:   "compute <member-id>",
	Short: "Compute and store a fresh credit score for a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, true)
		if err != nil {
			return err
		}

		raw, err := c.ComputeScore(ctx, args[0])
		if err != nil {
			return err
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var scoreAnchorCmd = &cobra.Command{
	Use:   "anchor <score-id>",
	Short: "Anchor a stored score's commitment on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, true)
		if err != nil {
			return err
		}

		res, err := c.AnchorScore(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("anchored: %s\n", res.Digest)
		fmt.Printf("hash:     %s\n", res.Hash)
		return nil
	},
}

var scoreVerifyCmd = &cobra.Command{
	Use:   "verify <score-id>",
	Short: "Verify a stored score against the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		c, err := newClient(ctx, false)
		if err != nil {
			return err
		}

		res, err := c.VerifyScore(ctx, args[0])
		if err != nil {
			return err
		}
		if !res.Verified {
			fmt.Println("NOT VERIFIED: no matching record on the ledger")
			os.Exit(1)
		}
		fmt.Println("VERIFIED")
		if res.Record != nil {
			fmt.Printf("object:  %s\n", res.Record.ObjectID)
			fmt.Printf("hash:    %s\n", res.Record.ScoreHash)
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the lsctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lsctl", version)
	},
}

func orDash(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
