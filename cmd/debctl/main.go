package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/debenture/internal/identity"
	"github.com/jmerrifield20/debenture/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

const defaultServer = "http://localhost:8080"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the persistent flags shared by every subcommand.
type cli struct {
	server  string
	cfgFile string
	caller  string
	token   string
	address string
	format  string
}

func newRootCmd() *cobra.Command {
	o := &cli{}
	root := &cobra.Command{
		Use:   "debctl",
		Short: "Debenture amortization CLI",
		Long: `debctl drives an amortd service: it settles and redeems bonds as the
issuing institution and queries schedules, ledger entries and balances.

Credentials come from flags, ~/.debctl/config.yaml or DEBCTL_* env vars.
A token saved by 'debctl login' is reused until it expires.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.loadConfig()
		},
	}

	root.PersistentFlags().StringVar(&o.cfgFile, "config", "", "config file (default ~/.debctl/config.yaml)")
	root.PersistentFlags().StringVar(&o.server, "server", "", "amortd base URL (default "+defaultServer+")")
	root.PersistentFlags().StringVar(&o.caller, "caller", "", "caller address for services without token auth")
	root.PersistentFlags().StringVar(&o.token, "token", "", "caller bearer token")
	root.PersistentFlags().StringVar(&o.address, "address", "", "caller address used by login")
	root.PersistentFlags().StringVar(&o.format, "format", "text", "output format: text or json")

	root.AddCommand(
		o.loginCmd(),
		o.payoutCmd("settle", "Pay every elapsed amortization period of a bond"),
		o.payoutCmd("redeem", "Redeem a bond early, paying the remaining principal"),
		o.scheduleCmd(),
		o.entryCmd(),
		o.balanceCmd(),
		o.receiptsCmd(),
		hashSecretCmd(),
		versionCmd(),
	)
	return root
}

func (o *cli) loadConfig() {
	if o.cfgFile != "" {
		viper.SetConfigFile(o.cfgFile)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("debctl")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	if o.server == "" {
		o.server = viper.GetString("server")
	}
	if o.server == "" {
		o.server = defaultServer
	}
	if o.caller == "" {
		o.caller = viper.GetString("caller")
	}
	if o.address == "" {
		o.address = viper.GetString("address")
	}
	if o.token == "" {
		o.token = viper.GetString("token")
	}
	if o.token == "" {
		o.token = loadSavedToken()
	}
}

// client builds an SDK client from the resolved flags. A bearer token wins
// over credentials, which win over the open-mode caller header.
func (o *cli) client() (*client.Client, error) {
	opts := []client.Option{}
	switch {
	case o.token != "":
		opts = append(opts, client.WithBearerToken(o.token))
	case o.address != "" && viper.GetString("secret") != "":
		opts = append(opts, client.WithCredentials(o.address, viper.GetString("secret")))
	}
	if o.caller != "" {
		opts = append(opts, client.WithCaller(o.caller))
	}
	return client.New(o.server, opts...)
}

// print writes v as indented JSON or, in text mode, calls text.
func (o *cli) print(w io.Writer, v any, text func(w *tabwriter.Writer)) error {
	if o.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// ── login ────────────────────────────────────────────────────────────────────

func (o *cli) loginCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange an address and API secret for a caller token",
		Long: `login reads the API secret from DEBCTL_SECRET or, when unset, from stdin,
and exchanges it for a caller token. With --save (the default) the token is
stored in ~/.debctl/token and used by later commands until it expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.address == "" {
				return errors.New("--address is required")
			}
			secret := viper.GetString("secret")
			if secret == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "API secret: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = strings.TrimSpace(line)
			}

			c, err := client.New(o.server, client.WithCredentials(o.address, secret))
			if err != nil {
				return err
			}
			token, expires, err := c.Login(cmd.Context())
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if save {
				if err := saveToken(token, expires); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (token valid until %s)\n",
				o.address, expires.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", true, "store the token in ~/.debctl/token")
	return cmd
}

// ── settle / redeem ──────────────────────────────────────────────────────────

func (o *cli) payoutCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <bond-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBondID(args[0])
			if err != nil {
				return err
			}
			c, err := o.client()
			if err != nil {
				return err
			}
			var s *client.Settlement
			if op == "redeem" {
				s, err = c.Redeem(cmd.Context(), id)
			} else {
				s, err = c.Settle(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), s, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "RECEIPT\t%s\n", s.ReceiptID)
				fmt.Fprintf(w, "INVESTOR\t%s\n", s.Investor)
				fmt.Fprintf(w, "PERIODS\t%d\n", s.Periods)
				fmt.Fprintf(w, "AMOUNT\t%s\n", s.Amount.String())
				fmt.Fprintf(w, "PAID\t%d/%d\n", s.PaymentsMade, s.Frequency)
				fmt.Fprintf(w, "TAX RATE\t%s\n", s.TaxRate.String())
			})
		},
	}
}

// ── queries ──────────────────────────────────────────────────────────────────

func (o *cli) scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <bond-id>",
		Short: "Show the amortization schedule of a bond",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBondID(args[0])
			if err != nil {
				return err
			}
			c, err := o.client()
			if err != nil {
				return err
			}
			s, err := c.Schedule(cmd.Context(), id)
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), s, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "INVESTOR\t%s\n", s.Investor)
				fmt.Fprintf(w, "PAID\t%d/%d\n", s.PaymentsMade, s.Frequency)
				fmt.Fprintf(w, "LAST SETTLEMENT\t%s\n", s.LastSettlement.Format(time.RFC3339))
				if s.Completed {
					fmt.Fprintf(w, "NEXT DUE\tcompleted\n")
					return
				}
				if s.NextDue != nil {
					fmt.Fprintf(w, "NEXT DUE\t%s\n", s.NextDue.Format(time.RFC3339))
				}
				fmt.Fprintf(w, "TIME LEFT\t%s\n", time.Duration(s.TimeLeftSeconds)*time.Second)
			})
		},
	}
}

func (o *cli) entryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entry <investor> <bond-id>",
		Short: "Show the ledger entry of an investor for a bond",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBondID(args[1])
			if err != nil {
				return err
			}
			c, err := o.client()
			if err != nil {
				return err
			}
			e, err := c.Entry(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), e, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "PAYMENTS MADE\t%d\n", e.PaymentsMade)
				if e.LastSettlement != nil {
					fmt.Fprintf(w, "LAST SETTLEMENT\t%s\n", e.LastSettlement.Format(time.RFC3339))
				} else {
					fmt.Fprintf(w, "LAST SETTLEMENT\t-\n")
				}
			})
		},
	}
}

func (o *cli) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <investor>",
		Short: "Show the credited payout balance of an investor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			balance, err := c.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), map[string]any{"investor": args[0], "balance": balance},
				func(w *tabwriter.Writer) {
					fmt.Fprintf(w, "%s\t%s\n", args[0], balance.String())
				})
		},
	}
}

func (o *cli) receiptsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "receipts <investor>",
		Short: "List the most recent payouts of an investor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			receipts, err := c.Receipts(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return o.print(cmd.OutOrStdout(), receipts, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "CREATED\tBOND\tKIND\tPERIODS\tAMOUNT")
				for _, r := range receipts {
					fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n",
						r.CreatedAt.Format(time.RFC3339), r.BondID, r.Kind, r.Periods, r.Amount.String())
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of receipts")
	return cmd
}

// ── hash-secret / version ────────────────────────────────────────────────────

func hashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret",
		Short: "Hash an API secret (read from stdin) for auth.principals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read secret: %w", err)
			}
			hash, err := identity.HashSecret(strings.TrimSpace(line))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the debctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "debctl %s\n", version)
		},
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

func parseBondID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bond id %q", raw)
	}
	return id, nil
}

func configDir() string {
	if dir := os.Getenv("DEBCTL_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".debctl")
}

type savedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func saveToken(token string, expires time.Time) error {
	dir := configDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.Marshal(savedToken{Token: token, ExpiresAt: expires})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "token"), data, 0o600)
}

// loadSavedToken returns the token stored by login, or "" when it is missing
// or expired.
func loadSavedToken() string {
	data, err := os.ReadFile(filepath.Join(configDir(), "token"))
	if err != nil {
		return ""
	}
	var t savedToken
	if json.Unmarshal(data, &t) != nil || time.Now().After(t.ExpiresAt) {
		return ""
	}
	return t.Token
}
