// Command idverify signs in to an identity-verification provider from the
// terminal and reads the verified profile of the signed-in user.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/jeremyhahn/go-idverify/pkg/idverify"
	"github.com/jeremyhahn/go-idverify/pkg/logging"
	"github.com/jeremyhahn/go-idverify/pkg/metrics"
	"github.com/jeremyhahn/go-idverify/pkg/oauth"
	"github.com/jeremyhahn/go-idverify/pkg/redirect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every subcommand needs. It is built in the root command's
// PersistentPreRunE and closed by the func newRootCmd returns.
type app struct {
	cfg      *cliConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	bridge   *redirect.Bridge
	client   *idverify.Client
	closers  []func() error
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.logger.Sync()
}

func newApp(ctx context.Context, cfg *cliConfig, out io.Writer, printOnly bool) (*app, error) {
	logger := logging.New(logging.Config{Env: cfg.LogEnv, Level: cfg.LogLevel})

	oc := cfg.oauthConfig()
	if cfg.Issuer != "" {
		p, err := oauth.Discover(ctx, oauth.NewTransport(oc), cfg.Issuer, "", cfg.PoliciesURL)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", cfg.Issuer, err)
		}
		oc.Provider = p
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	st, closeStore, err := cfg.openStore()
	if err != nil {
		return nil, err
	}

	bridge := redirect.New(browserLauncher(out, printOnly, logger), redirect.WithLogger(logger))
	client, err := idverify.New(oc, bridge,
		idverify.WithStore(st),
		idverify.WithLogger(logger),
		idverify.WithMetrics(m))
	if err != nil {
		closeStore()
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		bridge:   bridge,
		client:   client,
		closers:  []func() error{closeStore},
	}, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// newRootCmd builds the command tree. The returned func releases whatever
// the command opened and must run after Execute, whether it failed or not.
func newRootCmd() (*cobra.Command, func()) {
	var (
		configFile string
		envFile    string
		printOnly  bool
		serveStats bool
		a          *app
	)

	root := &cobra.Command{
		Use:           "idverify",
		Short:         "Identity verification from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, envFile)
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg, cmd.ErrOrStderr(), printOnly)
			if err != nil {
				return err
			}
			cmd.SetContext(logging.ToContext(cmd.Context(), a.logger.With(zap.String("command", cmd.Name()))))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file to load (default ./.env when present)")

	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var gatherer prometheus.Gatherer
			if serveStats {
				gatherer = a.registry
			}
			u, err := url.Parse(a.cfg.RedirectURI)
			if err != nil {
				return err
			}
			srv, err := startCallbackServer(a.cfg.RedirectURI, newCallbackRouter(a.bridge, u.Path, gatherer), a.logger)
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, a.cfg.LoginTimeout)
			defer cancel()

			creds, err := a.client.Login(ctx)
			if idverify.IsCancellation(err) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Login cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in. Access token valid until %s.\n", creds.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	login.Flags().BoolVar(&printOnly, "no-browser", false, "print the authorize URL instead of opening a browser")
	login.Flags().BoolVar(&serveStats, "metrics", false, "expose /metrics on the callback server during login")

	var minTTL time.Duration
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.client.Credentials(cmd.Context(), minTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), creds.AccessToken)
			return nil
		},
	}
	tokenCmd.Flags().DurationVar(&minTTL, "min-ttl", 0, "refresh when the token expires sooner than this (default 60s)")

	userinfo := &cobra.Command{
		Use:   "userinfo",
		Short: "Show the signed-in user's profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.client.UserInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	attributes := &cobra.Command{
		Use:   "attributes",
		Short: "Show verified attributes and group statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := a.client.Attributes(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), attrs)
		},
	}

	payload := &cobra.Command{
		Use:   "payload",
		Short: "Show every profile claim as key/value pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := a.client.RawPayload(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range claims {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Key, c.Value)
			}
			return nil
		},
	}

	var all bool
	policies := &cobra.Command{
		Use:   "policies",
		Short: "List the organization's verification policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				list, err := a.client.Policies(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			}
			return printJSON(cmd.OutOrStdout(), a.client.AvailablePolicies(cmd.Context()))
		},
	}
	policies.Flags().BoolVar(&all, "all", false, "include inactive policies and report errors")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.client.Logout(cmd.Context())
		},
	}

	root.AddCommand(login, tokenCmd, userinfo, attributes, payload, policies, logout)
	return root, func() {
		if a != nil {
			a.close()
			a = nil
		}
	}
}

func main() {
	root, closeApp := newRootCmd()
	err := root.Execute()
	closeApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, "idverify:", err)
		os.Exit(1)
	}
}
