// Package main запускает терминальную витрину APSE: вход, корзина, кошелёк и покупка услуг.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/appstate"
	"github.com/mmeshcher/apse-storefront/internal/client"
	"github.com/mmeshcher/apse-storefront/internal/settlement"
)

type cliConfig struct {
	APIURL    string `env:"STOREFRONT_API_URL"`
	StateFile string `env:"STOREFRONT_STATE_FILE"`
}

func defaultStateFile() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "apse-storefront", "state.json")
	}
	return "storefront-state.json"
}

// applyEnv перекрывает значения флагов переменными окружения.
func (cfg *cliConfig) applyEnv() error {
	var fromEnv cliConfig
	if err := env.Parse(&fromEnv); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if fromEnv.APIURL != "" {
		cfg.APIURL = fromEnv.APIURL
	}
	if fromEnv.StateFile != "" {
		cfg.StateFile = fromEnv.StateFile
	}
	return nil
}

// open готовит сессию, клиент API и оркестратор оплаты для команды.
func (a *app) open(cfg cliConfig, in io.Reader) error {
	store, err := appstate.Open(cfg.StateFile, a.logger)
	if err != nil {
		return err
	}

	api := client.NewClient(cfg.APIURL)
	if sess, ok := store.Session(); ok {
		api.SetToken(sess.Token)
	}

	p := newPrompt(in, a.out)
	a.api = api
	a.store = store
	a.orchestrator = settlement.New(api, p, p, a.logger)
	return nil
}

func newRootCmd(in io.Reader, out io.Writer, logger *zap.Logger) *cobra.Command {
	a := &app{out: out, logger: logger}
	cfg := cliConfig{}

	root := &cobra.Command{
		Use:   "storefront-cli",
		Short: "APSE storefront in the terminal",
		Long: `Terminal client for the APSE storefront.

Browse products and services, keep a cart between runs, pay for services
from the wallet or through the payment gateway.

STOREFRONT_API_URL and STOREFRONT_STATE_FILE override --api and --state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.applyEnv(); err != nil {
				return err
			}
			return a.open(cfg, in)
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVar(&cfg.APIURL, "api", "http://localhost:8080/api", "storefront API base URL")
	root.PersistentFlags().StringVar(&cfg.StateFile, "state", defaultStateFile(), "file with persisted session and cart")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.productsCmd(),
		a.cartCmd(),
		a.checkoutCmd(),
		a.ordersCmd(),
		a.addressCmd(),
		a.walletCmd(),
		a.loadCmd(),
		a.servicesCmd(),
		a.quoteCmd(),
		a.purchaseCmd(),
		a.myServicesCmd(),
		a.marketCmd(),
		a.partnersCmd(),
	)
	return root
}

func main() {
	logger, _ := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, logger).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
