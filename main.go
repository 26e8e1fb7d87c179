// Tipjar is a small "buy me a beer" donation server.
// Payments are taken by Stripe hosted checkout and confirmed donations are stored in Airtable.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/TheLab-ms/tipjar/engine"
	"github.com/TheLab-ms/tipjar/engine/db"
	"github.com/TheLab-ms/tipjar/modules/airtable"
	"github.com/TheLab-ms/tipjar/modules/donations"
	"github.com/TheLab-ms/tipjar/modules/payment"
	"github.com/TheLab-ms/tipjar/modules/pricing"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v78"
)

type Config struct {
	HttpAddr     string `envDefault:":8080"`
	DatabasePath string `envDefault:"tipjar.sqlite3"`

	// SelfURL is the public base URL used for checkout return links and the share QR code.
	SelfURL string

	UnitAmount  int64  `envDefault:"500"`
	MaxAmount   int64  `envDefault:"10000"`
	Currency    string `envDefault:"usd"`
	ProductName string `envDefault:"Beer"`

	StripeKey        string
	StripeWebhookKey string

	AirtableKey     string
	AirtableBaseID  string
	AirtableTable   string        `envDefault:"donations"`
	AirtableURL     string        `envDefault:"https://api.airtable.com/v0"`
	AirtableRPS     int           `envDefault:"5"`
	AirtableTimeout time.Duration `envDefault:"10s"`

	DedupeEvents        bool
	RequireStoreAck     bool
	AckUnexpectedEvents bool
}

func (c Config) Pricing() pricing.Config {
	return pricing.Config{UnitAmount: c.UnitAmount, MaxAmount: c.MaxAmount}
}

func (c Config) Store() *airtable.Client {
	return airtable.NewClient(airtable.Options{
		BaseURL: c.AirtableURL,
		BaseID:  c.AirtableBaseID,
		Table:   c.AirtableTable,
		APIKey:  c.AirtableKey,
		RPS:     c.AirtableRPS,
		Timeout: c.AirtableTimeout,
	})
}

func loadConfig() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{Prefix: "TIPJAR_", UseFieldNameByDefault: true})
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	serve := serveCmd()
	root := &cobra.Command{
		Use:           "tipjar",
		Short:         "Buy me a beer donation server",
		SilenceUsage:  true,
		RunE:          serve.RunE,
		SilenceErrors: true,
	}
	root.AddCommand(serve)
	root.AddCommand(healthcheckCmd())
	root.AddCommand(recentCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the http server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			stripe.Key = conf.StripeKey

			app, err := newApp(conf, getSelfURL(conf))
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			app.Run(ctx)
			return nil
		},
	}
}

func healthcheckCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return engine.CheckHealthProbe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "url", "http://localhost:8080/healthz", "health probe url")
	return cmd
}

func recentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent donations from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			records, err := conf.Store().ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tAMOUNT\tNAME\tMESSAGE")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.CreatedTime.Format(time.RFC3339), rec.Fields.Amount, rec.Fields.Name, rec.Fields.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", donations.DefaultLimit, "number of donations to show")
	return cmd
}

func newApp(conf Config, self *url.URL) (*engine.App, error) {
	prices := conf.Pricing()
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	if conf.StripeWebhookKey == "" {
		slog.Warn("no stripe webhook key configured - every webhook delivery will be rejected")
	}

	database, err := db.Open(conf.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	events := engine.NewEventLogger(database)

	var ledger *payment.Ledger
	if conf.DedupeEvents {
		ledger = payment.NewLedger(database)
	}

	store := conf.Store()

	router := engine.NewRouter()
	router.HandleFunc("GET", "/healthz", engine.ServeHealthProbe(database))

	a := engine.NewApp(conf.HttpAddr, router)

	pay := payment.New(payment.Options{
		Pricing:             prices,
		Self:                self,
		Currency:            conf.Currency,
		ProductName:         conf.ProductName,
		Recorder:            store,
		WebhookKey:          conf.StripeWebhookKey,
		Events:              events,
		Ledger:              ledger,
		RequireStoreAck:     conf.RequireStoreAck,
		AckUnexpectedEvents: conf.AckUnexpectedEvents,
	})
	a.Add(pay)

	a.Add(donations.New(donations.Options{
		Pricing:  prices,
		Self:     self,
		Lister:   store,
		Checkout: pay,
	}))

	a.ProcMgr.Add(engine.Poll(time.Hour, events.Prune(30)))

	return a, nil
}

func getSelfURL(conf Config) *url.URL {
	str := conf.SelfURL
	if str == "" {
		conn, err := net.Dial("udp4", "8.8.8.8:53")
		if err != nil {
			panic(err)
		}
		conn.Close()

		_, port, _ := net.SplitHostPort(conf.HttpAddr)
		str = fmt.Sprintf("http://%s:%s/", conn.LocalAddr().(*net.UDPAddr).IP, port)
		slog.Info("discovered self URL", "url", str)
	}

	self, err := url.Parse(str)
	if err != nil {
		panic(err)
	}
	return self
}
