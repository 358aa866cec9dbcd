package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/storefront-checkout/internal/config"
	"github.com/imrishuroy/storefront-checkout/internal/logging"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
	"github.com/imrishuroy/storefront-checkout/internal/quoteracer"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

// QuoterFactory builds the quoter for a run. nil uses the configured carrier.
type QuoterFactory func(cfg *config.Config, mock bool, log zerolog.Logger) shipping.Quoter

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the quotectl root command.
func NewRootCommand(factory QuoterFactory) *cobra.Command {
	if factory == nil {
		factory = func(cfg *config.Config, mock bool, log zerolog.Logger) shipping.Quoter {
			return shipping.NewQuoter(cfg.Carrier, mock || cfg.Quote.Mock, log)
		}
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quotectl",
		Short: "Query carrier shipping quotes",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewQuoteCommand(opts, factory))
	cmd.AddCommand(NewRaceCommand(opts, factory))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// QuoteOptions holds flags for the quote command.
type QuoteOptions struct {
	*RootOptions
	Origin    string
	Weight    int
	Delivered string
	Mock      bool
	Timeout   time.Duration
}

func (o *QuoteOptions) logger() zerolog.Logger {
	if o.Verbose {
		return logging.New("debug")
	}
	return zerolog.Nop()
}

// NewQuoteCommand creates the quote command.
func NewQuoteCommand(rootOpts *RootOptions, factory QuoterFactory) *cobra.Command {
	opts := &QuoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "quote <destination-postal-code>",
		Short: "Price one parcel to a destination",
		Long: `Price one parcel to a destination postal code.

Example:
  quotectl quote 5000 --origin 1406 --weight 1200 --delivered S`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			q := factory(cfg, opts.Mock, opts.logger())

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			quote, err := q.Quote(ctx, shipping.Normalize(shipping.Request{
				Origin:       opts.Origin,
				Destination:  args[0],
				WeightGrams:  opts.Weight,
				DeliveryKind: shipping.DeliveryKindFromCode(opts.Delivered),
			}, cfg.Carrier.DefaultOrigin))
			if err != nil {
				return err
			}
			return printQuote(cmd, opts.Format, quote)
		},
	}

	cmd.Flags().StringVar(&opts.Origin, "origin", "", "origin postal code (default: configured store origin)")
	cmd.Flags().IntVar(&opts.Weight, "weight", 0, "parcel weight in grams")
	cmd.Flags().StringVar(&opts.Delivered, "delivered", "D", "D for home delivery, S for agency")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "use the fixed mock quote")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 20*time.Second, "overall timeout")

	return cmd
}

// RaceOptions holds flags for the race command.
type RaceOptions struct {
	QuoteOptions
	Debounce time.Duration
}

// NewRaceCommand creates the race command: it feeds destinations to a quote
// racer in order and prints the quote that settles.
func NewRaceCommand(rootOpts *RootOptions, factory QuoterFactory) *cobra.Command {
	opts := &RaceOptions{QuoteOptions: QuoteOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "race <destination>...",
		Short: "Simulate rapid destination edits and print the settled quote",
		Long: `Simulate rapid destination edits and print the settled quote.
Only the last destination can win.

Example:
  quotectl race 50 500 5000 --mock`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := opts.logger()
			settled := make(chan quoteracer.State, 1)
			r := quoteracer.New(factory(cfg, opts.Mock, log),
				quoteracer.WithDebounce(opts.Debounce),
				quoteracer.WithTimeout(opts.Timeout),
				quoteracer.WithDefaultOrigin(cfg.Carrier.DefaultOrigin),
				quoteracer.WithLogger(log),
				quoteracer.WithOnChange(func(s quoteracer.State) {
					if s.Kind == quoteracer.Ready || s.Kind == quoteracer.Failed {
						select {
						case settled <- s:
						default:
						}
					}
				}),
			)
			defer r.Stop()

			for _, dest := range args {
				r.Update(quoteracer.Input{
					Method:       purchase.ShippingShip,
					Origin:       opts.Origin,
					Destination:  dest,
					WeightGrams:  opts.Weight,
					DeliveryKind: shipping.DeliveryKindFromCode(opts.Delivered),
				})
			}

			select {
			case s := <-settled:
				if s.Kind == quoteracer.Failed {
					return fmt.Errorf("%s: %w", s.Message, s.Err)
				}
				return printQuote(cmd, opts.Format, s.Quote)
			case <-time.After(opts.Debounce + opts.Timeout):
				return fmt.Errorf("no quote settled within %s", opts.Debounce+opts.Timeout)
			}
		},
	}

	cmd.Flags().StringVar(&opts.Origin, "origin", "", "origin postal code (default: configured store origin)")
	cmd.Flags().IntVar(&opts.Weight, "weight", 0, "parcel weight in grams")
	cmd.Flags().StringVar(&opts.Delivered, "delivered", "D", "D for home delivery, S for agency")
	cmd.Flags().BoolVar(&opts.Mock, "mock", false, "use the fixed mock quote")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 20*time.Second, "per-request timeout")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", quoteracer.DefaultDebounce, "quiet period before a request is sent")

	return cmd
}

func printQuote(cmd *cobra.Command, format string, q *shipping.Quote) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}
	fmt.Fprintf(out, "provider:  %s\n", q.Provider)
	fmt.Fprintf(out, "service:   %s (%s)\n", q.ServiceType, q.DeliveryType)
	fmt.Fprintf(out, "total:     %s %s\n", q.Total.StringFixed(2), q.Currency)
	for _, l := range q.Breakdown {
		fmt.Fprintf(out, "  %-10s %s\n", l.Label, l.Amount.StringFixed(2))
	}
	fmt.Fprintf(out, "eta:       %d-%d days\n", q.ETADays.Min, q.ETADays.Max)
	return nil
}
