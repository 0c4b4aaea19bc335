// Package cli implements the halfpace command line: one-off predictions run
// in-process or against a running server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/halfpace/internal/app"
	"github.com/okian/halfpace/internal/bootstrap"
	"github.com/okian/halfpace/internal/config"
	"github.com/okian/halfpace/pkg/logger"
)

// Default flag values.
const (
	defaultURL     = "http://localhost:9080"
	defaultTimeout = 90 * time.Second
)

// Options injects collaborators; zero values select the production ones.
type Options struct {
	Out     io.Writer
	Err     io.Writer
	Loader  bootstrap.ModelLoader
	Version string
}

type flags struct {
	apiKey  string
	asJSON  bool
	url     string
	timeout time.Duration
	model   string
}

// NewRootCommand builds the halfpace command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Loader == nil {
		opts.Loader = bootstrap.LoadLGBM
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	var f flags

	root := &cobra.Command{
		Use:   "halfpace",
		Short: "Predict a half-marathon time from a self-description",
		Long: `halfpace turns a free-text self-description (sex, age, best 5 km time)
into a predicted half-marathon finish time.

Available subcommands:
  predict - run the pipeline in this process with the server's configuration
  remote  - ask a running halfpace server`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger.SetOutput(opts.Err)
			return nil
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)
	root.PersistentFlags().StringVar(&f.apiKey, "api-key", "", "Language model API key (overrides configuration)")
	root.PersistentFlags().BoolVar(&f.asJSON, "json", false, "Print the full result as JSON")
	root.PersistentFlags().DurationVar(&f.timeout, "timeout", defaultTimeout, "Prediction timeout")

	predictCmd := &cobra.Command{
		Use:   "predict <description>",
		Short: "Predict in-process using the configured model and provider",
		Long: `Predict in-process. Configuration is read exactly like the server does:
.env, then HALFPACE_CONFIG (YAML), then HALFPACE_* variables.`,
		Example: `  halfpace predict "Mam 30 lat, jestem mężczyzną, 5km biegnę w 25 minut"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), opts, f, strings.Join(args, " "))
		},
	}
	predictCmd.Flags().StringVar(&f.model, "model", "", "Model file (overrides model_path)")

	remoteCmd := &cobra.Command{
		Use:     "remote <description>",
		Short:   "Predict by calling POST /predict on a running server",
		Example: `  halfpace remote --url http://localhost:9080 "Kobieta, 41 lat, 5 km w 27 minut"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(cmd.Context(), opts, f, strings.Join(args, " "))
		},
	}
	remoteCmd.Flags().StringVar(&f.url, "url", defaultURL, "Base URL of the halfpace server")

	root.AddCommand(predictCmd, remoteCmd)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, opts Options, args []string) int {
	cmd := NewRootCommand(opts)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "❌", err)
		return 1
	}
	return 0
}

func runPredict(ctx context.Context, opts Options, f flags, text string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	if f.model != "" {
		cfg.ModelPath = f.model
	}
	// A one-shot run gains nothing from deferring the load.
	cfg.ModelLazyLoad = false

	svc, err := bootstrap.NewService(ctx, cfg, opts.Loader)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()

	p, err := svc.Predict(ctx, service.Request{Text: text, APIKey: f.apiKey})
	if err != nil {
		return describe(err)
	}
	return render(opts.Out, p, f.asJSON)
}

func runRemote(ctx context.Context, opts Options, f flags, text string) error {
	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()

	client := newHTTPClient(f.url, f.timeout)
	p, err := client.Predict(ctx, text, f.apiKey)
	if err != nil {
		return err
	}
	return render(opts.Out, p, f.asJSON)
}

// describe turns pipeline errors into the messages the form page shows.
func describe(err error) error {
	var missing *service.MissingFieldsError
	switch {
	case errors.Is(err, service.ErrEmptyDescription):
		return errors.New("Proszę wpisać opis!")
	case errors.Is(err, service.ErrMissingAPIKey):
		return fmt.Errorf("brak klucza API: użyj --api-key albo ustaw OPENAI_API_KEY / GEMINI_API_KEY (%w)", err)
	case errors.As(err, &missing):
		return fmt.Errorf("Brakuje danych: %s. Spróbuj ponownie i podaj wszystkie informacje! (%w)",
			strings.Join(missing.Labels(), ", "), err)
	default:
		return fmt.Errorf("Wystąpił błąd: %w", err)
	}
}

func render(out io.Writer, p service.Prediction, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	_, err := fmt.Fprintf(out, "Przewidywany czas na półmaraton (21 km): %s\n", p.Formatted)
	if err != nil {
		return err
	}
	if p.Record != nil {
		_, err = fmt.Fprintf(out, "Płeć: %s  Wiek: %d  Czas 5km: %d min\n", p.Record.Sex, p.Record.Age, p.Time5kmMinutes)
	}
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
