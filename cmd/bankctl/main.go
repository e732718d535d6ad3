// Command bankctl is a command-line client for the bank API. Reads fall back to
// the local cache when the API is unreachable and writes made offline are
// queued until `bankctl sync`.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/bankline/internal/app"
	"github.com/R3E-Network/bankline/internal/cli"
	"github.com/R3E-Network/bankline/internal/config"
	apperrors "github.com/R3E-Network/bankline/internal/errors"
	"github.com/R3E-Network/bankline/pkg/logger"
)

const usage = `Usage: bankctl [flags] <command> [args]

Commands:
  accounts list|get ID|rename ID NAME|delete ID
  transactions [-limit N] [-offset N] ACCOUNT
  transfer -from ACCOUNT -to NUMBER -amount AMOUNT [-description TEXT]
  history
  payees list|add|delete ID
  pending
  sync
  upload ACCOUNT FILE
  login TOKEN
  logout
  watch
  completion bash|zsh|fish [-install]

Flags:
`

// globals are the flags accepted before the command.
type globals struct {
	configPath string
	apiURL     string
	token      string
	storage    string
	logLevel   string
	logFormat  string
	query      string
	offline    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := cli.NewPrinter()
	if err := run(ctx, os.Args[1:], p); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		p.Error("%s", describe(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, p *cli.Printer, opts ...app.Option) error {
	fs := flag.NewFlagSet("bankctl", flag.ContinueOnError)
	fs.SetOutput(p.Err)
	var g globals
	fs.StringVar(&g.configPath, "config", os.Getenv(config.FileEnv), "YAML configuration file")
	fs.StringVar(&g.apiURL, "api-url", "", "Bank API base URL (overrides BANKLINE_API_URL)")
	fs.StringVar(&g.token, "token", "", "Bearer token (overrides BANKLINE_TOKEN)")
	fs.StringVar(&g.storage, "storage", "", "Local cache backend: memory, redis or postgres")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")
	fs.StringVar(&g.query, "query", "", "gjson path applied to the JSON output")
	fs.BoolVar(&g.offline, "offline", false, "Serve from the local cache and queue writes")
	fs.Usage = func() {
		fmt.Fprint(p.Err, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	// completion needs no configuration.
	if rest[0] == "completion" {
		return completion(p, rest[1:])
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	log := logger.New("bankctl", logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: p.Err})

	a, err := app.New(ctx, cfg, append([]app.Option{app.WithLogger(log)}, opts...)...)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Session.Load(ctx); err != nil {
		return err
	}
	if g.offline {
		a.Monitor.Set(false)
	} else if !a.Monitor.CheckNow(ctx) {
		p.Warning("bank API unreachable, serving cached data")
	}

	cmd := &commands{app: a, out: p, query: g.query}
	return cmd.dispatch(ctx, rest)
}

func loadConfig(g globals) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.apiURL != "" {
		cfg.API.BaseURL = g.apiURL
	}
	if g.token != "" {
		cfg.API.Token = g.token
	}
	if g.storage != "" {
		cfg.Storage.Backend = g.storage
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func completion(p *cli.Printer, args []string) error {
	fs := flag.NewFlagSet("completion", flag.ContinueOnError)
	fs.SetOutput(p.Err)
	install := fs.Bool("install", false, "Write the script to the shell's completion directory")
	if len(args) == 0 {
		return fmt.Errorf("completion: shell is required (bash, zsh or fish)")
	}
	shell := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if !*install {
		return cli.GenerateCompletion(p.Out, shell)
	}
	path, err := cli.InstallCompletion("", shell)
	if err != nil {
		return err
	}
	p.Success("installed %s completion to %s", shell, path)
	return nil
}

// describe renders err for the terminal, preferring the user-facing message
// of classified errors.
func describe(err error) string {
	if e := apperrors.Get(err); e != nil {
		return e.UserMessage()
	}
	return err.Error()
}
