// Command edgerouter runs the edge-to-mesh request router, or drives it
// from the command line for local debugging (spec.md §6 — CLI surface).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/blackroad-os/edge-router/internal/config"
	"github.com/blackroad-os/edge-router/internal/gateway"
	"github.com/blackroad-os/edge-router/pkg/models"
)

// Exit codes per spec.md §6.
const (
	exitSuccess = 0
	exitUsage   = 1
	exitRuntime = 2
	exitConfig  = 3
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "route":
		err = runRoute(os.Args[2:])
	case "dispatch":
		err = runDispatch(os.Args[2:])
	case "signals":
		err = runSignals(os.Args[2:])
	case "health":
		err = runHealth(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
		os.Exit(exitSuccess)
	default:
		printUsage()
		os.Exit(exitUsage)
	}

	if err != nil {
		log.Error().Err(err).Msg("edgerouter: command failed")
		os.Exit(exitRuntime)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: edgerouter <command> [options]

Commands:
  serve                              Run the edge gateway HTTP server
  route "<text>"                     Classify text and print (org, service)
  dispatch --org=<C> --service=<S>   Dispatch a payload to a resolved service
  signals tail                       Stream signals from the bus
  health                             Check the configured dependencies

Run 'edgerouter <command> --help' for command-specific flags.
`)
}

// runServe starts the HTTP server and blocks until SIGINT/SIGTERM.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", 0, "override the configured listen port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Load()
	if *port > 0 {
		cfg.Port = *port
	}

	ctx := context.Background()
	srv, err := gateway.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("edgerouter: failed to initialize server")
		os.Exit(exitConfig)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Handler,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		IdleTimeout:  cfg.Gateway.IdleTimeout,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("edgerouter: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.Port).Msg("edgerouter: listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// runRoute classifies a single free-text query without starting a server.
func runRoute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: edgerouter route \"<text>\"")
	}
	cfg := config.Load()

	ctx := context.Background()
	srv, err := gateway.New(ctx, cfg)
	if err != nil {
		os.Exit(exitConfig)
	}

	req := models.Request{
		ID:   "cli",
		Kind: models.RequestCLI,
		Body: args[0],
		Context: models.RequestContext{
			Actor:     "cli",
			Source:    "cli",
			Timestamp: time.Now(),
		},
	}
	c := srv.Classifier.Classify(req)

	out, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println(string(out))
	return nil
}

// runDispatch dispatches a payload to an explicit (org, service) pair
// through the resolved endpoint; the classifier is not run.
func runDispatch(args []string) error {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	org := fs.String("org", "", "target organization code (required)")
	service := fs.String("service", "", "target service name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *org == "" || *service == "" || fs.NArg() == 0 {
		return fmt.Errorf("usage: edgerouter dispatch --org=<C> --service=<S> <payload>")
	}

	cfg := config.Load()
	ctx := context.Background()
	srv, err := gateway.New(ctx, cfg)
	if err != nil {
		os.Exit(exitConfig)
	}

	classification := models.Classification{
		Org:     *org,
		Service: *service,
		Basis:   models.BasisRule,
	}
	result := srv.Dispatcher.Dispatch(ctx, "cli", classification, []byte(fs.Arg(0)))

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if result.Outcome != models.DispatchSuccess {
		return fmt.Errorf("dispatch failed: %s", result.Reason)
	}
	return nil
}

// runSignals tails the bus's "signals" room, printing one JSON line per
// signal. Dispatch signals, published to the "dispatch" room, are not shown.
func runSignals(args []string) error {
	if len(args) == 0 || args[0] != "tail" {
		return fmt.Errorf("usage: edgerouter signals tail")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := gateway.New(ctx, cfg)
	if err != nil {
		os.Exit(exitConfig)
	}

	ch, leave := srv.Bus.JoinRoom("signals")
	defer leave()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			return nil
		case s := <-ch:
			out, _ := json.Marshal(s)
			fmt.Println(string(out))
		}
	}
}

// runHealth runs the configured health checks once and prints the result.
func runHealth(args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	srv, err := gateway.New(ctx, cfg)
	if err != nil {
		os.Exit(exitConfig)
	}

	if err := srv.Audit.Ping(ctx); err != nil {
		fmt.Println(`{"status":"degraded"}`)
		os.Exit(exitRuntime)
	}
	fmt.Println(`{"status":"ok"}`)
	return nil
}
