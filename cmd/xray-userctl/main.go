package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"xray-backend/internal/app"
	"xray-backend/internal/config"
	"xray-backend/internal/models"
	"xray-backend/internal/permissions"
	"xray-backend/pkg/backendclient"
)

// exitError carries the process exit code
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(); err != nil {
		code := 1
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			code = coder.ExitCode()
		}
		if err.Error() != "" {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(code)
	}
}

func run() error {
	var (
		configFile string
		socketPath string
		direct     bool
		timeout    time.Duration
		window     windowFlags
	)

	flagSet := pflag.NewFlagSet("xray-userctl", pflag.ContinueOnError)
	flagSet.StringVarP(&configFile, "config", "c", "", "path to a YAML/JSON configuration file")
	flagSet.StringVar(&socketPath, "socket", "", "backend socket path (default from configuration)")
	flagSet.BoolVar(&direct, "direct", false, "run the action in-process instead of through the backend socket (root only)")
	flagSet.DurationVar(&timeout, "timeout", 0, "socket request timeout")
	flagSet.StringVar(&window.limit, "limit", "", "list: page size (1..25)")
	flagSet.StringVar(&window.offset, "offset", "", "list: items to skip")
	flagSet.StringVar(&window.page, "page", "", "logs: page, 0 is newest")
	flagSet.StringVar(&window.pageSize, "page-size", "", "logs: lines per page (5..80)")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return &exitError{code: 2, err: err}
	}

	req, err := buildRequest(flagSet.Args(), window)
	if err != nil {
		printHelp(flagSet)
		return &exitError{code: 2, err: err}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if socketPath != "" {
		cfg.Socket.Path = socketPath
	}

	logger := app.SetupLogger(cfg.LogLevel, cfg.LogFile)
	if !direct && cfg.LogLevel != logrus.DebugLevel.String() {
		logger.SetLevel(logrus.WarnLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	permController := permissions.NewController(cfg.Socket.Group, cfg.Socket.SocketMode(), logger)

	var resp models.Response
	switch permController.GetAccessType(direct) {
	case permissions.Direct:
		resp = app.NewDispatcher(cfg, logger).Handle(ctx, req)
	case permissions.Socket:
		client := backendclient.NewClient(cfg.Socket.Path, timeout, logger)
		resp, err = client.Call(ctx, req)
		if err != nil {
			return err
		}
	default:
		return &exitError{code: 2, err: permissions.ErrNotRoot}
	}

	if err := printResponse(resp); err != nil {
		return err
	}
	if !resp.IsOK() {
		// the response already carries the error
		return &exitError{code: 1}
	}
	return nil
}

// printResponse writes resp as indented JSON to stdout
func printResponse(resp models.Response) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func printHelp(flagSet *pflag.FlagSet) {
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, "Usage: xray-userctl [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, usageArgs(subcommands[name]))
	}
	fmt.Fprintln(os.Stderr, "\nFlags:")
	fmt.Fprint(os.Stderr, flagSet.FlagUsages())
}
