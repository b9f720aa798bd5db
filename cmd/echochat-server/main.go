package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aeolun/echochat/pkg/admin"
	"github.com/aeolun/echochat/pkg/chat"
	"github.com/aeolun/echochat/pkg/config"
	"github.com/aeolun/echochat/pkg/console"
	"github.com/aeolun/echochat/pkg/journal"
	"github.com/aeolun/echochat/pkg/metrics"
	"github.com/aeolun/echochat/pkg/server"
)

// operatorConsole is implemented by console.LineConsole and console.TUI
type operatorConsole interface {
	chat.Console
	io.Writer
	Run(handle console.Handler) error
}

func main() {
	configPath := flag.String("config", "~/.echochat/config.toml", "Path to config file")
	useTUI := flag.Bool("tui", false, "Use the full-screen console")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	os.Exit(run(*configPath, *useTUI, *debug, flag.Arg(0)))
}

func run(configPath string, useTUI, debug bool, portArg string) int {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	serverConfig := cfg.ToServerConfig()
	serverConfig.Port = parsePort(portArg, serverConfig.Port)

	var con operatorConsole
	var logOut io.Writer = os.Stderr
	if useTUI || cfg.Console.TUI {
		tui := console.NewTUI()
		con = tui
		logOut = tui
	} else {
		con = console.NewLineConsole(os.Stdin, os.Stdout)
	}
	log.SetOutput(logOut)
	server.SetErrorOutput(logOut)
	chat.SetErrorOutput(logOut)
	if debug {
		server.EnableDebugLogging(logOut)
		chat.EnableDebugLogging(logOut)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	srv := server.NewServer(serverConfig, m)
	opts := []chat.Option{chat.WithMetrics(m)}

	var jr *journal.Journal
	if cfg.Journal.Driver != "" {
		jr, err = openJournal(&cfg)
		if err != nil {
			log.Printf("Journal disabled: %v", err)
		} else {
			defer jr.Close()
			log.Printf("Journal run %s (%s)", jr.RunID(), cfg.Journal.Driver)
			opts = append(opts, chat.WithJournal(jr))
		}
	}

	app := chat.NewApp(srv, con, opts...)
	srv.Handle(app)
	interpreter := chat.NewInterpreter(app)

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR - Could not listen for clients! (%v)\n", err)
		return 1
	}

	if cfg.Admin.HTTPPort != 0 {
		var reader admin.JournalReader
		if jr != nil {
			reader = jr
		}
		adminServer, err := admin.Start(cfg.Admin.HTTPPort, admin.NewRouter(app, reg, reader))
		if err != nil {
			log.Printf("Admin API disabled: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := adminServer.Shutdown(ctx); err != nil {
					log.Printf("Admin API shutdown: %v", err)
				}
			}()
		}
	}

	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- con.Run(interpreter.Execute)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-consoleDone:
		switch {
		case errors.Is(err, chat.ErrQuit):
		case errors.Is(err, console.ErrClosed):
			log.Printf("Console closed, shutting down")
		default:
			log.Printf("Console error: %v", err)
			exitCode = 1
		}
	case sig := <-sigChan:
		log.Printf("Received %s, shutting down", sig)
		if q, ok := con.(interface{ Quit() }); ok {
			q.Quit()
		}
	}

	if err := app.Close(); err != nil {
		log.Printf("Failed to close server: %v", err)
	}
	return exitCode
}

// parsePort returns the port given on the command line, or fallback when the
// argument is missing or not a valid port
func parsePort(arg string, fallback int) int {
	if arg == "" {
		return fallback
	}
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		log.Printf("Invalid port %q, using %d", arg, fallback)
		return fallback
	}
	return port
}

func openJournal(cfg *config.TOMLConfig) (*journal.Journal, error) {
	dsn, err := cfg.JournalDSN()
	if err != nil {
		return nil, err
	}
	return journal.Open(cfg.Journal.Driver, dsn)
}
