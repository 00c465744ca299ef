// Command loomd runs a loom transaction node.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sakridge/loom"
	"github.com/sakridge/loom/internal/logging"
)

func main() {
	var (
		listenPort   = flag.String("l", "", "Run as a loom node with a listen port (required)")
		accountsFile = flag.String("t", "", "testnet accounts JSON bootstrap file")
		verbose      = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if *listenPort == "" {
		flag.Usage()
		os.Exit(1)
	}
	port, err := strconv.ParseUint(*listenPort, 10, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loomd: invalid port %q: %v\n", *listenPort, err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params := loom.DefaultParams(uint16(port))
	params.TestAccountsFile = *accountsFile

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	options := &loom.Options{Context: ctx, Logger: logger}

	daemon, err := loom.NewDaemon(ctx, params, options)
	if err != nil {
		logger.Error("failed to start daemon", "error", err)
		os.Exit(1)
	}

	logger.Info("loom node listening", "addr", daemon.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	joinErrCh := make(chan error, 1)
	go func() { joinErrCh <- daemon.Join() }()

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
		cancel()
		<-joinErrCh
	case err := <-joinErrCh:
		if err != nil {
			logger.Error("daemon stopped with error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("loom node stopped")
}
