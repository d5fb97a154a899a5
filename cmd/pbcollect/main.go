// cmd/pbcollect/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/csilogger/pbcollect/internal/collector"
	"github.com/csilogger/pbcollect/internal/config"
	"github.com/csilogger/pbcollect/internal/lockfile"
	"github.com/csilogger/pbcollect/internal/logging"
)

// version is printed by -v. The TOA5 header's app-ver field comes
// from internal/writer's own appVersion constant, not from this.
const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("c", "", "path to the collection XML config file (required)")
		portOverride = flag.String("p", "", "override connection, \"/dev/tty*[,baud]\"")
		workingPath  = flag.String("w", "", "override the configured working_path")
		debug        = flag.Bool("d", false, "enable debug-level logging")
		redirect     = flag.String("r", "", "redirect log output to this file instead of stderr")
		showVersion  = flag.Bool("v", false, "print version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("pbcollect", version)
		return 0
	}
	if *configPath == "" {
		usage()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *portOverride != "" {
		config.ApplyOverride(cfg, *portOverride)
	}
	if *workingPath != "" {
		cfg.Data.WorkingPath = *workingPath
	}
	if *debug {
		cfg.Debug = true
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	config.Normalize(cfg)

	logDest := os.Stderr
	if *redirect != "" {
		f, err := os.OpenFile(*redirect, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "pbcollect: opening log redirect:", err)
			return 1
		}
		defer f.Close()
		logDest = f
	}
	log := logging.New("pbcollect", logDest, cfg.Debug)

	lockPath := lockfile.Path("pbcollect", cfg.Connection.PortName)
	lock, err := lockfile.Acquire(lockPath, "pbcollect")
	if err != nil {
		log.Error().Err(err).Msg("pbcollect: failed to acquire lock")
		return 1
	}
	defer lock.Unlock()

	if err := collector.Run(context.Background(), cfg, log); err != nil {
		log.Error().Err(err).Msg("pbcollect: session exited with error")
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pbcollect -c <config.xml> [-p <connection>] [-w <working_path>] [-d] [-r <redirect-log>] [-v]")
	flag.PrintDefaults()
}
