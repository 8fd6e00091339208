package main

import (
	"fmt"
	"os"

	"github.com/pevans/edition/config"
	"github.com/pevans/edition/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	if subcommand == "help" || subcommand == "--help" || subcommand == "-h" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.Source != "" {
		log.WithField("path", cfg.Source).Debug("Loaded config file")
	}

	switch subcommand {
	case "fetch":
		err = handleFetch(cfg, log, os.Args[2:])
	case "resolve":
		err = handleResolve(cfg, os.Args[2:])
	case "history":
		err = handleHistory(cfg, log, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("edition - Download a People's Daily edition as an EPUB")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  edition <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  fetch      Build the EPUB for a date")
	fmt.Println("  resolve    Show which edition a date expression means")
	fmt.Println("  history    List previous builds")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Date expressions:")
	fmt.Println("  (empty)    today")
	fmt.Println("  -N         N days ago")
	fmt.Println("  Y M D      explicit date, two-digit years mean 20YY")
	fmt.Println("  M D        month and day of this year")
	fmt.Println("  W          most recent weekday W (1=Monday .. 7=Sunday)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  EDITION_CONFIG        Path to config file (default: ~/.edition/config.yaml)")
	fmt.Println("  EDITION_ARCHIVE_URL   Archive root URL")
	fmt.Println("  EDITION_OUTPUT_DIR    Directory for EPUB files (default: .)")
	fmt.Println("  EDITION_HISTORY_DSN   Path to history database (default: ~/.edition/history.db)")
	fmt.Println("  EDITION_LOG_LEVEL     Log level (default: info)")
	fmt.Println("  EDITION_LOG_FORMAT    Log format, text or json (default: text)")
	fmt.Println("  EDITION_CONCURRENCY   Article pages fetched at once (default: 4)")
	fmt.Println("  EDITION_TIMEOUT       Per-request timeout (default: 10s)")
}
