package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pevans/edition/config"
	"github.com/pevans/edition/history"
)

func handleHistory(cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	outcome := fs.String("outcome", "", "Only show runs with this outcome (complete, partial, empty, failed)")
	since := fs.String("since", "", "Only show runs newer than this (e.g. 24h, 7d, 2w)")
	format := fs.String("format", "table", "Output format (table or json)")
	fs.Parse(args)

	if *format != "table" && *format != "json" {
		return errors.New("--format must be 'table' or 'json'")
	}

	filter := history.Filter{Limit: *limit}
	if *outcome != "" {
		switch *outcome {
		case history.OutcomeComplete, history.OutcomePartial, history.OutcomeEmpty, history.OutcomeFailed:
		default:
			return errors.New("--outcome must be complete, partial, empty, or failed")
		}
		filter.Outcome = outcome
	}
	if *since != "" {
		d, err := parseDuration(*since)
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-d)
		filter.Since = &cutoff
	}

	store, err := openHistory(cfg.HistoryDSN)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	runs, err := store.List(filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	log.WithField("runs", len(runs)).Debug("Listed history")

	if *format == "json" {
		return printRunsJSON(runs)
	}
	printRunsTable(os.Stdout, runs)
	return nil
}
