package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pevans/edition/build"
	"github.com/pevans/edition/config"
	"github.com/pevans/edition/crawl"
	"github.com/pevans/edition/datespec"
	"github.com/pevans/edition/epub"
	"github.com/pevans/edition/logging"
)

func handleFetch(cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	yes := fs.Bool("y", false, "Skip the confirmation prompts")
	outDir := fs.String("out", cfg.OutputDir, "Directory for the EPUB file")
	noFallback := fs.Bool("no-fallback", false, "Never fall back to yesterday's edition")
	format := fs.String("format", "table", "Summary format (table or json)")
	flagArgs, dateArgs := splitDateArgs(args)
	fs.Parse(flagArgs)

	if *format != "table" && *format != "json" {
		return errors.New("--format must be 'table' or 'json'")
	}

	spec, err := datespec.Resolve(strings.Join(append(dateArgs, fs.Args()...), " "), time.Now())
	if err != nil {
		return err
	}
	if err := datespec.CheckAvailable(spec.Date, time.Now(), cfg.MinimumDate); err != nil {
		return err
	}

	if spec.NeedsConfirmation && !*yes {
		if !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Fetch the edition of %s (%s)?", datespec.Slug(spec.Date), datespec.FormatChinese(spec.Date))) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var recorder build.Recorder
	store, err := openHistory(cfg.HistoryDSN)
	if err != nil {
		log.Warnf("History disabled: %v", err)
	} else {
		defer store.Close()
		recorder = store
	}

	fetcher := crawl.NewHTTPFetcher(crawl.FetcherOptions{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Retry:     cfg.Retry,
		Logger:    logging.Component(log, "fetch"),
	})
	crawler := crawl.New(fetcher, crawl.Options{
		Concurrency: cfg.Concurrency,
		Logger:      logging.Component(log, "crawl"),
	})
	service := build.NewService(build.Deps{
		Crawler:     crawler,
		History:     recorder,
		Scheme:      cfg.Scheme,
		Publication: cfg.Publication,
		MinimumDate: cfg.MinimumDate,
		OutputDir:   *outDir,
		Epub:        epub.Options{Publisher: cfg.Publication},
		Logger:      log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := service.Build(ctx, fetchRequest(spec, *noFallback, *yes, os.Stdin, os.Stdout))
	if report != nil {
		if *format == "json" {
			if jsonErr := printReportJSON(report); jsonErr != nil {
				return jsonErr
			}
		} else {
			printReport(os.Stdout, report)
		}
	}
	return explainBuildError(err, spec.Date)
}

// fetchRequest builds the service request for a resolved date. Only an empty
// date expression may fall back to yesterday. The fallback is confirmed on in
// unless skipConfirm is set.
func fetchRequest(spec datespec.Spec, noFallback, skipConfirm bool, in io.Reader, out io.Writer) build.Request {
	req := build.Request{
		Date:          spec.Date,
		AllowFallback: !noFallback && !spec.NeedsConfirmation,
	}
	if req.AllowFallback && !skipConfirm {
		req.ConfirmFallback = func(date time.Time) bool {
			return confirm(in, out, fmt.Sprintf("Today's edition may not be out yet. Fetch %s (%s) instead?", datespec.Slug(date), datespec.FormatChinese(date)))
		}
	}
	return req
}

// explainBuildError turns the errors a user can act on into short messages.
func explainBuildError(err error, date time.Time) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, crawl.ErrEditionUnavailable):
		return fmt.Errorf("%s: edition not yet published or invalid date", datespec.Slug(date))
	case errors.Is(err, build.ErrNoArticles):
		return fmt.Errorf("%s: no articles found", datespec.Slug(date))
	}
	return err
}

// confirm asks question on out and waits for a line. Anything but an
// explicit no counts as yes.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s Press Enter to confirm, n to abort: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer != "n" && answer != "no"
}

func handleResolve(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	flagArgs, dateArgs := splitDateArgs(args)
	fs.Parse(flagArgs)

	now := time.Now()
	spec, err := datespec.Resolve(strings.Join(append(dateArgs, fs.Args()...), " "), now)
	if err != nil {
		return err
	}

	l := cfg.Scheme.Select(spec.Date)
	fmt.Printf("Date:    %s\n", datespec.Slug(spec.Date))
	fmt.Printf("         %s\n", datespec.FormatChinese(spec.Date))
	fmt.Printf("Layout:  %s\n", l.Generation)
	fmt.Printf("Entry:   %s\n", l.EntryURL())
	if err := datespec.CheckAvailable(spec.Date, now, cfg.MinimumDate); err != nil {
		fmt.Printf("Status:  unavailable (%v)\n", err)
	}
	return nil
}
