// Package build runs one edition end to end: availability check, layout
// selection, crawl, assembly, EPUB output and the history record.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pevans/edition/crawl"
	"github.com/pevans/edition/datespec"
	"github.com/pevans/edition/edition"
	"github.com/pevans/edition/epub"
	"github.com/pevans/edition/history"
	"github.com/pevans/edition/layout"
)

// ErrNoArticles means the crawl produced nothing to package. It wraps the
// crawl error when there was one.
var ErrNoArticles = errors.New("no articles found")

// FallbackHour is the local hour before which an empty edition for today is
// replaced by yesterday's.
const FallbackHour = 6

// Crawler is the part of crawl.Crawler the service uses.
type Crawler interface {
	Crawl(ctx context.Context, l layout.Layout) (*crawl.Result, error)
}

// Recorder stores finished runs. history.Store satisfies it.
type Recorder interface {
	Record(run *history.Run) error
}

// Deps wires a Service. History and Logger may be nil.
type Deps struct {
	Crawler     Crawler
	History     Recorder
	Scheme      layout.Scheme
	Publication string
	MinimumDate time.Time
	OutputDir   string
	Epub        epub.Options
	Logger      logrus.FieldLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service builds editions.
type Service struct {
	deps Deps
	log  logrus.FieldLogger
}

// NewService creates a service from deps.
func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MinimumDate.IsZero() {
		deps.MinimumDate = datespec.DefaultMinimumDate
	}
	if deps.OutputDir == "" {
		deps.OutputDir = "."
	}

	log := deps.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	return &Service{deps: deps, log: log.WithField("component", "build")}
}

// Request asks for one edition.
type Request struct {
	Date time.Time
	// AllowFallback permits building yesterday's edition when today's is
	// empty early in the morning.
	AllowFallback bool
	// ConfirmFallback is asked before the fallback edition is built. Nil
	// means yes.
	ConfirmFallback func(date time.Time) bool
}

// Report describes a finished build.
type Report struct {
	RunID         uuid.UUID
	RequestedDate time.Time
	// Date is the edition actually built; it differs from RequestedDate
	// after a fallback.
	Date       time.Time
	FellBack   bool
	Layout     layout.Layout
	Outcome    string
	Stats      crawl.Stats
	Sections   int
	Articles   int
	OutputPath string
}

// Build produces the EPUB for req.Date. Dates outside the archive are
// rejected before anything is fetched. A report is returned alongside
// ErrNoArticles and other crawl or write failures so callers can show what
// happened.
func (s *Service) Build(ctx context.Context, req Request) (*Report, error) {
	now := s.deps.Now()
	if err := datespec.CheckAvailable(req.Date, now, s.deps.MinimumDate); err != nil {
		return nil, err
	}

	report, err := s.buildDate(ctx, req.Date, false)
	if err == nil || !errors.Is(err, ErrNoArticles) || !s.shouldFallBack(req, now) {
		return report, err
	}

	yesterday := req.Date.AddDate(0, 0, -1)
	if availErr := datespec.CheckAvailable(yesterday, now, s.deps.MinimumDate); availErr != nil {
		return report, err
	}
	if req.ConfirmFallback != nil && !req.ConfirmFallback(yesterday) {
		s.log.Info("Fallback declined")
		return report, err
	}

	s.log.WithFields(logrus.Fields{
		"requested": datespec.Slug(req.Date),
		"edition":   datespec.Slug(yesterday),
	}).Info("Today's edition is not out yet, building yesterday's")

	fallback, fallbackErr := s.buildDate(ctx, yesterday, true)
	if fallback != nil {
		fallback.RequestedDate = req.Date
	}
	return fallback, fallbackErr
}

func (s *Service) shouldFallBack(req Request, now time.Time) bool {
	if !req.AllowFallback || now.Hour() >= FallbackHour {
		return false
	}
	y1, m1, d1 := req.Date.Date()
	y2, m2, d2 := now.In(req.Date.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (s *Service) buildDate(ctx context.Context, date time.Time, fellBack bool) (*Report, error) {
	l := s.deps.Scheme.Select(date)
	report := &Report{
		RequestedDate: date,
		Date:          date,
		FellBack:      fellBack,
		Layout:        l,
	}
	log := s.log.WithFields(logrus.Fields{"edition": datespec.Slug(date), "layout": l.Generation.String()})

	result, crawlErr := s.deps.Crawler.Crawl(ctx, l)
	if result == nil {
		result = &crawl.Result{}
	}
	report.Stats = result.Stats
	report.Articles = len(result.Articles)

	switch {
	case len(result.Articles) == 0:
		err := ErrNoArticles
		if crawlErr != nil {
			err = fmt.Errorf("%w: %w", ErrNoArticles, crawlErr)
		}
		report.Outcome = history.OutcomeEmpty
		if crawlErr != nil && !errors.Is(crawlErr, crawl.ErrEditionUnavailable) {
			report.Outcome = history.OutcomeFailed
		}
		log.Warnf("Edition has no articles: %v", err)
		s.record(report, err)
		return report, err

	case crawlErr != nil:
		report.Outcome = history.OutcomeFailed
		log.Errorf("Crawl aborted: %v", crawlErr)
		s.record(report, crawlErr)
		return report, crawlErr
	}

	doc := edition.Assemble(result.Articles, date, s.deps.Publication)
	report.Sections = len(doc.Sections)

	path, err := epub.WriteFile(s.deps.OutputDir, doc, s.deps.Epub)
	if err != nil {
		err = fmt.Errorf("failed to write edition: %w", err)
		report.Outcome = history.OutcomeFailed
		log.Error(err)
		s.record(report, err)
		return report, err
	}
	report.OutputPath = path
	report.Outcome = string(result.Outcome())

	log.WithFields(logrus.Fields{
		"path":     path,
		"sections": report.Sections,
		"articles": report.Articles,
		"outcome":  report.Outcome,
	}).Info("Edition written")

	s.record(report, nil)
	return report, nil
}

// record stores the run. A history failure is logged and does not fail the
// build.
func (s *Service) record(report *Report, buildErr error) {
	if s.deps.History == nil {
		return
	}

	run := &history.Run{
		EditionDate: report.Date,
		Layout:      report.Layout.Generation.String(),
		Outcome:     report.Outcome,
		FellBack:    report.FellBack,
		Sections:    report.Stats.Sections,
		Articles:    report.Articles,
		Skipped:     report.Stats.Skipped(),
		Duplicates:  report.Stats.Duplicates,
		OutputPath:  report.OutputPath,
		Duration:    report.Stats.Duration,
	}
	if buildErr != nil {
		run.Error = buildErr.Error()
	}

	if err := s.deps.History.Record(run); err != nil {
		s.log.Warnf("Failed to record run: %v", err)
		return
	}
	report.RunID = run.RunID
}
