// Package orchestrator drives a full harvest run: enumerate targets,
// navigate each one through the retry machine, expand and extract its
// FAQ content, and persist artifacts. One browser session serves the
// whole run; per-target failures are recorded and never abort it.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"faqharvest/internal/artifacts"
	"faqharvest/internal/config"
	"faqharvest/internal/discovery"
	"faqharvest/internal/extract"
	"faqharvest/internal/faults"
	"faqharvest/internal/imagescan"
	"faqharvest/internal/locator"
	"faqharvest/internal/navigator"
	"faqharvest/internal/ocr"
	"faqharvest/internal/routes"
	"faqharvest/internal/textify"
	"faqharvest/internal/transfer"
)

// Orchestrator owns one harvest run.
type Orchestrator struct {
	cfg    *config.Config
	driver PageDriver
	chain  *extract.Chain
	render *textify.Renderer
	store  *artifacts.Store
	assets *transfer.Client
	reader ocr.Recognizer
	log    *log.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

// New wires an Orchestrator. The store, asset client, and recognizer
// may be shared; the driver must be exclusive to this run.
func New(cfg *config.Config, driver PageDriver, store *artifacts.Store, logger *log.Logger) *Orchestrator {
	chain := extract.NewChain()
	if len(cfg.MainSelectors) > 0 {
		chain.MainSelectors = cfg.MainSelectors
	}
	if len(cfg.ContainerSelectors) > 0 {
		chain.ContainerSelectors = cfg.ContainerSelectors
	}
	if len(cfg.Stoplist) > 0 {
		chain.Stoplist = cfg.Stoplist
	}

	var reader ocr.Recognizer = ocr.Disabled{}
	if cfg.OCREndpoint != "" {
		reader = ocr.NewHTTP(cfg.OCREndpoint)
	}

	return &Orchestrator{
		cfg:    cfg,
		driver: driver,
		chain:  chain,
		render: textify.New(),
		store:  store,
		assets: transfer.New(transfer.WithReferer(cfg.StartURL)),
		reader: reader,
		log:    logger,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// WithClock swaps the time hooks; used by tests.
func (o *Orchestrator) WithClock(sleep func(time.Duration), now func() time.Time) *Orchestrator {
	o.sleep = sleep
	o.now = now
	return o
}

// Run harvests every target and returns the aggregate report. The
// returned error covers only run-level failures (the start page never
// opening); per-target failures live in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartURL: o.cfg.StartURL, Started: o.now()}
	defer func() {
		report.Finished = o.now()
		report.finalize()
	}()

	start := navigator.Target{Label: "start", URL: o.cfg.StartURL}
	if _, err := o.driver.Open(ctx, start); err != nil {
		return report, fmt.Errorf("open start page: %w", err)
	}
	o.driver.AwaitStable(ctx, "")

	targets, err := o.targets()
	if err != nil {
		return report, fmt.Errorf("enumerate targets: %w", err)
	}
	o.log.Info("targets enumerated", "count", len(targets))

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		rec := o.harvestTarget(ctx, target)
		report.Records = append(report.Records, rec)
		if rec.Success {
			report.FilesSaved++
		}
		o.pace()
	}
	return report, nil
}

// targets resolves the run's target list: explicit configuration wins,
// otherwise the discovery-mode enumerator runs against the start page.
func (o *Orchestrator) targets() ([]navigator.Target, error) {
	if len(o.cfg.Targets) > 0 {
		out := make([]navigator.Target, 0, len(o.cfg.Targets))
		for _, t := range o.cfg.Targets {
			out = append(out, navigator.Target{Label: t.Label, URL: t.URL, DirectURL: t.DirectURL})
		}
		return out, nil
	}

	found, err := o.driver.Routes(routes.Options{
		Selectors: o.cfg.SubmenuSelectors,
		BaseURL:   o.cfg.StartURL,
		Cap:       o.cfg.RouteCap,
	})
	if err != nil {
		return nil, err
	}
	out := make([]navigator.Target, 0, len(found))
	for _, r := range found {
		out = append(out, navigator.Target{Label: r.Label, URL: r.URL})
	}
	return out, nil
}

// harvestTarget produces exactly one record, success or failure.
func (o *Orchestrator) harvestTarget(ctx context.Context, target navigator.Target) ExtractionRecord {
	started := o.now()
	rec := ExtractionRecord{Target: target.Label, URL: target.URL, Timestamp: started}
	logger := o.log.With("target", target.Label)

	attempts, err := o.openTarget(ctx, target, &rec)
	rec.Attempts = attempts
	if err != nil {
		o.recordFailure(&rec, err, logger)
		rec.ElapsedMS = o.now().Sub(started).Milliseconds()
		return rec
	}

	html, err := o.driver.CaptureHTML()
	if err != nil {
		o.recordFailure(&rec, err, logger)
		rec.ElapsedMS = o.now().Sub(started).Milliseconds()
		return rec
	}
	if _, err := o.store.SaveHTML(target.Label, html); err != nil {
		logger.Warn("html artifact not saved", "err", err)
	}

	pageURL, title, err := o.driver.Location()
	if err == nil && pageURL != "" {
		rec.URL = pageURL
		rec.Title = title
	}

	result := o.chain.Extract(html)
	rec.Method = result.Method
	rec.PageText = result.Text
	if result.Method == extract.MethodRawTruncated {
		o.recognizeScreenshot(ctx, &rec, logger)
	}

	o.harvestFAQ(ctx, &rec, logger)
	o.harvestImages(ctx, &rec, html, logger)
	o.harvestDocuments(ctx, &rec, html, logger)

	if len(rec.Pairs) > 0 {
		records := make([]any, len(rec.Pairs))
		for i, p := range rec.Pairs {
			records[i] = p
		}
		if err := o.store.AppendRecords(target.Label, records...); err != nil {
			logger.Warn("text artifact not saved", "err", err)
		}
	}

	rec.Success = true
	rec.ElapsedMS = o.now().Sub(started).Milliseconds()
	logger.Info("target harvested",
		"categories", len(rec.Categories), "pairs", len(rec.Pairs), "method", rec.Method)
	return rec
}

// openTarget reaches the target either by URL through the retry
// machine, or, for tab-style targets without one, by clicking its
// label on the current page.
func (o *Orchestrator) openTarget(ctx context.Context, target navigator.Target, rec *ExtractionRecord) ([]navigator.AttemptOutcome, error) {
	if target.URL != "" {
		attempts, err := o.driver.Open(ctx, target)
		if err != nil {
			return attempts, err
		}
		o.driver.AwaitStable(ctx, "")
		return attempts, nil
	}

	if _, err := o.driver.Locate(target.Label); err != nil {
		return nil, err
	}
	if err := o.driver.Click(locator.Marker); err != nil {
		return nil, err
	}
	outcome := o.driver.AwaitStable(ctx, locator.Marker)
	rec.Degraded = rec.Degraded || outcome.Degraded
	return nil, nil
}

// harvestFAQ walks categories and expands every question beneath them.
// Every step fails soft: a question that cannot be expanded still
// yields a pair carrying the failure sentinel.
func (o *Orchestrator) harvestFAQ(ctx context.Context, rec *ExtractionRecord, logger *log.Logger) {
	cands, err := o.driver.Categories(o.cfg.SubmenuSelectors)
	if err != nil {
		logger.Warn("category discovery failed", "err", err)
	}
	cats := discovery.FilterCategories(cands, o.cfg.Vocabulary)
	rec.Categories = cats

	// Without categories the page itself is treated as one unnamed
	// section so question harvesting still runs.
	sections := cats
	if len(sections) == 0 {
		sections = []string{""}
	}

	for _, cat := range sections {
		if ctx.Err() != nil {
			return
		}
		if cat != "" {
			if err := o.activate(ctx, cat); err != nil {
				logger.Warn("category not activated", "category", cat, "err", err)
				continue
			}
			o.pace()
		}

		qcands, err := o.driver.Questions(o.cfg.QuestionSelectors)
		if err != nil {
			logger.Warn("question discovery failed", "category", cat, "err", err)
			continue
		}
		for i, q := range discovery.FilterQuestions(qcands) {
			if ctx.Err() != nil {
				return
			}
			pair := discovery.QAPair{
				Question: q,
				Answer:   o.expandAndExtract(ctx, q, logger),
				Category: cat,
				Index:    i,
				Source:   rec.URL,
			}
			var added bool
			rec.Pairs, added = discovery.AppendUnique(rec.Pairs, pair)
			if !added {
				logger.Debug("near-duplicate question dropped", "question", q)
			}
			o.pace()
		}
	}
}

// activate locates a labelled control, clicks it, and waits out the
// stability sequence.
func (o *Orchestrator) activate(ctx context.Context, label string) error {
	if _, err := o.driver.Locate(label); err != nil {
		return err
	}
	if err := o.driver.Click(locator.Marker); err != nil {
		return err
	}
	o.driver.AwaitStable(ctx, locator.Marker)
	return nil
}

// expandAndExtract clicks one question open and pulls its answer text
// through the extraction chain. Failures return the sentinel.
func (o *Orchestrator) expandAndExtract(ctx context.Context, question string, logger *log.Logger) string {
	if err := o.activate(ctx, question); err != nil {
		logger.Warn("question not expanded", "question", question, "err", err)
		return FailureSentinel
	}

	html, err := o.driver.CaptureHTML()
	if err != nil {
		logger.Warn("capture after expansion failed", "question", question, "err", err)
		return FailureSentinel
	}

	result := o.chain.Extract(html)
	text, err := o.render.Render(result.Text)
	if err != nil || text == "" {
		return result.Text
	}
	return text
}

// harvestImages downloads the page's images into the route's image
// directory. Each image is independent; failures only bump a counter.
func (o *Orchestrator) harvestImages(ctx context.Context, rec *ExtractionRecord, html string, logger *log.Logger) {
	if !o.cfg.WantImages() {
		return
	}
	urls, err := imagescan.Images(html, rec.URL)
	if err != nil {
		logger.Warn("image scan failed", "err", err)
		return
	}
	for _, u := range urls {
		if ctx.Err() != nil {
			return
		}
		asset, err := o.assets.FetchImage(ctx, u)
		if err != nil {
			rec.ImagesFailed++
			if aerr := o.store.AppendImageFailure(rec.Target, u, err); aerr != nil {
				logger.Warn("image failure not logged", "err", aerr)
			}
			logger.Debug("image skipped", "url", u, "err", err)
			continue
		}
		if _, err := o.store.SaveImage(rec.Target, asset.Name, asset.Data); err != nil {
			rec.ImagesFailed++
			logger.Warn("image not saved", "url", u, "err", err)
			continue
		}
		rec.ImagesSaved++
	}
}

// harvestDocuments downloads documents (PDFs and friends) linked from
// the page. Like images, each one is independent and fire-and-forget:
// a failed download is logged and the target continues.
func (o *Orchestrator) harvestDocuments(ctx context.Context, rec *ExtractionRecord, html string, logger *log.Logger) {
	urls, err := imagescan.Documents(html, rec.URL)
	if err != nil {
		logger.Warn("document scan failed", "err", err)
		return
	}
	for _, u := range urls {
		if ctx.Err() != nil {
			return
		}
		asset, err := o.assets.FetchDocument(ctx, u)
		if err != nil {
			logger.Warn("document skipped", "url", u, "err", err)
			continue
		}
		if _, err := o.store.SaveDocument(rec.Target, asset.Name, asset.Data); err != nil {
			logger.Warn("document not saved", "url", u, "err", err)
			continue
		}
		rec.Documents = append(rec.Documents, DocumentDescriptor{
			URL:         u,
			Name:        asset.Name,
			ContentType: asset.ContentType,
			Size:        len(asset.Data),
		})
	}
}

// recognizeScreenshot runs OCR over a page screenshot when text
// extraction bottomed out at the raw tier.
func (o *Orchestrator) recognizeScreenshot(ctx context.Context, rec *ExtractionRecord, logger *log.Logger) {
	shot, err := o.driver.Screenshot()
	if err != nil {
		logger.Warn("screenshot failed", "err", err)
		return
	}
	text, err := o.reader.Recognize(ctx, artifacts.RouteSlug(rec.Target)+".png", shot)
	if err != nil {
		rec.FailureClass = faults.ClassRecognition
		logger.Warn("recognition failed", "err", err)
		return
	}
	rec.OCRText = text
}

// recordFailure finishes a failed record: classify, persist the error
// snapshot and NDJSON line, log.
func (o *Orchestrator) recordFailure(rec *ExtractionRecord, err error, logger *log.Logger) {
	rec.Success = false
	rec.FailureClass = faults.Classify(err)
	rec.Error = err.Error()

	if html, herr := o.driver.CaptureHTML(); herr == nil {
		if _, serr := o.store.SaveErrorHTML(rec.Target, html); serr != nil {
			logger.Warn("error snapshot not saved", "err", serr)
		}
	}
	if aerr := o.store.AppendError(struct {
		Route string       `json:"route"`
		Class faults.Class `json:"class"`
		Error string       `json:"error"`
	}{rec.Target, rec.FailureClass, rec.Error}); aerr != nil {
		logger.Warn("error record not saved", "err", aerr)
	}
	logger.Error("target failed", "class", rec.FailureClass, "err", err)
}

func (o *Orchestrator) pace() {
	if d := o.cfg.Delay.Std(); d > 0 {
		o.sleep(d)
	}
}
