// Package chemview implements the harvest.Driver for ChemView-style report
// pages: it renders the report with headless Chrome, captures the modal HTML
// into the entity's archive folder, and queues supporting-file links on the
// download plan for the later bulk pass.
package chemview

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/harvest"
	"github.com/chemview-archive/harvester/internal/metrics"
)

// supportingExtensions are the link targets worth queueing for bulk download.
var supportingExtensions = []string{".pdf", ".zip", ".doc", ".docx", ".xls", ".xlsx"}

const (
	pageFileName   = "report.html"
	supportingPath = "supporting_files"
	collectLinksJS = `Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`
)

// Driver drives one report page per row.
type Driver struct {
	logger *zap.Logger
	// settleDelay gives late-loading modals a beat after body-ready.
	settleDelay time.Duration
	// navTimeout bounds a per-row fallback browser; the shared session
	// applies its own.
	navTimeout time.Duration
}

// New constructs a Driver. A non-positive navTimeout falls back to 45s.
func New(logger *zap.Logger, navTimeout time.Duration) *Driver {
	if navTimeout <= 0 {
		navTimeout = 45 * time.Second
	}
	return &Driver{
		logger:      logger,
		settleDelay: 500 * time.Millisecond,
		navTimeout:  navTimeout,
	}
}

// Harvest navigates to the row's URL and fills in an outcome per needed
// artifact type. Success flags start pessimistic and flip only on confirmed
// capture.
func (d *Driver) Harvest(ctx context.Context, req harvest.Request) (harvest.Outcome, error) {
	outcome := harvest.Outcome{Artifacts: map[string]harvest.ArtifactResult{}}
	if req.URL == "" {
		return outcome, fmt.Errorf("driver requires a URL for entity %s", req.EntityID)
	}

	pageNeeded := req.Needed[req.Policy.PageType]
	filesNeeded := req.Policy.FileType != "" && req.Needed[req.Policy.FileType]
	if !pageNeeded && !filesNeeded {
		return outcome, nil
	}

	outcome.Attempted = true
	if pageNeeded {
		outcome.Artifacts[req.Policy.PageType] = harvest.ArtifactResult{NavigateVia: req.URL}
	}
	if filesNeeded {
		outcome.Artifacts[req.Policy.FileType] = harvest.ArtifactResult{NavigateVia: req.URL}
	}

	tabCtx, cancel := d.tab(ctx, req)
	defer cancel()

	html, links, err := d.capture(tabCtx, req)
	if err != nil {
		d.failAll(&outcome, req, err)
		return outcome, nil
	}

	if pageNeeded {
		outcome.Artifacts[req.Policy.PageType] = d.savePage(req, html)
	}
	if filesNeeded {
		outcome.Artifacts[req.Policy.FileType] = d.queueFiles(req, links)
	} else if req.Policy.FileType == "" {
		// Kinds without a file artifact still queue what they find; the
		// plan replay decides what to do with it.
		d.queueFiles(req, links)
	}
	return outcome, nil
}

// tab derives a navigation context: a shared-session tab when available,
// otherwise a one-shot browser for this row.
func (d *Driver) tab(ctx context.Context, req harvest.Request) (context.Context, context.CancelFunc) {
	if req.Session != nil {
		return req.Session.NewTab(ctx)
	}

	d.logger.Debug("no shared browser, launching one for this row",
		zap.String("entity_id", req.EntityID))
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", req.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, d.navTimeout)
	return timeoutCtx, func() {
		timeoutCancel()
		tabCancel()
		allocCancel()
	}
}

// capture renders the page and returns its HTML and every anchor href.
func (d *Driver) capture(ctx context.Context, req harvest.Request) (string, []string, error) {
	var (
		html  string
		links []string
	)
	actions := []chromedp.Action{}
	if req.Session != nil {
		actions = append(actions, req.Session.SetupAction())
	}
	actions = append(actions,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(d.settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(collectLinksJS, &links),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}
	if strings.TrimSpace(html) == "" {
		return "", nil, fmt.Errorf("empty document at %s", req.URL)
	}
	return html, links, nil
}

func (d *Driver) savePage(req harvest.Request, html string) harvest.ArtifactResult {
	result := harvest.ArtifactResult{NavigateVia: req.URL}
	target := filepath.Join(req.EntityDir, pageFileName)
	if err := os.WriteFile(target, []byte(html), 0o600); err != nil {
		result.Err = fmt.Sprintf("write page capture: %v", err)
		return result
	}
	result.Success = true
	result.LocalPath = target
	d.logger.Debug("captured report page",
		zap.String("entity_id", req.EntityID),
		zap.String("path", target))
	return result
}

// queueFiles adds the supporting-file links found on the page to the plan.
func (d *Driver) queueFiles(req harvest.Request, links []string) harvest.ArtifactResult {
	result := harvest.ArtifactResult{NavigateVia: req.URL}
	files := filterSupporting(links)
	if len(files) == 0 {
		result.Err = "no supporting file links found on page"
		return result
	}

	group := filepath.Base(req.EntityDir)
	added, dups, err := req.Plan.AddLinks(group, supportingPath, files)
	if err != nil {
		result.Err = fmt.Sprintf("queue supporting files: %v", err)
		return result
	}
	metrics.PlanURLs(added, dups)

	result.Success = true
	result.LocalPath = filepath.Join(req.EntityDir, supportingPath)
	d.logger.Debug("queued supporting files",
		zap.String("entity_id", req.EntityID),
		zap.Int("added", added),
		zap.Int("duplicates", dups))
	return result
}

func (d *Driver) failAll(outcome *harvest.Outcome, req harvest.Request, err error) {
	d.logger.Warn("page capture failed",
		zap.String("entity_id", req.EntityID),
		zap.String("url", req.URL),
		zap.Error(err))
	for artifactType, result := range outcome.Artifacts {
		result.Err = err.Error()
		outcome.Artifacts[artifactType] = result
	}
}

// filterSupporting keeps links whose path ends in a supporting-file
// extension, deduplicating while preserving order.
func filterSupporting(links []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, link := range links {
		if link == "" {
			continue
		}
		parsed, err := url.Parse(link)
		if err != nil {
			continue
		}
		ext := strings.ToLower(filepath.Ext(parsed.Path))
		keep := false
		for _, want := range supportingExtensions {
			if ext == want {
				keep = true
				break
			}
		}
		if !keep {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
