// Package download replays a finished download plan: it walks the plan tree
// depth-first, recreates the folder layout on disk, and fetches each queued
// URL, skipping files that already exist so the pass is resumable.
package download

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/chemview-archive/harvester/internal/metrics"
	"github.com/chemview-archive/harvester/internal/plan"
)

// Config controls the replay pass.
type Config struct {
	// DestRoot is the directory under which the plan's root folder is
	// recreated.
	DestRoot  string
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
	StopFile  string
}

// Stats counts one replay pass.
type Stats struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Downloader fetches plan URLs over one shared colly collector so cookies
// and connections are reused across files.
type Downloader struct {
	cfg       Config
	collector *colly.Collector
	logger    *zap.Logger
}

// New builds a Downloader.
func New(cfg Config, logger *zap.Logger) (*Downloader, error) {
	if cfg.DestRoot == "" {
		return nil, fmt.Errorf("download destination root is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Delay > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: cfg.Delay}); err != nil {
			return nil, fmt.Errorf("set politeness delay: %w", err)
		}
	}

	return &Downloader{cfg: cfg, collector: c, logger: logger}, nil
}

// RunFile replays one plan file.
func (d *Downloader) RunFile(ctx context.Context, planPath string) (Stats, error) {
	raw, err := os.ReadFile(planPath)
	if err != nil {
		return Stats{}, fmt.Errorf("read plan %s: %w", planPath, err)
	}
	var root plan.Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return Stats{}, fmt.Errorf("parse plan %s: %w", planPath, err)
	}

	d.logger.Info("replaying download plan", zap.String("plan", planPath))
	stats := Stats{}
	err = d.walk(ctx, &root, d.cfg.DestRoot, &stats)
	d.logger.Info("plan replay finished",
		zap.String("plan", planPath),
		zap.Int("downloaded", stats.Downloaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats, err
}

// walk recreates node's folder under parent and processes its downloads,
// then recurses into the children in plan order.
func (d *Downloader) walk(ctx context.Context, node *plan.Node, parent string, stats *Stats) error {
	if err := d.interrupted(ctx); err != nil {
		return err
	}

	dir := filepath.Join(parent, node.Folder)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}

	for _, rawURL := range node.Downloads {
		if err := d.interrupted(ctx); err != nil {
			return err
		}
		d.fetchOne(rawURL, dir, stats)
	}

	for _, child := range node.Subfolders {
		if err := d.walk(ctx, child, dir, stats); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) fetchOne(rawURL, dir string, stats *Stats) {
	name, err := FilenameFromURL(rawURL)
	if err != nil {
		d.logger.Warn("unusable download URL", zap.String("url", rawURL), zap.Error(err))
		stats.Failed++
		metrics.FileDownloaded("failed")
		return
	}
	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); err == nil {
		stats.Skipped++
		metrics.FileDownloaded("skipped")
		return
	}

	var (
		body     []byte
		fetchErr error
	)
	c := d.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	if err := c.Visit(rawURL); err != nil {
		fetchErr = err
	}
	c.Wait()

	if fetchErr != nil || len(body) == 0 {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("empty response body")
		}
		d.logger.Warn("download failed", zap.String("url", rawURL), zap.Error(fetchErr))
		stats.Failed++
		metrics.FileDownloaded("failed")
		return
	}

	if err := os.WriteFile(target, body, 0o600); err != nil {
		d.logger.Warn("write download", zap.String("path", target), zap.Error(err))
		stats.Failed++
		metrics.FileDownloaded("failed")
		return
	}
	d.logger.Debug("downloaded", zap.String("url", rawURL), zap.String("path", target))
	stats.Downloaded++
	metrics.FileDownloaded("ok")
}

func (d *Downloader) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.cfg.StopFile != "" {
		if _, err := os.Stat(d.cfg.StopFile); err == nil {
			return fmt.Errorf("stop file present at %s", d.cfg.StopFile)
		}
	}
	return nil
}

// FilenameFromURL derives the on-disk name for a download URL from the last
// path segment.
func FilenameFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("no filename in url path %q", parsed.Path)
	}
	return name, nil
}

// ListPlans returns the plan files in dir, oldest first. The timestamped
// names sort chronologically.
func ListPlans(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plan dir %s: %w", dir, err)
	}
	var plans []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && strings.HasPrefix(name, "downloads_") && strings.HasSuffix(name, ".json") {
			plans = append(plans, filepath.Join(dir, name))
		}
	}
	sort.Strings(plans)
	return plans, nil
}
