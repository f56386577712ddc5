package cdpcontrol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// OpenChartTabs makes sure a page target exists for every url, opening the
// missing ones in the browser at cdpURL. It returns the urls it opened.
func OpenChartTabs(ctx context.Context, cdpURL string, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx); err != nil {
		return nil, newError(CodeCDPUnavailable, "connect to browser failed", err)
	}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "failed to enumerate targets", err)
	}

	missing := missingURLs(targets, urls)
	if len(missing) == 0 {
		return nil, nil
	}

	executor := cdp.WithExecutor(browserCtx, chromedp.FromContext(browserCtx).Browser)
	opened := make([]string, 0, len(missing))
	for _, u := range missing {
		id, err := target.CreateTarget(u).WithBackground(true).Do(executor)
		if err != nil {
			return opened, newError(CodeCDPUnavailable, fmt.Sprintf("open tab %s failed", u), err)
		}
		slog.Info("cdpcontrol opened chart tab", "url", u, "target_id", id)
		opened = append(opened, u)
	}
	return opened, nil
}

func missingURLs(targets []*target.Info, urls []string) []string {
	open := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		open[strings.TrimRight(t.URL, "/")] = true
	}
	var out []string
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		key := strings.TrimRight(strings.TrimSpace(u), "/")
		if key == "" || open[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}
