package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"hpicli/internal/config"
	"hpicli/internal/infrastructure"

	"github.com/chromedp/chromedp"
)

const (
	baseURL  = "https://www.r-one.co.kr"
	startURL = "https://www.r-one.co.kr/rone/resis/statistics/publicationList.do?currLanguage=ENG"

	// publication type code for the monthly housing price index
	housingIndexType = "12"
)

// workbookRe matches downloaded filenames like "2025-06 Housing Price Index.xlsx"
var workbookRe = regexp.MustCompile(`^(\d{4})-(\d{2}) Housing Price Index\.xlsx$`)

func main() {
	// Browser automation can crash deep inside the CDP session; keep the
	// stack around for the log file
	var logger *slog.Logger
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC RECOVERED: %v\n", r)
			fmt.Printf("Stack trace:\n%s\n", debug.Stack())
			if logger != nil {
				logger.Error("Fetcher panicked",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
			os.Exit(1)
		}
	}()

	mode := flag.String("mode", "initial", "fetch mode: initial | accumulative")
	fromStr := flag.String("from", "2020-01", "start month (YYYY-MM) (used in initial mode)")
	toStr := flag.String("to", "", "optional end month (YYYY-MM); leave blank for the current month")
	outDir := flag.String("out", "", "directory to save workbooks (defaults to data/downloads relative to executable)")
	headless := flag.Bool("headless", true, "run browser headless")
	flag.Parse()

	// Initialize paths first to get default directories
	paths, err := config.GetPaths()
	if err != nil {
		fmt.Printf("Error: Failed to initialize paths: %v\n", err)
		os.Exit(1)
	}

	if *outDir == "" {
		*outDir = paths.DownloadsDir
	}

	// Ensure all required directories exist
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Printf("Error: Failed to create required directories: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Warning: Failed to load config, using defaults: %v\n", err)
		cfg = &config.Config{
			Logging: config.LoggingConfig{
				Level:       "info",
				Format:      "json",
				Output:      "both",
				FilePath:    paths.GetLogPath("fetcher.log"),
				Development: false,
			},
		}
	}

	var err2 error
	logger, err2 = infrastructure.InitializeLogger(cfg.Logging)
	if err2 != nil {
		fmt.Printf("Warning: Failed to initialize logger, using default: %v\n", err2)
		logger = slog.Default()
	}

	logger.Info("Housing price index fetcher starting",
		slog.String("mode", *mode),
		slog.String("from", *fromStr),
		slog.String("to", *toStr),
		slog.String("output_dir", *outDir),
		slog.String("executable_dir", paths.ExecutableDir))

	// determine the first month to request depending on mode
	var fromMonth time.Time
	if *mode == "accumulative" {
		if last, ok := latestDownloadedMonth(*outDir); ok {
			fromMonth = last.AddDate(0, 1, 0)
			slog.Info("[MODE accumulative] Detected last downloaded month",
				"last_month", last.Format("2006-01"),
				"start_from", fromMonth.Format("2006-01"))
			logger.Info("Accumulative mode detected last workbook",
				slog.String("last_month", last.Format("2006-01")),
				slog.String("start_from", fromMonth.Format("2006-01")))
		}
	}

	if fromMonth.IsZero() {
		fromMonth, err = time.Parse("2006-01", *fromStr)
		if err != nil {
			logger.Error("invalid --from month", slog.String("error", err.Error()))
			fmt.Printf("Error: Invalid --from month: %v\n", err)
			os.Exit(1)
		}
		slog.Info("[MODE initial] Starting from month (preserving existing files)",
			"from_month", fromMonth.Format("2006-01"))
	}

	toMonth := currentMonth()
	if *toStr != "" {
		toMonth, err = time.Parse("2006-01", *toStr)
		if err != nil {
			logger.Error("invalid --to month", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	// the portal never has a workbook for a month that has not started
	if toMonth.After(currentMonth()) {
		toMonth = currentMonth()
	}

	expectedMonths := countMonths(fromMonth, toMonth)
	slog.Info("Expected workbooks to download", "count", expectedMonths,
		"from", fromMonth.Format("2006-01"), "to", toMonth.Format("2006-01"))
	logger.Info("Calculated expected workbooks",
		slog.Int("expected", expectedMonths),
		slog.String("from", fromMonth.Format("2006-01")),
		slog.String("to", toMonth.Format("2006-01")))

	if expectedMonths <= 0 {
		slog.Info("FETCH_COMPLETE: Nothing to fetch, range is empty")
		logger.Info("Nothing to fetch", slog.String("reason", "empty month range"))
		return
	}

	// Skip the browser entirely when every month is already on disk
	existing := scanExistingMonths(*outDir, fromMonth, toMonth, logger)
	logger.Info("Pre-scan found existing workbooks", slog.Int("existing", existing))
	if existing >= expectedMonths {
		slog.Info("FETCH_COMPLETE: All requested months already downloaded")
		logger.Info("All requested months already exist",
			slog.Int("existing", existing),
			slog.Int("expected", expectedMonths))
		return
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts, chromedp.Flag("headless", *headless))

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()

	if err := chromedp.Run(ctx, runFetcher(fromMonth, toMonth, *outDir, logger, expectedMonths)); err != nil {
		logger.Error("fetching failed", slog.String("error", err.Error()))
		slog.Error("Fetching failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Fetcher finished")
}

// runFetcher drives the portal search form for the housing price index and
// walks the paginated publication table, downloading every workbook in the
// month range that is not already on disk.
func runFetcher(fromMonth, toMonth time.Time, outDir string, logger *slog.Logger, expectedMonths int) chromedp.Tasks {
	totalDownloaded := 0
	totalExisting := 0

	return chromedp.Tasks{
		chromedp.Navigate(startURL),
		chromedp.WaitVisible(`#fromMonth`, chromedp.ByID),
		chromedp.SetValue(`#fromMonth`, fromMonth.Format("2006.01"), chromedp.ByID),
		chromedp.SetValue(`#toMonth`, toMonth.Format("2006.01"), chromedp.ByID),
		chromedp.SetValue(`#pubtype`, housingIndexType, chromedp.ByID),
		chromedp.Click(`#searchform input[type='submit']`, chromedp.ByQuery),
		chromedp.WaitVisible(`#publications`, chromedp.ByID),
		chromedp.ActionFunc(func(ctx context.Context) error {
			page := 1
			for {
				slog.Info("Fetching page", "page", page)
				logger.Info("Fetching page", slog.Int("page", page))

				done, err := fetchPage(ctx, outDir, logger, fromMonth, toMonth,
					&totalDownloaded, &totalExisting, expectedMonths)
				if err != nil {
					return err
				}
				if done {
					slog.Info("FETCH_COMPLETE: All requested months processed")
					logger.Info("Fetch complete",
						slog.Int("downloaded", totalDownloaded),
						slog.Int("existing", totalExisting))
					return nil
				}

				// follow the next arrow until the table runs out
				var nextSrc string
				var ok bool
				err = chromedp.Run(ctx, chromedp.AttributeValue(`a img[src*='next.gif']`, "src", &nextSrc, &ok))
				if err != nil || !ok {
					logger.Info("No more pages",
						slog.Int("pages", page),
						slog.Int("downloaded", totalDownloaded),
						slog.Int("existing", totalExisting))
					return nil
				}
				if err := chromedp.Click(`a img[src*='next.gif']`, chromedp.ByQuery).Do(ctx); err != nil {
					return nil // assume finished when the arrow is not clickable
				}
				if err := chromedp.WaitVisible(`#publications`, chromedp.ByID).Do(ctx); err != nil {
					return err
				}
				page++
			}
		}),
	}
}

// fetchPage downloads the in-range workbooks linked from the current table
// page. It reports done=true when every expected month is accounted for or
// the table has scrolled past the start of the range.
func fetchPage(ctx context.Context, outDir string, logger *slog.Logger, fromMonth, toMonth time.Time, totalDownloaded, totalExisting *int, expectedMonths int) (bool, error) {
	var rows []struct {
		Href  string `json:"href"`
		Month string `json:"month"`
		Typ   string `json:"typ"`
	}

	js := `Array.from(document.querySelectorAll('#publications tbody tr')).map(tr => {
		const link = tr.querySelector('td.pub-download a');
		if (!link) return null;
		const monthCell = tr.querySelector('td.pub-titledata1');
		const typeCell = tr.querySelector('td.pub-titledata2');
		return {href: link.getAttribute('href'), month: monthCell ? monthCell.innerText.trim() : '', typ: typeCell ? typeCell.innerText.trim() : ''};
	}).filter(Boolean)`

	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &rows)); err != nil {
		return false, err
	}

	for _, r := range rows {
		if !strings.Contains(strings.ToLower(r.Typ), "housing price index") {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(r.Href), ".xlsx") {
			continue
		}

		month, err := time.Parse("2006.01", r.Month)
		if err != nil {
			logger.Warn("unable to parse publication month",
				slog.String("month", r.Month),
				slog.String("error", err.Error()))
			continue
		}

		// the table is served newest first; once it scrolls past the
		// range start there is nothing left to fetch
		if month.Before(fromMonth) {
			logger.Info("Reached months before the requested range",
				slog.String("month", month.Format("2006-01")),
				slog.String("from", fromMonth.Format("2006-01")))
			return true, nil
		}
		if month.After(toMonth) {
			continue
		}

		fullURL := r.Href
		if !strings.HasPrefix(r.Href, "http") {
			fullURL = baseURL + r.Href
		}

		fname := fmt.Sprintf("%s Housing Price Index.xlsx", month.Format("2006-01"))
		destPath := filepath.Join(outDir, fname)
		if _, err := os.Stat(destPath); err == nil {
			*totalExisting++
			slog.Info(fmt.Sprintf("Workbook %d of %d already exists, skipping", *totalDownloaded+*totalExisting, expectedMonths), "file", fname)
			logger.Debug("Workbook already exists", slog.String("file", fname))
			continue
		}

		*totalDownloaded++
		slog.Info(fmt.Sprintf("Downloading workbook %d of %d", *totalDownloaded+*totalExisting, expectedMonths), "file", fname)
		logger.Info("Downloading workbook",
			slog.String("file", fname),
			slog.String("url", fullURL))

		if err := downloadFile(fullURL, destPath); err != nil {
			slog.Error("Failed to download workbook", "file", fname, "error", err)
			logger.Error("Failed to download workbook",
				slog.String("file", fname),
				slog.String("error", err.Error()))
			*totalDownloaded--
			continue
		}

		if *totalDownloaded+*totalExisting >= expectedMonths {
			return true, nil
		}

		// rate limiting between downloads
		timer := time.NewTimer(500 * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		}
	}

	slog.Info("Page summary", "downloaded", *totalDownloaded, "existing", *totalExisting, "expected", expectedMonths)
	logger.Info("Page summary",
		slog.Int("downloaded", *totalDownloaded),
		slog.Int("existing", *totalExisting),
		slog.Int("expected", expectedMonths))

	return *totalDownloaded+*totalExisting >= expectedMonths, nil
}

func downloadFile(url, dest string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("download failed for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status for %s: %s", url, resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file %s: %w", dest, err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("write file %s: %w", dest, err)
	}

	slog.Default().Info("Workbook downloaded",
		slog.String("file", filepath.Base(dest)),
		slog.Int64("size_bytes", written))
	return nil
}

// latestDownloadedMonth returns the newest publication month among the
// workbooks already in dir
func latestDownloadedMonth(dir string) (time.Time, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, false
	}
	var months []time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := workbookRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		t, err := time.Parse("2006-01", m[1]+"-"+m[2])
		if err == nil {
			months = append(months, t)
		}
	}
	if len(months) == 0 {
		return time.Time{}, false
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months[len(months)-1], true
}

// scanExistingMonths counts workbooks already on disk with a publication
// month inside [fromMonth, toMonth]
func scanExistingMonths(dir string, fromMonth, toMonth time.Time, logger *slog.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("Failed to scan existing workbooks", slog.String("error", err.Error()))
		return 0
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := workbookRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		month, err := time.Parse("2006-01", m[1]+"-"+m[2])
		if err != nil {
			continue
		}
		if !month.Before(fromMonth) && !month.After(toMonth) {
			count++
			slog.Info("Already exists", "file", e.Name())
		}
	}
	return count
}

// countMonths returns the number of calendar months in [from, to] inclusive
func countMonths(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	years := to.Year() - from.Year()
	months := int(to.Month()) - int(from.Month())
	return years*12 + months + 1
}

func currentMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
