package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"google.golang.org/api/option"

	"github.com/rumor-ml/commons.systems/strdash/internal/aggregate"
	"github.com/rumor-ml/commons.systems/strdash/internal/archive"
	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/hostaway"
	"github.com/rumor-ml/commons.systems/strdash/internal/output"
	"github.com/rumor-ml/commons.systems/strdash/internal/pipeline"
	"github.com/rumor-ml/commons.systems/strdash/internal/pricing"
	"github.com/rumor-ml/commons.systems/strdash/internal/quickbooks"
	"github.com/rumor-ml/commons.systems/strdash/internal/reconcile"
	"github.com/rumor-ml/commons.systems/strdash/internal/server"
	"github.com/rumor-ml/commons.systems/strdash/internal/ui"
)

// shutdownTimeout bounds how long serve waits for in-flight requests
const shutdownTimeout = 10 * time.Second

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("import")
	source := fs.String("source", "", "Revenue source for every file (Airbnb, VRBO, Direct, Hostaway, Other)")
	propertyID := fs.String("property", "", "Property id for every file")
	year := fs.Int("year", 0, "Year for exports whose dates omit it")
	fallback := fs.String("fallback", "", "Category for expenses no rule matches")
	dryRun := fs.Bool("dry-run", false, "Parse and validate without writing")
	doArchive := fs.Bool("archive", false, "Upload raw exports to ARCHIVE_BUCKET before importing")
	statePath := fs.String("state", "", "Fingerprint history file; records seen before are skipped")
	jsonOut := fs.Bool("json", false, "Print the import report as JSON")
	outputFile := fs.String("output", "", "Append the import report to this JSON file")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	path, err := requirePositional(fs, positional, "path")
	if err != nil {
		return err
	}

	opts := pipeline.Options{Year: *year, DryRun: *dryRun, StatePath: *statePath}
	if *source != "" {
		if opts.Source, err = domain.ParseSource(*source); err != nil {
			return err
		}
	}
	if *fallback != "" {
		opts.Fallback = domain.Category(*fallback)
		if !domain.ValidateCategory(opts.Fallback) {
			return fmt.Errorf("invalid fallback category %q", *fallback)
		}
	}

	a, err := newApp(ctx, common, "")
	if err != nil {
		return err
	}
	defer a.Close()

	if *propertyID != "" {
		if _, err := a.catalog.Get(*propertyID); err != nil {
			return err
		}
		opts.PropertyID = *propertyID
	}

	deps := pipeline.Deps{
		Registry: a.registry,
		Store:    a.store,
		Catalog:  a.catalog,
		Calendar: a.cal,
		Reporter: newCLIReporter(common.verbose),
	}
	if *doArchive && !*dryRun {
		if a.cfg.ArchiveBucket == "" {
			return fmt.Errorf("-archive requires ARCHIVE_BUCKET to be set")
		}
		var gopts []option.ClientOption
		if a.cfg.Store.CredentialsFile != "" {
			gopts = append(gopts, option.WithCredentialsFile(a.cfg.Store.CredentialsFile))
		}
		bucket, err := archive.NewGCSBucket(ctx, a.cfg.ArchiveBucket, gopts...)
		if err != nil {
			return err
		}
		defer bucket.Close()
		deps.Archiver = archive.New(bucket)
	}

	p, err := pipeline.New(deps, opts)
	if err != nil {
		return err
	}

	if *dryRun {
		ui.Header("Importing Exports (dry run)")
	} else {
		ui.Header("Importing Exports")
	}
	report, err := p.Import(a.context(ctx), path)
	if err != nil {
		return err
	}
	printImportReport(report)

	if *outputFile != "" {
		if err := output.WriteReport(report, output.WriteOptions{MergeMode: true, FilePath: *outputFile}); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Report appended to %s", *outputFile))
	}
	if *jsonOut {
		if err := output.WriteJSON(report, stdout); err != nil {
			return err
		}
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to import", report.Failed, len(report.Files))
	}
	return nil
}

func printImportReport(r *pipeline.Report) {
	ui.Row("Files", fmt.Sprintf("%d", len(r.Files)))
	ui.Row("Revenue records", fmt.Sprintf("%d", r.Revenues))
	ui.Row("Expense records", fmt.Sprintf("%d", r.Expenses))
	if r.Duplicates > 0 {
		ui.Row("Already imported", fmt.Sprintf("%d", r.Duplicates))
	}
	if r.Rejected > 0 {
		ui.Warning(fmt.Sprintf("%d records failed validation and were not written", r.Rejected))
	}
	for _, f := range r.Files {
		if f.Error != "" {
			ui.Warning(fmt.Sprintf("%s: %s", f.Path, f.Error))
		}
		for _, w := range f.Warnings {
			ui.Warning(w)
		}
	}
	if r.DryRun {
		ui.Info("Dry run: nothing was written")
	}
}

func runReplaceWindow(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("replace-window")
	source := fs.String("source", "", "Revenue source whose window is replaced (required)")
	year := fs.Int("year", 0, "Year of the window (required)")
	month := fs.Int("month", 0, "Month of the window, 1-12; 0 replaces the whole year")
	file := fs.String("file", "", "Export file or directory holding the authoritative records (required)")
	propertyID := fs.String("property", "", "Property id for records the export does not attribute")
	jsonOut := fs.Bool("json", false, "Print the report as JSON")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if *source == "" || *year == 0 || *file == "" {
		return fmt.Errorf("replace-window requires -source, -year and -file")
	}
	src, err := domain.ParseSource(*source)
	if err != nil {
		return err
	}
	w := domain.Window{Collection: domain.CollectionRevenue, Source: src, Year: *year, Month: time.Month(*month)}
	if err := w.Validate(); err != nil {
		return err
	}

	a, err := newApp(ctx, common, "")
	if err != nil {
		return err
	}
	defer a.Close()
	ctx = a.context(ctx)

	opts := pipeline.Options{Source: src, Year: *year, DryRun: true}
	if *propertyID != "" {
		if _, err := a.catalog.Get(*propertyID); err != nil {
			return err
		}
		opts.PropertyID = *propertyID
	}
	p, err := pipeline.New(pipeline.Deps{Registry: a.registry, Catalog: a.catalog, Calendar: a.cal}, opts)
	if err != nil {
		return err
	}
	loaded, err := p.Load(ctx, *file)
	if err != nil {
		return err
	}
	if len(loaded.Revenues) == 0 {
		return fmt.Errorf("%s holds no revenue records; refusing to empty %s", *file, w)
	}
	if len(loaded.Expenses) > 0 {
		ui.Warning(fmt.Sprintf("ignoring %d expense records in %s", len(loaded.Expenses), *file))
	}

	ui.Header("Replacing " + w.String())
	report, err := reconcile.New(a.store, a.cal).ReplaceWindow(ctx, w, loaded.Revenues)
	if err != nil {
		var phaseErr *domain.PhaseError
		if errors.As(err, &phaseErr) {
			ui.Warning("Rerun the same command to converge; record ids are stable")
		}
		return err
	}
	ui.Row("Selected", fmt.Sprintf("%d", report.Selected))
	ui.Row("Purged", fmt.Sprintf("%d", report.Purged))
	ui.Row("Written", fmt.Sprintf("%d", report.Written))
	if *jsonOut {
		return output.WriteJSON(report, stdout)
	}
	return nil
}

func runDedup(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("dedup")
	dryRun := fs.Bool("dry-run", false, "Report shadowed aggregates without deleting them")
	jsonOut := fs.Bool("json", false, "Print the report as JSON")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	a, err := newApp(ctx, common, "")
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := reconcile.New(a.store, a.cal).Dedup(a.context(ctx), reconcile.DedupOptions{DryRun: *dryRun})
	if err != nil {
		return err
	}
	ui.Row("Revenue records scanned", fmt.Sprintf("%d", report.Scanned))
	ui.Row("Aggregates removed", fmt.Sprintf("%d", report.Removed))
	for _, w := range report.Windows {
		ui.Info(fmt.Sprintf("%s %04d-%02d: %d aggregates shadowed by %d transactions",
			w.Source, w.Year, int(w.Month), len(w.Removed), w.Transactions))
	}
	if *jsonOut {
		return output.WriteJSON(report, stdout)
	}
	return nil
}

func runSweep(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("sweep")
	years := fs.Int("years", 0, "Retention in years (default from RETENTION_YEARS)")
	dryRun := fs.Bool("dry-run", false, "Count expired records without deleting them")
	jsonOut := fs.Bool("json", false, "Print the report as JSON")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	a, err := newApp(ctx, common, "")
	if err != nil {
		return err
	}
	defer a.Close()

	if *years == 0 {
		*years = a.cfg.RetentionYears
	}
	report, err := reconcile.New(a.store, a.cal).Sweep(a.context(ctx), *years, *dryRun)
	if err != nil {
		return err
	}
	ui.Row("Cutoff", report.Cutoff.Format("2006-01-02"))
	colls := make([]string, 0, len(report.Removed))
	for coll := range report.Removed {
		colls = append(colls, coll)
	}
	sort.Strings(colls)
	for _, coll := range colls {
		ui.Row(coll, fmt.Sprintf("%d removed", report.Removed[coll]))
	}
	if *jsonOut {
		return output.WriteJSON(report, stdout)
	}
	return nil
}

// quickBooksClient builds the token store and API client from config
func (a *app) quickBooksClient() (*quickbooks.TokenStore, *quickbooks.Client, error) {
	if !a.cfg.QuickBooksEnabled() {
		return nil, nil, fmt.Errorf("quickbooks is not configured (set QB_CLIENT_ID and QB_CLIENT_SECRET)")
	}
	qb := a.cfg.QuickBooks
	tokens := quickbooks.NewTokenStore(a.store, quickbooks.OAuthConfig{
		ClientID:     qb.ClientID,
		ClientSecret: qb.ClientSecret,
		RedirectURI:  qb.RedirectURI,
		TokenURL:     qb.TokenURL,
	}, nil)
	return tokens, quickbooks.NewClient(qb.BaseURL, tokens, qb.RatePerMin), nil
}

func (a *app) hostawayClient(ctx context.Context) (*hostaway.Client, error) {
	if !a.cfg.HostawayEnabled() {
		return nil, fmt.Errorf("hostaway is not configured (set HOSTAWAY_ACCOUNT_ID and HOSTAWAY_API_KEY)")
	}
	h := a.cfg.Hostaway
	return hostaway.NewClient(ctx, h.BaseURL, h.AccountID, h.APIKey), nil
}

func runSyncQuickBooks(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("sync-qb")
	jsonOut := fs.Bool("json", false, "Print the result as JSON")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	a, err := newApp(ctx, common, "")
	if err != nil {
		return err
	}
	defer a.Close()

	_, client, err := a.quickBooksClient()
	if err != nil {
		return err
	}
	syncer, err := quickbooks.NewSyncer(client, a.store, a.catalog, a.engine, a.cal)
	if err != nil {
		return err
	}
	result, err := syncer.Sync(a.context(ctx))
	if errors.Is(err, domain.ErrReconnectRequired) {
		return fmt.Errorf("%w: run serve and open /api/quickbooks/connect", err)
	}
	if err != nil {
		return err
	}
	ui.Row("Expenses", fmt.Sprintf("%d", result.Expenses))
	ui.Row("Revenue", fmt.Sprintf("%d", result.Revenue))
	ui.Row("Bank accounts", fmt.Sprintf("%d", result.BankAccounts))
	ui.Row("Skipped", fmt.Sprintf("%d", result.Skipped))
	if *jsonOut {
		return output.WriteJSON(result, stdout)
	}
	return nil
}

func runSyncHostaway(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("sync-hostaway")
	jsonOut := fs.Bool("json", false, "Print the result as JSON")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	a, err := newApp(ctx, common, "")
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.hostawayClient(ctx)
	if err != nil {
		return err
	}
	result, err := hostaway.NewSyncer(client, a.store, a.catalog, a.cal).Sync(a.context(ctx))
	if err != nil {
		return err
	}
	ui.Row("Revenue", fmt.Sprintf("%d", result.Revenue))
	ui.Row("Cancelled", fmt.Sprintf("%d", result.Cancelled))
	ui.Row("Skipped", fmt.Sprintf("%d", result.Skipped))
	if *jsonOut {
		return output.WriteJSON(result, stdout)
	}
	return nil
}

func runSummary(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("summary")
	propertyID := fs.String("property", "", "Limit to one property")
	year := fs.Int("year", 0, "Summarize a past year as of December 31")
	jsonOut := fs.Bool("json", false, "Print the summary as JSON")
	outputFile := fs.String("output", "", "Write the summary JSON to this file")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	a, err := newApp(ctx, common, "")
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := aggregate.NewService(a.store, a.cal, a.catalog).Summary(a.context(ctx), aggregate.SummaryFilter{
		PropertyID: *propertyID,
		Year:       *year,
	})
	if err != nil {
		return err
	}

	if *outputFile != "" {
		if err := output.WriteReport(d, output.WriteOptions{FilePath: *outputFile}); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Summary written to %s", *outputFile))
	}
	if *jsonOut {
		return output.WriteJSON(d, stdout)
	}
	printSummary(d)
	return nil
}

func printSummary(d *aggregate.Dashboard) {
	title := "All Properties"
	if d.PropertyID != "" {
		title = d.PropertyID
	}
	ui.Header(fmt.Sprintf("%s as of %s", title, d.AsOf.Format("2006-01-02")))
	ui.Row("Monthly income", ui.Money(d.MonthlyIncome))
	ui.Row("Monthly expenses", ui.Money(d.MonthlyExpenses))
	ui.Row("Month over month", percent(d.MonthOverMonth))
	ui.Row("YTD income", ui.Money(d.YTDIncome))
	ui.Row("YTD expenses", ui.Money(d.YTDExpenses))
	ui.Row("Net profit", ui.Money(d.NetProfit))
	ui.Row("ROI", percent(d.ROI))
	ui.Row("Utilities average", ui.Money(d.UtilitiesAverage))
	if d.Mortgage.Principal > 0 {
		ui.Row("Mortgage paid", percent(d.Mortgage.PercentPaid))
	}
	for _, y := range d.YearOverYear {
		ui.Row(fmt.Sprintf("Revenue %d", y.Year), fmt.Sprintf("%s (%s)", ui.Money(y.Total), percent(y.Change)))
	}
	if len(d.ExpensesByCategory) > 0 {
		ui.BlueText("\nExpenses by category")
		for _, c := range d.ExpensesByCategory {
			ui.Row(string(c.Category), ui.Money(c.Sum))
		}
	}
}

func percent(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *p)
}

func runServe(ctx context.Context, args []string, stdout io.Writer) error {
	fs, common := newFlagSet("serve")
	port := fs.String("port", "", "Listen port (default from PORT)")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	a, err := newApp(ctx, common, "json")
	if err != nil {
		return err
	}
	// srv owns the app once it exists
	owned := false
	defer func() {
		if !owned {
			a.Close()
		}
	}()
	if *port != "" {
		a.cfg.Server.Port = *port
	}
	ctx = a.context(ctx)

	deps := server.Deps{
		Summaries:   aggregate.NewService(a.store, a.cal, a.catalog),
		Import:      pipeline.Deps{Registry: a.registry, Store: a.store, Catalog: a.catalog, Calendar: a.cal},
		Log:         a.log,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		StaticDir:   a.cfg.Server.StaticDir,
		UploadDir:   a.cfg.Server.UploadDir,
		Closers:     []io.Closer{a},
	}

	// Interface fields stay nil, not typed nil, when an integration is off
	var calendar pricing.CalendarSource
	if a.cfg.HostawayEnabled() {
		client, err := a.hostawayClient(ctx)
		if err != nil {
			return err
		}
		calendar = client
		deps.HostawaySync = hostaway.NewSyncer(client, a.store, a.catalog, a.cal)
	}
	if a.cfg.QuickBooksEnabled() {
		tokens, client, err := a.quickBooksClient()
		if err != nil {
			return err
		}
		syncer, err := quickbooks.NewSyncer(client, a.store, a.catalog, a.engine, a.cal)
		if err != nil {
			return err
		}
		deps.QuickBooksAuth = tokens
		deps.QuickBooksSync = syncer
	}
	quoter := pricing.NewQuoter(a.catalog, calendar, a.cal)
	deps.Quoter = quoter
	deps.Inquiries = pricing.NewInquiries(quoter, a.store)

	srv, err := server.New(ctx, deps)
	if err != nil {
		return err
	}
	owned = true
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadTimeout,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info().
			Str("addr", httpServer.Addr).
			Bool("quickbooks", a.cfg.QuickBooksEnabled()).
			Bool("hostaway", a.cfg.HostawayEnabled()).
			Msg("server listening")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
