package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
	"github.com/rumor-ml/commons.systems/strdash/internal/registry"
	"github.com/rumor-ml/commons.systems/strdash/internal/rules"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

const relayCSV = `Date,Description,Amount
2024-10-03,Zelle payment to Angelica Cleaner,-250.00
2024-10-04,Spectrum Internet Bill,-89.99
2024-10-05,Airbnb payout,1200.00
`

var importNow = time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)

type fakeArchiver struct {
	paths []string
	err   error
}

func (a *fakeArchiver) Archive(_ context.Context, path string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.paths = append(a.paths, path)
	return "gs://exports/raw/" + filepath.Base(path), nil
}

type recordingReporter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingReporter) FileStarted(_, _ int, path string) {
	r.add("start " + filepath.Base(path))
}

func (r *recordingReporter) FileDone(_, _ int, file FileReport) {
	r.add("done " + filepath.Base(file.Path))
}

func (r *recordingReporter) FileFailed(_, _ int, path string, _ error) {
	r.add("fail " + filepath.Base(path))
}

func (r *recordingReporter) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func writeExport(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newDeps(t *testing.T) (Deps, *store.Memory) {
	t.Helper()
	engine, err := rules.LoadEmbedded()
	require.NoError(t, err)
	catalog, err := property.LoadEmbedded()
	require.NoError(t, err)
	reg, err := registry.New(registry.Deps{Categorizer: engine, Listings: catalog})
	require.NoError(t, err)
	cal, err := domain.NewCalendar("America/Los_Angeles")
	require.NoError(t, err)

	mem := store.NewMemory()
	return Deps{Registry: reg, Store: mem, Catalog: catalog, Calendar: cal}, mem
}

func newPipeline(t *testing.T, deps Deps, opts Options) *Pipeline {
	t.Helper()
	opts.Now = func() time.Time { return importNow }
	p, err := New(deps, opts)
	require.NoError(t, err)
	return p
}

func TestImport_Directory(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)

	deps, mem := newDeps(t)
	reporter := &recordingReporter{}
	deps.Reporter = reporter

	report, err := newPipeline(t, deps, Options{}).Import(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "import", report.Command)
	assert.Equal(t, 2, report.Expenses)
	assert.Zero(t, report.Revenues)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "bank-csv", report.Files[0].Parser)
	assert.Equal(t, 1, report.Files[0].Ignored)
	assert.Equal(t, 2, report.Files[0].Written)
	assert.Equal(t, []string{"start relay.csv", "done relay.csv"}, reporter.events)

	docs, err := mem.Query(context.Background(), domain.CollectionExpenses, store.Eq(domain.FieldPropertyID, "cochran"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	categories := map[string]bool{}
	for _, d := range docs {
		categories[d.Data[domain.FieldCategory].(string)] = true
		assert.Equal(t, importNow, d.Data[domain.FieldImportedAt])
	}
	assert.True(t, categories[string(domain.CategoryCleaning)])
	assert.True(t, categories[string(domain.CategoryInternet)])
}

func TestImport_RerunConverges(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	deps, mem := newDeps(t)

	for i := 0; i < 2; i++ {
		_, err := newPipeline(t, deps, Options{}).Import(context.Background(), root)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, mem.Len(domain.CollectionExpenses), "deterministic ids overwrite on rerun")
}

func TestImport_StateSkipsSeenRecords(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	statePath := filepath.Join(t.TempDir(), ".state", "import.json")
	deps, mem := newDeps(t)

	first, err := newPipeline(t, deps, Options{StatePath: statePath}).Import(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Expenses)
	assert.FileExists(t, statePath)

	second, err := newPipeline(t, deps, Options{StatePath: statePath}).Import(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, second.Expenses)
	assert.Equal(t, 2, second.Duplicates)
	assert.Equal(t, 2, mem.Len(domain.CollectionExpenses))
}

func TestImport_DryRun(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	statePath := filepath.Join(t.TempDir(), "import.json")
	deps, mem := newDeps(t)
	archiver := &fakeArchiver{}
	deps.Archiver = archiver

	report, err := newPipeline(t, deps, Options{DryRun: true, StatePath: statePath}).Import(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Expenses)
	assert.Zero(t, report.Files[0].Written)
	assert.Zero(t, mem.Len(domain.CollectionExpenses))
	assert.Empty(t, archiver.paths)
	assert.NoFileExists(t, statePath)
}

func TestImport_SingleFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.csv")
	writeExport(t, path, "Date,Description,Amount\n2024-10-06,Mystery vendor,-12\n")
	deps, mem := newDeps(t)
	archiver := &fakeArchiver{}
	deps.Archiver = archiver

	report, err := newPipeline(t, deps, Options{
		PropertyID: "casa-moto",
		Fallback:   domain.CategoryContractor,
	}).Import(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "gs://exports/raw/relay.csv", report.Files[0].ArchivedAs)
	assert.Equal(t, []string{path}, archiver.paths)

	docs, err := mem.Query(context.Background(), domain.CollectionExpenses)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "casa-moto", docs[0].Data[domain.FieldPropertyID])
	assert.Equal(t, string(domain.CategoryContractor), docs[0].Data[domain.FieldCategory])
}

const payoutsJSON = `[{"transactionDetails": [
  {"amountMicros": 1250500000, "currency": "USD",
   "additionalAttributes": {"effectiveEntryDate": "240815", "companyEntryDescription": "HMABC123"}}
]}]`

func TestImport_WarnsOnStoredGranularity(t *testing.T) {
	tests := []struct {
		name      string
		aggregate bool
		wantWarn  bool
	}{
		{"stored monthly aggregate", true, true},
		{"stored transaction", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeExport(t, filepath.Join(root, "cochran", "payment_processing.json"), payoutsJSON)
			deps, mem := newDeps(t)

			stored, err := domain.NewRevenue(deps.Calendar.Date(2024, time.August, 1), 5000, 5000, domain.SourceAirbnb, "cochran", "August total")
			require.NoError(t, err)
			stored.ID = "airbnb-2024-08"
			stored.MonthlyAggregate = tt.aggregate
			ctx := context.Background()
			require.NoError(t, mem.BatchWrite(ctx, domain.CollectionRevenue, []store.Op{store.Set(stored.ID, stored.ToFields())}))

			report, err := newPipeline(t, deps, Options{}).Import(ctx, root)
			require.NoError(t, err)
			require.Len(t, report.Files, 1)
			assert.Equal(t, 1, report.Revenues)
			assert.Equal(t, 2, mem.Len(domain.CollectionRevenue), "the warning does not block the write")

			var warned bool
			for _, w := range report.Files[0].Warnings {
				if strings.Contains(w, "strdash dedup") {
					warned = true
					assert.Contains(t, w, "2024-08")
				}
			}
			assert.Equal(t, tt.wantWarn, warned, "warnings: %v", report.Files[0].Warnings)
		})
	}
}

func TestImport_FileFailuresDoNotStopRun(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "a", "unknown.csv"), "foo,bar\n1,2\n")
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	deps, mem := newDeps(t)
	reporter := &recordingReporter{}
	deps.Reporter = reporter

	report, err := newPipeline(t, deps, Options{}).Import(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Files, 2)
	assert.Contains(t, report.Files[0].Error, "no parser found")
	assert.Equal(t, 2, mem.Len(domain.CollectionExpenses))
	assert.Equal(t, []string{"start unknown.csv", "fail unknown.csv", "start relay.csv", "done relay.csv"}, reporter.events)
}

func TestImport_WriteFailure(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	statePath := filepath.Join(t.TempDir(), "import.json")
	deps, mem := newDeps(t)
	mem.SetFault(func(op, coll string) error {
		if op == "batch" {
			return errors.New("unavailable")
		}
		return nil
	})

	report, err := newPipeline(t, deps, Options{StatePath: statePath}).Import(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Files[0].Error, "failed to write expenses")

	// Nothing was recorded, so a later run retries the same records
	mem.SetFault(nil)
	retry, err := newPipeline(t, deps, Options{StatePath: statePath}).Import(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Expenses)
	assert.Zero(t, retry.Duplicates)
}

func TestImport_ArchiveFailure(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	deps, mem := newDeps(t)
	deps.Archiver = &fakeArchiver{err: errors.New("bucket missing")}

	report, err := newPipeline(t, deps, Options{}).Import(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Files[0].Error, "bucket missing")
	assert.Zero(t, mem.Len(domain.CollectionExpenses))
}

func TestImport_Errors(t *testing.T) {
	deps, _ := newDeps(t)

	_, err := newPipeline(t, deps, Options{}).Import(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = newPipeline(t, deps, Options{}).Import(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "relay.csv"), relayCSV)
	_, err = newPipeline(t, deps, Options{}).Import(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_WritesNothing(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	deps, mem := newDeps(t)

	result, err := newPipeline(t, deps, Options{}).Load(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, result.Expenses, 2)
	assert.Empty(t, result.Revenues)
	assert.Equal(t, 1, result.Ignored)
	for _, e := range result.Expenses {
		assert.NotEmpty(t, e.ID, "records come back with their derived ids")
		assert.Equal(t, "cochran", e.PropertyID)
	}
	assert.Zero(t, mem.Len(domain.CollectionExpenses))
}

func TestLoad_AnyFailureFailsTheCall(t *testing.T) {
	root := t.TempDir()
	writeExport(t, filepath.Join(root, "a", "unknown.csv"), "foo,bar\n1,2\n")
	writeExport(t, filepath.Join(root, "cochran", "relay.csv"), relayCSV)
	deps, _ := newDeps(t)

	_, err := newPipeline(t, deps, Options{}).Load(context.Background(), root)
	assert.ErrorContains(t, err, "no parser found")

	_, err = newPipeline(t, deps, Options{}).Load(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestNew_Validation(t *testing.T) {
	deps, _ := newDeps(t)

	_, err := New(Deps{Store: deps.Store}, Options{})
	assert.Error(t, err)

	_, err = New(Deps{Registry: deps.Registry}, Options{})
	assert.Error(t, err)

	_, err = New(Deps{Registry: deps.Registry}, Options{DryRun: true})
	assert.NoError(t, err)
}
