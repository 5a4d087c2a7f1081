package quickbooks

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
	"github.com/rumor-ml/commons.systems/strdash/internal/rules"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
)

// LookbackYears bounds how far back purchases and deposits are synced
const LookbackYears = 2

// accountingRules extend the shared categorizer with wording that only
// shows up in QuickBooks account and vendor names.
var accountingRules = []rules.Rule{
	{Name: "qb-edison", Keywords: []string{" sce "}, Priority: 500, Category: string(domain.CategoryElectric)},
	{Name: "qb-association", Keywords: []string{"association"}, Priority: 300, Category: string(domain.CategoryHOA)},
	{Name: "qb-tax", Keywords: []string{"tax"}, Priority: 250, Category: string(domain.CategoryPropertyTax)},
	{Name: "qb-stock", Keywords: []string{"stock"}, Priority: 400, Category: string(domain.CategorySupplies)},
	{Name: "qb-platforms", Keywords: []string{"airbnb"}, Priority: 100, Category: string(domain.CategoryPropertyManagement)},
}

// SyncResult counts what one sync wrote
type SyncResult struct {
	Expenses     int       `json:"expenses"`
	Revenue      int       `json:"revenue"`
	BankAccounts int       `json:"bankAccounts"`
	Skipped      int       `json:"skipped"`
	Timestamp    time.Time `json:"timestamp"`
}

// Syncer copies QuickBooks transactions into the store
type Syncer struct {
	client  *Client
	store   store.Store
	catalog *property.Catalog
	engine  *rules.Engine
	cal     *domain.Calendar
	now     func() time.Time
}

// NewSyncer layers the accounting keywords over base and returns a syncer
func NewSyncer(client *Client, s store.Store, catalog *property.Catalog, base *rules.Engine, cal *domain.Calendar) (*Syncer, error) {
	engine, err := rules.NewEngineFromRules(append(base.GetRules(), accountingRules...))
	if err != nil {
		return nil, fmt.Errorf("build accounting rules: %w", err)
	}
	return &Syncer{
		client:  client,
		store:   s,
		catalog: catalog,
		engine:  engine,
		cal:     cal,
		now:     time.Now,
	}, nil
}

// WithClock replaces time.Now for the lookback window and sync stamps
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// Sync pulls expenses, revenue and bank balances, then records the run on
// the settings document. Each step is a merge upsert keyed by qb_<id>, so
// reruns overwrite rather than duplicate.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	log := logger.FromContext(ctx).With().Str("component", "quickbooks").Logger()
	now := s.now()
	since := s.cal.Normalize(now).AddDate(-LookbackYears, 0, 0)
	result := &SyncResult{Timestamp: now.UTC()}

	n, skipped, err := s.syncExpenses(ctx, since, now)
	if err != nil {
		return nil, err
	}
	result.Expenses, result.Skipped = n, result.Skipped+skipped
	log.Info().Int("count", n).Int("skipped", skipped).Msg("synced expenses")

	n, skipped, err = s.syncRevenue(ctx, since, now)
	if err != nil {
		return nil, err
	}
	result.Revenue, result.Skipped = n, result.Skipped+skipped
	log.Info().Int("count", n).Int("skipped", skipped).Msg("synced revenue")

	if result.BankAccounts, err = s.syncAccounts(ctx, now); err != nil {
		return nil, err
	}
	log.Info().Int("count", result.BankAccounts).Msg("synced bank accounts")

	err = s.store.Upsert(ctx, domain.CollectionSettings, settingsDoc, domain.Fields{
		"lastSync": now,
		"lastSyncResults": map[string]interface{}{
			"expenses":     result.Expenses,
			"revenue":      result.Revenue,
			"bankAccounts": result.BankAccounts,
			"skipped":      result.Skipped,
			"timestamp":    result.Timestamp.Format(time.RFC3339),
		},
	}, "lastSync", "lastSyncResults")
	if err != nil {
		return nil, fmt.Errorf("record sync results: %w", err)
	}
	return result, nil
}

func (s *Syncer) syncExpenses(ctx context.Context, since, now time.Time) (int, int, error) {
	purchases, err := queryAll[Purchase](ctx, s.client, "Purchase", txnDateSince(since))
	if err != nil {
		return 0, 0, err
	}

	log := logger.FromContext(ctx)
	ops := make([]store.Op, 0, len(purchases))
	skipped := 0
	for _, p := range purchases {
		e, err := s.expense(p, now)
		if err != nil {
			log.Debug().Err(err).Str("qbId", p.ID).Msg("skipping purchase")
			skipped++
			continue
		}
		ops = append(ops, store.Merge(e.ID, withSyncStamp(e.ToFields(), p.ID, now)))
	}
	n, err := store.WriteChunked(ctx, s.store, domain.CollectionExpenses, ops)
	if err != nil {
		return n, skipped, fmt.Errorf("write expenses: %w", err)
	}
	return n, skipped, nil
}

func (s *Syncer) syncRevenue(ctx context.Context, since, now time.Time) (int, int, error) {
	deposits, err := queryAll[Deposit](ctx, s.client, "Deposit", txnDateSince(since))
	if err != nil {
		return 0, 0, err
	}

	log := logger.FromContext(ctx)
	ops := make([]store.Op, 0, len(deposits))
	skipped := 0
	for _, d := range deposits {
		r, err := s.revenue(d, now)
		if err != nil {
			log.Debug().Err(err).Str("qbId", d.ID).Msg("skipping deposit")
			skipped++
			continue
		}
		ops = append(ops, store.Merge(r.ID, withSyncStamp(r.ToFields(), d.ID, now)))
	}
	n, err := store.WriteChunked(ctx, s.store, domain.CollectionRevenue, ops)
	if err != nil {
		return n, skipped, fmt.Errorf("write revenue: %w", err)
	}
	return n, skipped, nil
}

func (s *Syncer) syncAccounts(ctx context.Context, now time.Time) (int, error) {
	accounts, err := queryAll[Account](ctx, s.client, "Account", " WHERE AccountType = 'Bank'")
	if err != nil {
		return 0, err
	}
	ops := make([]store.Op, 0, len(accounts))
	for _, a := range accounts {
		acct := bankAccount(a, now)
		ops = append(ops, store.Merge(acct.ID, withSyncStamp(acct.ToFields(), a.ID, now)))
	}
	n, err := store.WriteChunked(ctx, s.store, domain.CollectionBankAccounts, ops)
	if err != nil {
		return n, fmt.Errorf("write bank accounts: %w", err)
	}
	return n, nil
}

func (s *Syncer) expense(p Purchase, now time.Time) (*domain.Expense, error) {
	date, err := s.cal.Parse(p.TxnDate, "2006-01-02")
	if err != nil {
		return nil, err
	}
	account := refName(p.AccountRef)
	vendor := refName(p.EntityRef)
	if vendor == "" {
		vendor = "Unknown"
	}
	note := p.PrivateNote
	if note == "" {
		note = p.Memo
	}

	e, err := domain.NewExpense(date, domain.RoundCents(math.Abs(p.TotalAmt)),
		s.categorize(account, vendor, note), vendor, note,
		s.catalog.Match(vendor+" "+note, refName(p.ClassRef)))
	if err != nil {
		return nil, err
	}
	e.ID = externalID(p.ID)
	e.ExternalID = e.ID
	e.Subcategory = account
	e.ImportedAt = now
	return e, nil
}

// categorize matches account, vendor and memo together; an account named
// after a taxonomy category is the fallback.
func (s *Syncer) categorize(account, vendor, note string) domain.Category {
	fallback := domain.CategoryOther
	if c := domain.Category(account); domain.ValidateCategory(c) {
		fallback = c
	}
	return s.engine.Categorize(strings.Join([]string{account, vendor, note}, " "), fallback)
}

func (s *Syncer) revenue(d Deposit, now time.Time) (*domain.Revenue, error) {
	date, err := s.cal.Parse(d.TxnDate, "2006-01-02")
	if err != nil {
		return nil, err
	}
	amount := domain.RoundCents(math.Abs(d.TotalAmt))
	r, err := domain.NewRevenue(date, amount, amount, depositSource(d.PrivateNote),
		s.catalog.Match(d.PrivateNote, refName(d.ClassRef)), d.PrivateNote)
	if err != nil {
		return nil, err
	}
	r.ID = externalID(d.ID)
	r.ExternalID = r.ID
	r.ImportedAt = now
	return r, nil
}

func bankAccount(a Account, now time.Time) *domain.BankAccount {
	kind := strings.ToLower(a.AccountSubType)
	if kind == "" {
		kind = "checking"
	}
	return &domain.BankAccount{
		ID:          externalID(a.ID),
		Name:        a.Name,
		Type:        kind,
		Balance:     a.CurrentBalance,
		Active:      a.Active,
		ExternalID:  externalID(a.ID),
		LastUpdated: now,
	}
}

// depositSource reads the booking platform from a deposit memo
func depositSource(note string) domain.Source {
	note = strings.ToLower(note)
	switch {
	case strings.Contains(note, "airbnb"):
		return domain.SourceAirbnb
	case strings.Contains(note, "direct"), strings.Contains(note, "booking"):
		return domain.SourceDirect
	case strings.Contains(note, "vrbo"):
		return domain.SourceVRBO
	}
	return domain.SourceOther
}

func externalID(qbID string) string {
	return "qb_" + qbID
}

func txnDateSince(since time.Time) string {
	return fmt.Sprintf(" WHERE TxnDate >= '%s'", since.Format("2006-01-02"))
}

func withSyncStamp(f domain.Fields, qbID string, now time.Time) domain.Fields {
	f["qbId"] = qbID
	f["qbSyncedAt"] = now
	return f
}
