package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"expenseflow/internal/core"
	"expenseflow/internal/kv"
	"expenseflow/internal/kv/memory"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// counterIDs returns a deterministic id generator: e-1, e-2, ...
func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("e-%d", n)
	}
}

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	l := New(store, WithClock(testClock), WithIDGenerator(counterIDs()))
	if err := l.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return l, store
}

// newEmptyLedger initializes a ledger over a store that already holds an
// empty collection, so the seed path is skipped.
func newEmptyLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	if err := store.Set(context.Background(), kv.KeyExpenses, []byte(`[]`)); err != nil {
		t.Fatalf("prime store: %v", err)
	}
	l := New(store, WithClock(testClock), WithIDGenerator(counterIDs()))
	if err := l.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return l, store
}

func mustAdd(t *testing.T, l *Ledger, in Input) core.Expense {
	t.Helper()
	e, err := l.Add(context.Background(), in)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return e
}

func TestInitSeedsDeterministically(t *testing.T) {
	l1, _ := newTestLedger(t)
	l2, _ := newTestLedger(t)

	want := seedExpenses(core.DateOf(testNow))
	if len(want) != 3 {
		t.Fatalf("seed must have 3 records, has %d", len(want))
	}
	if !reflect.DeepEqual(l1.Expenses(), want) {
		t.Fatalf("seed mismatch:\n got %+v\nwant %+v", l1.Expenses(), want)
	}
	if !reflect.DeepEqual(l1.Expenses(), l2.Expenses()) {
		t.Fatalf("seed not deterministic across ledgers")
	}
}

func TestInitPersistsSeedImmediately(t *testing.T) {
	l, store := newTestLedger(t)

	data, ok, err := store.Get(context.Background(), kv.KeyExpenses)
	if err != nil || !ok {
		t.Fatalf("expected seed persisted, got ok=%v err=%v", ok, err)
	}
	if len(data) == 0 {
		t.Fatalf("persisted seed is empty")
	}

	// A second ledger over the same store must load, not re-seed.
	reloaded := New(store, WithClock(testClock))
	if err := reloaded.Init(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(reloaded.Expenses(), l.Expenses()) {
		t.Fatalf("reload mismatch")
	}
}

func TestAddAssignsDistinctIDs(t *testing.T) {
	l, _ := newEmptyLedger(t)

	seen := make(map[string]struct{})
	for i := 0; i < 25; i++ {
		e := mustAdd(t, l, Input{Title: "x", Amount: core.Money{Cents: int64(100 + i)}, Category: core.Other})
		if _, dup := seen[e.ID]; dup {
			t.Fatalf("id %q assigned twice", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
}

func TestAddDefaultsDateToToday(t *testing.T) {
	l, _ := newEmptyLedger(t)
	e := mustAdd(t, l, Input{Title: "x", Amount: core.Money{Cents: 100}, Category: core.Other})
	if e.Date.String() != "2026-08-15" {
		t.Fatalf("expected today, got %s", e.Date)
	}
	if e.IsDuplicate {
		t.Fatalf("fresh expense must not be flagged")
	}
}

func TestTotalInvariant(t *testing.T) {
	l, _ := newEmptyLedger(t)
	if got := l.Total(); got.Cents != 0 {
		t.Fatalf("empty total = %d, want 0", got.Cents)
	}

	a := mustAdd(t, l, Input{Title: "a", Amount: core.Money{Cents: 1250}, Category: core.Shopping})
	mustAdd(t, l, Input{Title: "b", Amount: core.Money{Cents: 99}, Category: core.Travel})
	if got := l.Total(); got.Cents != 1349 {
		t.Fatalf("total = %d, want 1349", got.Cents)
	}

	if ok, err := l.Delete(context.Background(), a.ID); !ok || err != nil {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if got := l.Total(); got.Cents != 99 {
		t.Fatalf("total after delete = %d, want 99", got.Cents)
	}
}

func TestDuplicateRule(t *testing.T) {
	d := core.NewDate(2026, 8, 10)

	cases := []struct {
		name string
		in   Input
		want bool
	}{
		{"same amount same category two days later", Input{Title: "n", Amount: core.Money{Cents: 1000}, Category: core.FoodAndDining, Date: d.AddDays(2)}, true},
		{"four days later", Input{Title: "n", Amount: core.Money{Cents: 1000}, Category: core.FoodAndDining, Date: d.AddDays(4)}, false},
		{"exactly three days later", Input{Title: "n", Amount: core.Money{Cents: 1000}, Category: core.FoodAndDining, Date: d.AddDays(3)}, false},
		{"one cent more", Input{Title: "n", Amount: core.Money{Cents: 1001}, Category: core.FoodAndDining, Date: d}, false},
		{"other category", Input{Title: "n", Amount: core.Money{Cents: 1000}, Category: core.Transportation, Date: d}, false},
		{"different title still matches", Input{Title: "completely different", Amount: core.Money{Cents: 1000}, Category: core.FoodAndDining, Date: d}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _ := newEmptyLedger(t)
			existing := mustAdd(t, l, Input{Title: "existing", Amount: core.Money{Cents: 1000}, Category: core.FoodAndDining, Date: d})

			added := mustAdd(t, l, tc.in)
			if added.IsDuplicate != tc.want {
				t.Fatalf("new record flag = %v, want %v", added.IsDuplicate, tc.want)
			}

			// The existing record is flagged reciprocally.
			var got core.Expense
			for _, e := range l.Expenses() {
				if e.ID == existing.ID {
					got = e
				}
			}
			if got.IsDuplicate != tc.want {
				t.Fatalf("existing record flag = %v, want %v", got.IsDuplicate, tc.want)
			}
		})
	}
}

func TestDuplicateRuleFlagsAllMatches(t *testing.T) {
	l, _ := newEmptyLedger(t)
	d := core.NewDate(2026, 8, 10)
	in := Input{Title: "t", Amount: core.Money{Cents: 500}, Category: core.Entertainment, Date: d}

	mustAdd(t, l, in)
	second := mustAdd(t, l, in)
	if !second.IsDuplicate {
		t.Fatalf("second entry should be flagged")
	}
	third := mustAdd(t, l, in)
	if !third.IsDuplicate {
		t.Fatalf("third entry should be flagged")
	}

	dups := l.Duplicates()
	if len(dups) != 3 {
		t.Fatalf("expected all 3 flagged, got %d", len(dups))
	}
	// Collection order is preserved.
	for i := 1; i < len(dups); i++ {
		if dups[i-1].ID >= dups[i].ID {
			t.Fatalf("duplicates out of collection order: %v", dups)
		}
	}
}

func TestDuplicateRuleNotRerunOnUpdate(t *testing.T) {
	l, _ := newEmptyLedger(t)
	d := core.NewDate(2026, 8, 10)
	mustAdd(t, l, Input{Title: "a", Amount: core.Money{Cents: 700}, Category: core.Business, Date: d})
	b := mustAdd(t, l, Input{Title: "b", Amount: core.Money{Cents: 900}, Category: core.Business, Date: d})

	// Make b's amount collide with a's. Update must not flag anything.
	amt := core.Money{Cents: 700}
	if ok, err := l.Update(context.Background(), b.ID, Patch{Amount: &amt}); !ok || err != nil {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	for _, e := range l.Expenses() {
		if e.IsDuplicate {
			t.Fatalf("update must not run duplicate detection, %s flagged", e.ID)
		}
	}
}

func TestMarkNotDuplicateIsOneSidedAndIdempotent(t *testing.T) {
	l, _ := newEmptyLedger(t)
	d := core.NewDate(2026, 8, 10)
	in := Input{Title: "t", Amount: core.Money{Cents: 500}, Category: core.Healthcare, Date: d}
	first := mustAdd(t, l, in)
	second := mustAdd(t, l, in)

	if ok, err := l.MarkNotDuplicate(context.Background(), first.ID); !ok || err != nil {
		t.Fatalf("override: ok=%v err=%v", ok, err)
	}

	// Only the overridden side is cleared.
	for _, e := range l.Expenses() {
		switch e.ID {
		case first.ID:
			if e.IsDuplicate {
				t.Fatalf("override did not clear flag")
			}
		case second.ID:
			if !e.IsDuplicate {
				t.Fatalf("override must not clear the paired record")
			}
		}
	}

	// Calling again on an already-clear record is a no-op.
	before := l.Expenses()
	if ok, err := l.MarkNotDuplicate(context.Background(), first.ID); !ok || err != nil {
		t.Fatalf("second override: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(before, l.Expenses()) {
		t.Fatalf("idempotent override changed the collection")
	}

	if ok, _ := l.MarkNotDuplicate(context.Background(), "nope"); ok {
		t.Fatalf("override of unknown id reported found")
	}
}

func TestUpdateMergesPartialFields(t *testing.T) {
	l, _ := newEmptyLedger(t)
	e := mustAdd(t, l, Input{
		Title:       "Lunch",
		Amount:      core.Money{Cents: 1200},
		Category:    core.FoodAndDining,
		Date:        core.NewDate(2026, 8, 1),
		Description: "team lunch",
	})

	title := "Team Lunch"
	cat := core.Business
	if ok, err := l.Update(context.Background(), e.ID, Patch{Title: &title, Category: &cat}); !ok || err != nil {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}

	got := l.Expenses()[0]
	if got.Title != "Team Lunch" || got.Category != core.Business {
		t.Fatalf("patched fields not applied: %+v", got)
	}
	if got.Amount.Cents != 1200 || got.Description != "team lunch" || got.Date.String() != "2026-08-01" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
}

func TestUpdateAndDeleteUnknownIDAreNoOps(t *testing.T) {
	l, _ := newTestLedger(t)
	before := l.Expenses()
	total := l.Total()

	title := "x"
	ok, err := l.Update(context.Background(), "missing", Patch{Title: &title})
	if ok || err != nil {
		t.Fatalf("update unknown: ok=%v err=%v", ok, err)
	}
	ok, err = l.Delete(context.Background(), "missing")
	if ok || err != nil {
		t.Fatalf("delete unknown: ok=%v err=%v", ok, err)
	}

	if !reflect.DeepEqual(before, l.Expenses()) {
		t.Fatalf("collection changed by unknown-id operations")
	}
	if l.Total() != total {
		t.Fatalf("total changed by unknown-id operations")
	}
}

func TestTotalByCategory(t *testing.T) {
	l, _ := newEmptyLedger(t)
	if got := l.TotalByCategory(); len(got) != 0 {
		t.Fatalf("empty collection should give empty mapping, got %v", got)
	}

	mustAdd(t, l, Input{Title: "a", Amount: core.Money{Cents: 100}, Category: core.Travel})
	mustAdd(t, l, Input{Title: "b", Amount: core.Money{Cents: 250}, Category: core.Travel})
	mustAdd(t, l, Input{Title: "c", Amount: core.Money{Cents: 40}, Category: core.Education})

	got := l.TotalByCategory()
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %v", got)
	}
	if got[core.Travel].Cents != 350 || got[core.Education].Cents != 40 {
		t.Fatalf("wrong sums: %v", got)
	}
	if _, present := got[core.Shopping]; present {
		t.Fatalf("category with no expenses must be absent")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	l, store := newEmptyLedger(t)
	mustAdd(t, l, Input{
		Title:       "With receipt",
		Amount:      core.Money{Cents: 4999},
		Category:    core.Shopping,
		Date:        core.NewDate(2026, 7, 4),
		Description: "gadget",
		Receipt:     &core.Receipt{Name: "r.jpg", Size: 4, MimeType: "image/jpeg", Data: []byte{9, 8, 7, 6}},
	})
	mustAdd(t, l, Input{Title: "Plain", Amount: core.Money{Cents: 100}, Category: core.Other})

	reloaded := New(store, WithClock(testClock))
	if err := reloaded.Init(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(l.Expenses(), reloaded.Expenses()) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", reloaded.Expenses(), l.Expenses())
	}
}

// failingStore wraps a working store and fails writes on demand.
type failingStore struct {
	*memory.Store
	fail bool
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.fail {
		return errors.New("quota exceeded")
	}
	return f.Store.Set(ctx, key, value)
}

func TestPersistFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: memory.New()}
	if err := fs.Store.Set(ctx, kv.KeyExpenses, []byte(`[]`)); err != nil {
		t.Fatalf("prime: %v", err)
	}
	l := New(fs, WithClock(testClock), WithIDGenerator(counterIDs()))
	if err := l.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	fs.fail = true
	e, err := l.Add(ctx, Input{Title: "kept", Amount: core.Money{Cents: 100}, Category: core.Other})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	// The record is in memory despite the failed write.
	if len(l.Expenses()) != 1 || l.Expenses()[0].ID != e.ID {
		t.Fatalf("record lost after failed persist: %+v", l.Expenses())
	}
	if l.Total().Cents != 100 {
		t.Fatalf("total = %d, want 100", l.Total().Cents)
	}

	// Session continues; the next successful write catches up.
	fs.fail = false
	mustAdd(t, l, Input{Title: "later", Amount: core.Money{Cents: 50}, Category: core.Other})
	data, ok, _ := fs.Store.Get(ctx, kv.KeyExpenses)
	if !ok || len(data) == 0 {
		t.Fatalf("expected catch-up persist")
	}
}

func TestSubscribeReceivesMutations(t *testing.T) {
	l, _ := newEmptyLedger(t)

	var got []EventKind
	l.Subscribe(func(e Event) { got = append(got, e.Kind) })

	e := mustAdd(t, l, Input{Title: "a", Amount: core.Money{Cents: 500}, Category: core.Other, Date: core.NewDate(2026, 8, 1)})
	mustAdd(t, l, Input{Title: "b", Amount: core.Money{Cents: 500}, Category: core.Other, Date: core.NewDate(2026, 8, 1)})
	title := "a2"
	l.Update(context.Background(), e.ID, Patch{Title: &title})
	l.MarkNotDuplicate(context.Background(), e.ID)
	l.Delete(context.Background(), e.ID)

	want := []EventKind{EventAdded, EventAdded, EventUpdated, EventFlagCleared, EventDeleted}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	// No notification for unknown-id no-ops.
	got = got[:0]
	l.Delete(context.Background(), "missing")
	if len(got) != 0 {
		t.Fatalf("unexpected events for no-op: %v", got)
	}
}

func TestSearch(t *testing.T) {
	l, _ := newEmptyLedger(t)
	mustAdd(t, l, Input{Title: "Coffee", Description: "morning", Amount: core.Money{Cents: 450}, Category: core.FoodAndDining, Date: core.NewDate(2026, 8, 3)})
	mustAdd(t, l, Input{Title: "Train ticket", Description: "commute", Amount: core.Money{Cents: 320}, Category: core.Transportation, Date: core.NewDate(2026, 8, 1)})
	mustAdd(t, l, Input{Title: "Books", Description: "coffee table book", Amount: core.Money{Cents: 2500}, Category: core.Shopping, Date: core.NewDate(2026, 8, 2)})

	// Default: everything, newest first.
	all := l.Search(Filter{})
	if len(all) != 3 || all[0].Title != "Coffee" || all[2].Title != "Train ticket" {
		t.Fatalf("default order wrong: %v", titles(all))
	}

	// Query matches title or description, case-insensitive.
	got := l.Search(Filter{Query: "COFFEE"})
	if len(got) != 2 {
		t.Fatalf("query match = %v", titles(got))
	}

	got = l.Search(Filter{Category: core.Transportation})
	if len(got) != 1 || got[0].Title != "Train ticket" {
		t.Fatalf("category filter = %v", titles(got))
	}

	got = l.Search(Filter{SortBy: SortByAmount, Order: Ascending})
	if got[0].Title != "Train ticket" || got[2].Title != "Books" {
		t.Fatalf("amount sort = %v", titles(got))
	}

	got = l.Search(Filter{SortBy: SortByTitle, Order: Ascending, Limit: 2})
	if len(got) != 2 || got[0].Title != "Books" || got[1].Title != "Coffee" {
		t.Fatalf("title sort with limit = %v", titles(got))
	}
}

func TestMonthlyTotalsAndTopCategories(t *testing.T) {
	l, _ := newEmptyLedger(t)
	mustAdd(t, l, Input{Title: "a", Amount: core.Money{Cents: 100}, Category: core.Travel, Date: core.NewDate(2026, 7, 10)})
	mustAdd(t, l, Input{Title: "b", Amount: core.Money{Cents: 200}, Category: core.Travel, Date: core.NewDate(2026, 8, 1)})
	mustAdd(t, l, Input{Title: "c", Amount: core.Money{Cents: 50}, Category: core.Education, Date: core.NewDate(2026, 8, 2)})
	mustAdd(t, l, Input{Title: "d", Amount: core.Money{Cents: 700}, Category: core.Business, Date: core.NewDate(2025, 12, 31)})

	months := l.MonthlyTotals()
	if len(months) != 3 {
		t.Fatalf("expected 3 months, got %v", months)
	}
	if months[0].Year != 2025 || months[0].Month != 12 || months[0].Total.Cents != 700 {
		t.Fatalf("oldest month wrong: %+v", months[0])
	}
	if months[2].Year != 2026 || months[2].Month != 8 || months[2].Total.Cents != 250 {
		t.Fatalf("newest month wrong: %+v", months[2])
	}

	top := l.TopCategories(2)
	if len(top) != 2 || top[0].Category != core.Business || top[1].Category != core.Travel {
		t.Fatalf("top categories wrong: %+v", top)
	}
}

func TestSummary(t *testing.T) {
	l, _ := newEmptyLedger(t)
	// testNow is 2026-08-15.
	mustAdd(t, l, Input{Title: "this month", Amount: core.Money{Cents: 300}, Category: core.Travel, Date: core.NewDate(2026, 8, 10)})
	mustAdd(t, l, Input{Title: "this month too", Amount: core.Money{Cents: 300}, Category: core.Travel, Date: core.NewDate(2026, 8, 11)})
	mustAdd(t, l, Input{Title: "last month", Amount: core.Money{Cents: 1000}, Category: core.Education, Date: core.NewDate(2026, 7, 10)})

	s := l.Summary()
	if s.Count != 3 || s.Total.Cents != 1600 {
		t.Fatalf("count/total wrong: %+v", s)
	}
	if s.ThisMonth.Cents != 600 || s.ThisMonthCount != 2 {
		t.Fatalf("this-month block wrong: %+v", s)
	}
	if s.Categories != 2 {
		t.Fatalf("categories wrong: %+v", s)
	}
	// The two August records collide under the duplicate rule (same
	// amount, same category, one day apart).
	if s.Duplicates != 2 {
		t.Fatalf("duplicates wrong: %+v", s)
	}
}

func titles(es []core.Expense) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Title
	}
	return out
}
