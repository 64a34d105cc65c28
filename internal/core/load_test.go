package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/behavioretl/internal/metrics"
)

// fakeStore records AppendRows calls. A call fails with failIDs[id] when the
// first row's UserId is id.
type fakeStore struct {
	mu      sync.Mutex
	calls   int
	tables  []string
	rows    [][]any
	err     error
	failIDs map[string]error
}

func (s *fakeStore) AppendRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.err != nil {
		return 0, s.err
	}
	if len(rows) > 0 {
		if id, ok := rows[0][0].(pgtype.Text); ok {
			if err := s.failIDs[id.String]; err != nil {
				return 0, err
			}
		}
	}
	s.tables = append(s.tables, table)
	s.rows = append(s.rows, rows...)
	return int64(len(rows)), nil
}

func testDefinition() TableDefinition {
	return TableDefinition{
		Info:        TableInfo{Key: "test_behavior", Table: "UserBehaviorData"},
		CopyColumns: DestinationColumnNames(),
		CopyRow: func(r TransformedRecord) []any {
			return []any{
				r.UserID, r.DeviceModel, r.OperatingSystem, r.AppUsageTimeMinPerDay,
				r.ScreenOnTimeMinPerDay, r.BatteryDrainPerDay, r.AppsInstalledCount,
				r.DataUsagePerDay, r.UserAge, r.UserGender, r.BehaviorClass,
				r.BehaviorLabel, r.BatteryEfficiency,
			}
		},
		RecordID: func(r TransformedRecord) string { return r.UserID.String },
	}
}

func newTestLoader(t *testing.T, cfg LoaderConfig, m *metrics.Recorder) *Loader {
	t.Helper()
	l, err := NewLoader(testDefinition(), cfg, m)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return l
}

func transformedSet(source string, ids ...string) RecordSet[TransformedRecord] {
	set := RecordSet[TransformedRecord]{Source: source}
	for _, id := range ids {
		set.Records = append(set.Records, TransformedRecord{
			UserID:        pgtype.Text{String: id, Valid: true},
			BehaviorClass: 1,
		})
	}
	return set
}

func TestLoader_Success(t *testing.T) {
	store := &fakeStore{}
	m := metrics.New()
	l := newTestLoader(t, LoaderConfig{}, m)

	res := l.Load(context.Background(), transformedSet("a.csv", "1", "2"), store)

	if !res.OK() {
		t.Fatalf("Load: %v", res.Err)
	}
	if res.Rows != 2 {
		t.Errorf("Rows = %d, want 2", res.Rows)
	}
	if len(res.IDs) != 2 || res.IDs[0] != "1" || res.IDs[1] != "2" {
		t.Errorf("IDs = %v, want [1 2]", res.IDs)
	}
	if res.Source != "a.csv" || res.Table != "UserBehaviorData" {
		t.Errorf("result = %+v", res)
	}
	if len(store.rows[0]) != len(DestinationColumnNames()) {
		t.Errorf("row width = %d, want %d", len(store.rows[0]), len(DestinationColumnNames()))
	}
	if got := testutil.CollectAndCount(m.LoadLatency); got != 1 {
		t.Errorf("load latency series = %d, want 1", got)
	}
}

func TestLoader_TableOverride(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoader(t, LoaderConfig{Table: "UserBehaviorStaging"}, nil)

	res := l.Load(context.Background(), transformedSet("a.csv", "1"), store)

	if !res.OK() || store.tables[0] != "UserBehaviorStaging" {
		t.Errorf("table = %v, err = %v, want UserBehaviorStaging", store.tables, res.Err)
	}
	if l.Table() != "UserBehaviorStaging" {
		t.Errorf("Table() = %q", l.Table())
	}
}

func TestLoader_EmptySet(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoader(t, LoaderConfig{}, nil)

	res := l.Load(context.Background(), RecordSet[TransformedRecord]{Source: "empty.csv"}, store)

	if !res.OK() || res.Rows != 0 || len(res.IDs) != 0 {
		t.Errorf("result = %+v, want zero-row success", res)
	}
	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
}

func TestLoader_StoreFailure(t *testing.T) {
	storeErr := errors.New("connection reset by peer")
	store := &fakeStore{err: storeErr}
	l := newTestLoader(t, LoaderConfig{}, nil)

	res := l.Load(context.Background(), transformedSet("a.csv", "1"), store)

	if res.OK() {
		t.Fatal("Load: want failure")
	}
	var le *LoadError
	if !errors.As(res.Err, &le) {
		t.Fatalf("Err = %T, want *LoadError", res.Err)
	}
	if le.Source != "a.csv" || le.Rows != 1 {
		t.Errorf("LoadError = %+v", le)
	}
	if !errors.Is(res.Err, storeErr) {
		t.Errorf("Err does not wrap store error: %v", res.Err)
	}
	if len(res.IDs) != 0 || res.Rows != 0 {
		t.Errorf("failed load reported IDs %v, rows %d", res.IDs, res.Rows)
	}
}

func TestLoader_Timeout(t *testing.T) {
	store := &blockingStore{}
	l := newTestLoader(t, LoaderConfig{Timeout: 20 * time.Millisecond}, nil)

	res := l.Load(context.Background(), transformedSet("slow.csv", "1"), store)

	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Err)
	}
}

type blockingStore struct{}

func (blockingStore) AppendRows(ctx context.Context, _ string, _ []string, _ [][]any) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestLoader_BreakerOpens(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	l := newTestLoader(t, LoaderConfig{BreakerFailures: 2, BreakerTimeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := l.Load(ctx, transformedSet("a.csv", "1"), store)
		if errors.Is(res.Err, ErrStoreUnavailable) {
			t.Fatalf("load %d: breaker open too early", i)
		}
	}

	res := l.Load(ctx, transformedSet("b.csv", "2"), store)
	if !errors.Is(res.Err, ErrStoreUnavailable) {
		t.Fatalf("Err = %v, want ErrStoreUnavailable", res.Err)
	}
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2 (open breaker fails fast)", store.calls)
	}
	if got := MapError(res.Err).Code; got != "ETL001" {
		t.Errorf("code = %s, want ETL001", got)
	}
}

func TestLoader_BreakerIgnoresCancellation(t *testing.T) {
	store := &fakeStore{}
	l := newTestLoader(t, LoaderConfig{BreakerFailures: 1, BreakerTimeout: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Load(ctx, transformedSet("a.csv", "1"), store)

	res := l.Load(context.Background(), transformedSet("b.csv", "2"), store)
	if !res.OK() {
		t.Errorf("Load after cancellation: %v, want success", res.Err)
	}
}

func TestNewLoader_InvalidDefinition(t *testing.T) {
	_, err := NewLoader(TableDefinition{Info: TableInfo{Key: "x"}}, LoaderConfig{}, nil)
	if err == nil {
		t.Error("NewLoader with incomplete definition: want error")
	}
}
