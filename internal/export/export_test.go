package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/core"
)

var exportTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sample() core.LocalData {
	d := core.EmptyData(core.DefaultUser("u1", "u1@example.com", "Ada", "Europe/Rome", exportTime))
	d.Transactions = []core.Transaction{
		{ID: "t1", Type: core.Expense, Amount: core.NewMoney(12.5), Description: `Pizza "Margherita", large`,
			Category: "Food & Dining", Date: "2024-03-01", CreatedAt: "2024-03-01T10:00:00.000Z"},
		{ID: "t2", Type: core.Income, Amount: core.NewMoney(3000), Description: "Salary",
			Category: "Salary", Date: "2024-03-02", CreatedAt: "2024-03-02T10:00:00.000Z"},
	}
	return d
}

func TestWriteCSV_QuotesAndHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample().Transactions))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Type", "Category", "Description", "Amount", "Created At"}, records[0])
	assert.Equal(t, `Pizza "Margherita", large`, records[1][3])
	assert.Equal(t, "12.50", records[1][4])
	assert.Equal(t, "income", records[2][1])
}

func TestJSONRoundTrip(t *testing.T) {
	body, err := Render(JSON, sample(), exportTime)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"version": "1.0.0"`)
	assert.Contains(t, string(body), `"exportDate": "2024-03-01T12:00:00.000Z"`)

	got, err := Import(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Len(t, got.Transactions, 2)
	assert.Len(t, got.Categories, len(core.DefaultCategories()))
	assert.Equal(t, "u1", got.User.ID)
	assert.Equal(t, "12.50", got.Transactions[0].Amount.String())
}

func TestImport_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "not json", body: "{", want: ErrInvalidImport},
		{name: "bad transaction", body: `{"transactions":[{"id":"t1","type":"gift","amount":1,"description":"x","category":"c","date":"2024-01-01"}]}`, want: core.ErrInvalidType},
		{name: "missing id", body: `{"categories":[{"name":"Pets","type":"expense"}]}`, want: core.ErrEmptyID},
		{name: "bad budget period", body: `{"budgets":[{"id":"b1","category":"Food","amount":1,"period":"weekly","startDate":"2024-01-01"}]}`, want: core.ErrInvalidPeriod},
		{name: "bad theme", body: `{"user":{"id":"u1","preferences":{"theme":"neon"}}}`, want: core.ErrInvalidTheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidImport)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, "budget-transactions-2024-03-01.csv", f.FileName(exportTime))
	assert.Equal(t, "budget-data-2024-03-01.json", JSON.FileName(exportTime))

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(filepath.Join(dir, "out"), CSV)
	sink.now = func() time.Time { return exportTime }

	require.NoError(t, sink.Export(context.Background(), "u1", sample()))

	body, err := os.ReadFile(filepath.Join(dir, "out", "budget-transactions-2024-03-01.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "Date,Type,Category"))
}

type fakePutter struct {
	rows []TransactionRow
	err  error
}

func (f *fakePutter) Put(_ context.Context, src any) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, src.([]TransactionRow)...)
	return nil
}

func TestBigQuerySink(t *testing.T) {
	put := &fakePutter{}
	sink := &BigQuerySink{inserter: put, now: func() time.Time { return exportTime }}

	require.NoError(t, sink.Export(context.Background(), "u1", sample()))
	require.Len(t, put.rows, 2)
	assert.Equal(t, "u1", put.rows[0].UserID)
	assert.InDelta(t, 12.5, put.rows[0].Amount, 0.0001)

	values, insertID, err := put.rows[0].Save()
	require.NoError(t, err)
	assert.Equal(t, "t1", values["transaction_id"])
	assert.Equal(t, "u1/t1/2024-03-01T12:00:00Z", insertID)

	put.err = errors.New("quota")
	assert.Error(t, sink.Export(context.Background(), "u1", sample()))
}

type fakeValues struct {
	cleared string
	rng     string
	rows    [][]any
}

func (f *fakeValues) Clear(_ context.Context, rng string) error { f.cleared = rng; return nil }
func (f *fakeValues) Update(_ context.Context, rng string, rows [][]any) error {
	f.rng, f.rows = rng, rows
	return nil
}

func TestSheetsSink(t *testing.T) {
	vals := &fakeValues{}
	sink := &SheetsSink{values: vals, sheetName: "Transactions"}

	require.NoError(t, sink.Export(context.Background(), "u1", sample()))

	assert.Equal(t, "Transactions!A:F", vals.cleared)
	assert.Equal(t, "Transactions!A1:F3", vals.rng)
	require.Len(t, vals.rows, 3)
	assert.Equal(t, "Date", vals.rows[0][0])
	assert.Equal(t, 3000.0, vals.rows[2][4])
}

func TestWatcher_ImportsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var imported []core.LocalData
	w := NewWatcher(dir, 20*time.Millisecond, func(_ context.Context, _ string, d core.LocalData) error {
		mu.Lock()
		defer mu.Unlock()
		imported = append(imported, d)
		return nil
	}, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	body, err := Render(JSON, sample(), exportTime)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backup.json"), body, 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(imported) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, imported[0].Transactions, 2)
}
