package export

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"budgetsync/internal/core"
)

// TransactionRow is the BigQuery shape of one transaction.
type TransactionRow struct {
	UserID      string    `bigquery:"user_id"`
	ID          string    `bigquery:"transaction_id"`
	Type        string    `bigquery:"type"`
	Amount      float64   `bigquery:"amount"`
	Description string    `bigquery:"description"`
	Category    string    `bigquery:"category"`
	Date        string    `bigquery:"date"`
	CreatedAt   string    `bigquery:"created_at"`
	ExportedAt  time.Time `bigquery:"exported_at"`
}

// insertID keeps retried streaming inserts idempotent per export run.
func (r TransactionRow) insertID() string {
	return r.UserID + "/" + r.ID + "/" + r.ExportedAt.Format(time.RFC3339)
}

// Save implements bigquery.ValueSaver.
func (r TransactionRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"user_id":        r.UserID,
		"transaction_id": r.ID,
		"type":           r.Type,
		"amount":         r.Amount,
		"description":    r.Description,
		"category":       r.Category,
		"date":           r.Date,
		"created_at":     r.CreatedAt,
		"exported_at":    r.ExportedAt,
	}, r.insertID(), nil
}

func transactionRows(uid string, txs []core.Transaction, at time.Time) []TransactionRow {
	rows := make([]TransactionRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, TransactionRow{
			UserID:      uid,
			ID:          t.ID,
			Type:        string(t.Type),
			Amount:      t.Amount.Float64(),
			Description: t.Description,
			Category:    t.Category,
			Date:        t.Date,
			CreatedAt:   t.CreatedAt,
			ExportedAt:  at,
		})
	}
	return rows
}

// rowPutter is satisfied by *bigquery.Inserter.
type rowPutter interface {
	Put(ctx context.Context, src any) error
}

// BigQuerySink streams transactions into a table.
type BigQuerySink struct {
	client   *bigquery.Client
	inserter rowPutter
	now      func() time.Time
}

func NewBigQuerySink(ctx context.Context, project, dataset, table string) (*BigQuerySink, error) {
	if project == "" {
		return nil, fmt.Errorf("bigquery sink: project is required")
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &BigQuerySink{
		client:   client,
		inserter: client.Dataset(dataset).Table(table).Inserter(),
		now:      time.Now,
	}, nil
}

func (s *BigQuerySink) Name() string { return "bigquery" }

func (s *BigQuerySink) Export(ctx context.Context, uid string, d core.LocalData) error {
	rows := transactionRows(uid, d.Transactions, s.now().UTC())
	if len(rows) == 0 {
		return nil
	}
	if err := s.inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("insert %d rows: %w", len(rows), err)
	}
	return nil
}

func (s *BigQuerySink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
