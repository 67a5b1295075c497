package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetsync/internal/core"
)

// valuesWriter is the slice of the Sheets API the sink uses.
type valuesWriter interface {
	Clear(ctx context.Context, rng string) error
	Update(ctx context.Context, rng string, rows [][]any) error
}

type sheetsValues struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func (v sheetsValues) Clear(ctx context.Context, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(v.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (v sheetsValues) Update(ctx context.Context, rng string, rows [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Update(v.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// SheetsSink replaces the contents of one sheet with the transaction table.
type SheetsSink struct {
	values    valuesWriter
	sheetName string
}

// NewSheetsSink authenticates with a service account. credentialsFile falls
// back to GOOGLE_SERVICE_ACCOUNT_JSON, then GOOGLE_APPLICATION_CREDENTIALS.
func NewSheetsSink(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*SheetsSink, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Transactions"
	}
	creds, err := serviceAccountJSON(credentialsFile)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsSink{
		values:    sheetsValues{svc: svc, spreadsheetID: spreadsheetID},
		sheetName: sheetName,
	}, nil
}

func serviceAccountJSON(file string) ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" && file == "" {
		return []byte(inline), nil
	}
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func (s *SheetsSink) Name() string { return "sheets" }

func sheetRows(txs []core.Transaction) [][]any {
	rows := make([][]any, 0, len(txs)+1)
	header := make([]any, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	rows = append(rows, header)
	for _, t := range txs {
		rows = append(rows, []any{t.Date, string(t.Type), t.Category, t.Description, t.Amount.Float64(), t.CreatedAt})
	}
	return rows
}

func (s *SheetsSink) Export(ctx context.Context, _ string, d core.LocalData) error {
	if err := s.values.Clear(ctx, s.sheetName+"!A:F"); err != nil {
		return fmt.Errorf("clear sheet %s: %w", s.sheetName, err)
	}
	rows := sheetRows(d.Transactions)
	rng := fmt.Sprintf("%s!A1:F%d", s.sheetName, len(rows))
	if err := s.values.Update(ctx, rng, rows); err != nil {
		return fmt.Errorf("update sheet %s: %w", s.sheetName, err)
	}
	return nil
}
