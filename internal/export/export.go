// Package export renders a user's budget data as CSV or JSON, ships it to
// a sink and reads JSON exports back in.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"budgetsync/internal/core"
)

const Version = "1.0.0"

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case CSV, JSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q: must be csv or json", s)
	}
}

func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// FileName is the download name for an export taken at now.
func (f Format) FileName(now time.Time) string {
	day := now.UTC().Format(core.DateLayout)
	if f == CSV {
		return "budget-transactions-" + day + ".csv"
	}
	return "budget-data-" + day + ".json"
}

// Data is the JSON export document.
type Data struct {
	Transactions []core.Transaction `json:"transactions"`
	Categories   []core.Category    `json:"categories"`
	Budgets      []core.Budget      `json:"budgets"`
	User         core.User          `json:"user"`
	ExportDate   string             `json:"exportDate"`
	Version      string             `json:"version"`
}

func NewData(d core.LocalData, now time.Time) Data {
	d = d.Clone()
	return Data{
		Transactions: d.Transactions,
		Categories:   d.Categories,
		Budgets:      d.Budgets,
		User:         d.User,
		ExportDate:   core.FormatTimestamp(now),
		Version:      Version,
	}
}

var csvHeader = []string{"Date", "Type", "Category", "Description", "Amount", "Created At"}

// WriteCSV writes one row per transaction.
func WriteCSV(w io.Writer, txs []core.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		if err := cw.Write(transactionRecord(t)); err != nil {
			return fmt.Errorf("write csv row %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func transactionRecord(t core.Transaction) []string {
	return []string{t.Date, string(t.Type), t.Category, t.Description, t.Amount.String(), t.CreatedAt}
}

func WriteJSON(w io.Writer, d core.LocalData, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewData(d, now)); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Render returns the export of d in format f.
func Render(f Format, d core.LocalData, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case CSV:
		err = WriteCSV(&buf, d.Transactions)
	case JSON:
		err = WriteJSON(&buf, d, now)
	default:
		err = fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var ErrInvalidImport = errors.New("invalid import file")

// Import parses a JSON export. Every entity is validated; the first invalid
// one fails the whole import.
func Import(r io.Reader) (core.LocalData, error) {
	var d Data
	dec := json.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return core.LocalData{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	for _, t := range d.Transactions {
		if err := validate(t.ID, t.Validate()); err != nil {
			return core.LocalData{}, fmt.Errorf("transaction: %w", err)
		}
	}
	for _, c := range d.Categories {
		if err := validate(c.ID, c.Validate()); err != nil {
			return core.LocalData{}, fmt.Errorf("category: %w", err)
		}
	}
	for _, b := range d.Budgets {
		if err := validate(b.ID, b.Validate()); err != nil {
			return core.LocalData{}, fmt.Errorf("budget: %w", err)
		}
	}
	if !d.User.IsZero() {
		if err := d.User.Validate(); err != nil {
			return core.LocalData{}, fmt.Errorf("%w: user: %w", ErrInvalidImport, err)
		}
	}

	out := core.LocalData{
		Transactions: d.Transactions,
		Categories:   d.Categories,
		Budgets:      d.Budgets,
		User:         d.User,
	}
	return out.Clone(), nil
}

func validate(id string, err error) error {
	if id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidImport, core.ErrEmptyID)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidImport, id, err)
	}
	return nil
}
