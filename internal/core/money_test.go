package core

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1.00", true},
		{"1.0", "1.00", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.50", true},
		{"0", "0.00", true},
		{"-1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var tx struct {
		Amount Money `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount": 50}`), &tx); err != nil {
		t.Fatalf("number: %v", err)
	}
	if !tx.Amount.Equal(NewMoney(50)) {
		t.Fatalf("expected 50, got %s", tx.Amount)
	}

	if err := json.Unmarshal([]byte(`{"amount": "12.5"}`), &tx); err != nil {
		t.Fatalf("string: %v", err)
	}
	if tx.Amount.String() != "12.50" {
		t.Fatalf("expected 12.50, got %s", tx.Amount)
	}

	out, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"amount":12.5}` {
		t.Fatalf("amount should encode as a bare number, got %s", out)
	}

	if err := json.Unmarshal([]byte(`{"amount": "x"}`), &tx); err == nil {
		t.Fatalf("expected error for non-numeric string")
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := NewMoney(10.10)
	b := NewMoney(0.20)
	if got := a.Add(b).String(); got != "10.30" {
		t.Fatalf("expected 10.30, got %s", got)
	}
	if got := b.Sub(a); !got.IsNegative() {
		t.Fatalf("expected negative, got %s", got)
	}
	if a.Cmp(b) <= 0 {
		t.Fatalf("expected a > b")
	}
}
