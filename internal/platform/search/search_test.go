package search

import (
	"strings"
	"testing"
)

func TestQuery_NoFilters(t *testing.T) {
	q := New("prescription", "id, status")
	q.OrderBy("created_at DESC")

	if got := q.CountSQL(); got != "SELECT COUNT(*) FROM prescription WHERE 1=1" {
		t.Errorf("CountSQL() = %q", got)
	}
	want := "SELECT id, status FROM prescription WHERE 1=1 ORDER BY created_at DESC LIMIT $1 OFFSET $2"
	if got := q.DataSQL(20, 0); got != want {
		t.Errorf("DataSQL() = %q, want %q", got, want)
	}
	args := q.DataArgs(20, 0)
	if len(args) != 2 || args[0] != 20 || args[1] != 0 {
		t.Errorf("DataArgs() = %v", args)
	}
}

func TestQuery_ExactParam(t *testing.T) {
	q := New("prescription", "id, status")
	q.ApplyParam(ParamConfig{Type: ParamExact, Column: "status"}, "pending")

	if !strings.Contains(q.CountSQL(), "status = $1") {
		t.Errorf("CountSQL() = %q, want status clause", q.CountSQL())
	}
	if len(q.CountArgs()) != 1 || q.CountArgs()[0] != "pending" {
		t.Errorf("CountArgs() = %v", q.CountArgs())
	}
}

func TestQuery_DatePrefixes(t *testing.T) {
	cases := []struct {
		value string
		op    string
		arg   string
	}{
		{"2026-01-01", "=", "2026-01-01"},
		{"gt2026-01-01", ">", "2026-01-01"},
		{"ge2026-01-01", ">=", "2026-01-01"},
		{"lt2026-01-01", "<", "2026-01-01"},
		{"le2026-01-01", "<=", "2026-01-01"},
	}
	for _, tc := range cases {
		q := New("batch", "id")
		q.ApplyParam(ParamConfig{Type: ParamDate, Column: "expiry_date"}, tc.value)
		want := "expiry_date " + tc.op + " $1"
		if !strings.Contains(q.CountSQL(), want) {
			t.Errorf("value %q: CountSQL() = %q, want %q", tc.value, q.CountSQL(), want)
		}
		if q.CountArgs()[0] != tc.arg {
			t.Errorf("value %q: arg = %v, want %q", tc.value, q.CountArgs()[0], tc.arg)
		}
	}
}

func TestQuery_StringParam(t *testing.T) {
	q := New("medication", "id, name")
	q.ApplyParam(ParamConfig{Type: ParamString, Column: "name"}, "para")

	if !strings.Contains(q.CountSQL(), "name ILIKE $1") {
		t.Errorf("CountSQL() = %q", q.CountSQL())
	}
	if q.CountArgs()[0] != "%para%" {
		t.Errorf("arg = %v, want %%para%%", q.CountArgs()[0])
	}
}

func TestQuery_BoolParam(t *testing.T) {
	q := New("medication", "id")
	q.ApplyParam(ParamConfig{Type: ParamBool, Column: "is_active"}, "true")
	if q.CountArgs()[0] != true {
		t.Errorf("arg = %v, want true", q.CountArgs()[0])
	}
}

func TestQuery_MultipleParams_Placeholders(t *testing.T) {
	q := New("wallet_transaction", "id")
	configs := map[string]ParamConfig{
		"kind":   {Type: ParamExact, Column: "transaction_type"},
		"wallet": {Type: ParamExact, Column: "wallet_id"},
	}
	q.ApplyParams(map[string]string{"kind": "debit", "wallet": "abc"}, configs)

	sql := q.DataSQL(10, 5)
	if !strings.Contains(sql, "$1") || !strings.Contains(sql, "$2") {
		t.Errorf("DataSQL() = %q, want two placeholders", sql)
	}
	if !strings.Contains(sql, "LIMIT $3 OFFSET $4") {
		t.Errorf("DataSQL() = %q, want LIMIT $3 OFFSET $4", sql)
	}
	args := q.DataArgs(10, 5)
	if len(args) != 4 {
		t.Fatalf("DataArgs() len = %d, want 4", len(args))
	}
}

func TestQuery_ApplySort(t *testing.T) {
	configs := map[string]ParamConfig{
		"expiry": {Type: ParamDate, Column: "expiry_date"},
		"name":   {Type: ParamString, Column: "name"},
	}

	q := New("batch", "id")
	q.ApplySort("-expiry,name", "created_at DESC", configs)
	want := "batch WHERE 1=1 ORDER BY expiry_date DESC, name ASC"
	if !strings.Contains(q.DataSQL(10, 0), want) {
		t.Errorf("DataSQL() = %q, want %q", q.DataSQL(10, 0), want)
	}

	q = New("batch", "id")
	q.ApplySort("bogus", "created_at DESC", configs)
	if !strings.Contains(q.DataSQL(10, 0), "ORDER BY created_at DESC") {
		t.Errorf("unknown sort field should fall back to default: %q", q.DataSQL(10, 0))
	}
}
