package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Record(ctx, Result{RunID: "a", Line: 1, Outcome: Pass})
	m.Record(ctx, Result{RunID: "b", Line: 2, Outcome: Fail})
	m.Record(ctx, Result{RunID: "a", Line: 3, Outcome: Fail})
	m.Record(ctx, Result{RunID: "a", Line: 4, Outcome: Info})

	a := m.Results("a")
	if len(a) != 3 || a[0].Line != 1 || a[2].Line != 4 {
		t.Errorf("Results(a) = %+v", a)
	}
	if all := m.Results(""); len(all) != 4 {
		t.Errorf("Results(\"\") returned %d", len(all))
	}
	if pass, fail := Tally(a); pass != 1 || fail != 1 {
		t.Errorf("Tally = %d, %d", pass, fail)
	}
}

type failing struct{}

func (failing) Record(context.Context, Result) error { return errors.New("disk full") }

func TestMulti(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	rec := Multi(a, b)
	if err := rec.Record(context.Background(), Result{RunID: "x"}); err != nil {
		t.Fatal(err)
	}
	if len(a.Results("x")) != 1 || len(b.Results("x")) != 1 {
		t.Error("result not recorded everywhere")
	}

	c := NewMemory()
	if err := Multi(failing{}, c).Record(context.Background(), Result{RunID: "y"}); err == nil {
		t.Error("error swallowed")
	}
	if len(c.Results("y")) != 0 {
		t.Error("recording continued after an error")
	}
}

func TestStoreSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "results.db")
	s, err := Open(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []Result{
		{RunID: "r1", Script: "boot.dts", Line: 6, Op: "expect", Device: "DUT", Outcome: Pass, Detail: "Version", Time: at},
		{RunID: "r1", Script: "boot.dts", Line: 9, Op: "expect", Device: "DUT", Outcome: Fail, Detail: "login:", Time: at},
		{RunID: "r2", Script: "other.dts", Line: 1, Op: "comment", Outcome: Info, Detail: "hello", Time: at},
	}
	for _, r := range want {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Results(ctx, "r1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	for i := range got {
		if !got[i].Time.Equal(want[i].Time) {
			t.Errorf("result %d time = %v", i, got[i].Time)
		}
		got[i].Time = want[i].Time
		if got[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// reopening keeps existing rows
	s2, err := Open(ctx, "sqlite", dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if got, _ := s2.Results(ctx, "r2"); len(got) != 1 {
		t.Errorf("after reopen: %+v", got)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "x"); err == nil {
		t.Error("expected an error")
	}
}

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		driver, want string
	}{
		{"sqlite", "?, ?, ?"},
		{"mysql", "?, ?, ?"},
		{"postgres", "$1, $2, $3"},
		{"sqlserver", "@p1, @p2, @p3"},
	}
	for _, tt := range tests {
		s := &Store{driver: tt.driver}
		if got := s.placeholders(3); got != tt.want {
			t.Errorf("%s: %q, want %q", tt.driver, got, tt.want)
		}
	}
}
