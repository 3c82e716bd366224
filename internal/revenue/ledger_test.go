package revenue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileLedgerLogAndList(t *testing.T) {
	t.Parallel()

	ledger, err := NewFileLedger(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLedger() error = %v", err)
	}
	defer func() {
		_ = ledger.Close()
	}()

	ctx := context.Background()
	first, err := ledger.Log(ctx, Transaction{Service: "blog_post", Amount: 50, Tokens: 1200})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if first.ID == "" {
		t.Error("ID not assigned")
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}

	if _, err = ledger.Log(ctx, Transaction{Service: "code", Amount: 100}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	transactions, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("len(transactions) = %d, want 2", len(transactions))
	}
	if transactions[0].Service != "blog_post" || transactions[1].Service != "code" {
		t.Errorf("order = %q, %q", transactions[0].Service, transactions[1].Service)
	}

	total, err := ledger.Total(ctx)
	if err != nil {
		t.Fatalf("Total() error = %v", err)
	}
	if total != 150 {
		t.Errorf("Total() = %v, want 150", total)
	}
}

func TestFileLedgerValidation(t *testing.T) {
	t.Parallel()

	ledger, err := NewFileLedger(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLedger() error = %v", err)
	}

	ctx := context.Background()
	if _, err = ledger.Log(ctx, Transaction{Service: " ", Amount: 10}); err == nil {
		t.Error("expected error for empty service")
	}
	if _, err = ledger.Log(ctx, Transaction{Service: "code", Amount: -1}); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestFileLedgerEmptyList(t *testing.T) {
	t.Parallel()

	ledger, err := NewFileLedger(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileLedger() error = %v", err)
	}

	transactions, err := ledger.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(transactions) != 0 {
		t.Errorf("transactions = %v, want none", transactions)
	}
}

func TestFileLedgerSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ledger, err := NewFileLedger(dir)
	if err != nil {
		t.Fatalf("NewFileLedger() error = %v", err)
	}

	ctx := context.Background()
	if _, err = ledger.Log(ctx, Transaction{Service: "analysis", Amount: 75}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	path := filepath.Join(dir, "transactions.jsonl")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("open ledger file: %v", err)
	}
	if _, err = file.WriteString("{not json\n"); err != nil {
		t.Fatalf("write corrupt line: %v", err)
	}
	_ = file.Close()

	if _, err = ledger.Log(ctx, Transaction{Service: "code", Amount: 100}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	transactions, err := ledger.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(transactions) != 2 {
		t.Errorf("len(transactions) = %d, want 2 (corrupt line skipped)", len(transactions))
	}
}

func TestNewFileLedgerRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := NewFileLedger("  "); err == nil {
		t.Fatal("expected error for empty data directory")
	}
}
