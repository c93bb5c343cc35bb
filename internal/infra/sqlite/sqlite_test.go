package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/heartlink/heartlink/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createAccount(t *testing.T, db *DB, id string, credits int64) {
	t.Helper()
	err := db.CreateAccount(context.Background(), &domain.Account{
		ID:      id,
		Credits: credits,
		Profile: domain.PersonalityProfile{TypeName: "steady guardian", Pace: 3},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
}

// ─── Account Tests ──────────────────────────────────────────────────────────

func TestGetAccount_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	createAccount(t, db, "acct-1", 10)

	a, err := db.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Credits != 10 {
		t.Errorf("Credits = %d, want 10", a.Credits)
	}
	if a.Profile.TypeName != "steady guardian" {
		t.Errorf("TypeName = %q", a.Profile.TypeName)
	}
	if a.HasPartner() {
		t.Error("new account should not have a partner")
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetAccount(context.Background(), "missing")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestLinkPartners_Symmetric(t *testing.T) {
	db := openTestDB(t)
	createAccount(t, db, "a", 5)
	createAccount(t, db, "b", 5)

	if err := db.LinkPartners(context.Background(), "a", "b"); err != nil {
		t.Fatalf("link: %v", err)
	}

	a, _ := db.GetAccount(context.Background(), "a")
	b, _ := db.GetAccount(context.Background(), "b")
	if a.PartnerID != "b" || b.PartnerID != "a" {
		t.Errorf("links = %q/%q, want b/a", a.PartnerID, b.PartnerID)
	}

	// Re-linking the same pair is idempotent.
	if err := db.LinkPartners(context.Background(), "a", "b"); err != nil {
		t.Fatalf("relink same pair: %v", err)
	}

	createAccount(t, db, "c", 5)
	if err := db.LinkPartners(context.Background(), "a", "c"); !errors.Is(err, domain.ErrAlreadyPaired) {
		t.Errorf("linking a third account: err = %v, want ErrAlreadyPaired", err)
	}
}

// ─── Ledger Tests ───────────────────────────────────────────────────────────

func TestDebit_Conditional(t *testing.T) {
	db := openTestDB(t)
	createAccount(t, db, "acct-1", 1)

	balance, err := db.Debit(context.Background(), "acct-1", 1, "turn")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}

	balance, err = db.Debit(context.Background(), "acct-1", 1, "turn")
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if balance != 0 {
		t.Errorf("reported balance = %d, want 0", balance)
	}
}

func TestDebit_NoPartialDebit(t *testing.T) {
	db := openTestDB(t)
	createAccount(t, db, "acct-1", 3)

	_, err := db.Debit(context.Background(), "acct-1", 5, "diagnosis")
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}

	a, _ := db.GetAccount(context.Background(), "acct-1")
	if a.Credits != 3 {
		t.Errorf("balance after rejected debit = %d, want 3", a.Credits)
	}
}

func TestCredit_RefundRestoresBalance(t *testing.T) {
	db := openTestDB(t)
	createAccount(t, db, "acct-1", 5)

	if _, err := db.Debit(context.Background(), "acct-1", 2, "turn"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, err := db.Credit(context.Background(), "acct-1", 2, domain.TxRefund, "generation failed")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != 5 {
		t.Errorf("post-refund balance = %d, want 5", balance)
	}

	entries, err := db.LedgerEntries(context.Background(), "acct-1", 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(entries))
	}
	if entries[0].Type != domain.TxRefund || entries[0].EntryType != domain.EntryCredit {
		t.Errorf("newest entry = %s/%s, want CREDIT/REFUND", entries[0].EntryType, entries[0].Type)
	}
}

func TestCredit_UnknownAccount(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Credit(context.Background(), "missing", 1, domain.TxGrant, "grant")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

// TestDebit_ConcurrentBorderline races many debits against a balance that
// covers only some of them. The conditional update must let exactly the
// affordable number through and the balance must never go negative.
func TestDebit_ConcurrentBorderline(t *testing.T) {
	db := openTestDB(t)
	createAccount(t, db, "acct-1", 5)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.Debit(context.Background(), "acct-1", 1, "race"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Errorf("successful debits = %d, want 5", succeeded)
	}
	a, _ := db.GetAccount(context.Background(), "acct-1")
	if a.Credits != 0 {
		t.Errorf("final balance = %d, want 0", a.Credits)
	}
	if a.Credits < 0 {
		t.Error("balance went negative")
	}
}

// ─── Turn Tests ─────────────────────────────────────────────────────────────

func TestTurns_InsertAndRecent(t *testing.T) {
	db := openTestDB(t)
	createAccount(t, db, "acct-1", 5)
	ctx := context.Background()

	msgs := []struct {
		role domain.Role
		text string
	}{
		{domain.RoleUser, "first question"},
		{domain.RoleAssistant, "first answer"},
		{domain.RoleUser, "second question"},
	}
	for _, m := range msgs {
		turn := &domain.ConversationTurn{AccountID: "acct-1", Role: m.role, Text: m.text}
		if err := db.InsertTurn(ctx, turn); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if turn.ID == 0 {
			t.Error("InsertTurn did not fill in id")
		}
	}

	recent, err := db.RecentTurns(ctx, "acct-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent rows = %d, want 3", len(recent))
	}
	if recent[0].Text != "second question" {
		t.Errorf("newest first: got %q", recent[0].Text)
	}

	users, err := db.RecentUserTurns(ctx, "acct-1", 10)
	if err != nil {
		t.Fatalf("recent user: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("user rows = %d, want 2", len(users))
	}
	for _, u := range users {
		if u.Role != domain.RoleUser {
			t.Errorf("role = %q, want user", u.Role)
		}
	}
}
