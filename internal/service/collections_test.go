package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"giftpool/internal/models"
	"giftpool/internal/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedUser(t *testing.T, st store.Store, id int64) {
	t.Helper()
	err := st.Users().Save(context.Background(), &models.User{
		ID: id, FirstName: "u", ChatID: id,
	})
	if err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
}

func newEngine(t *testing.T) (*Collections, store.Store) {
	t.Helper()
	st := store.NewMemory()
	for _, id := range []int64{1, 2, 3} {
		seedUser(t, st, id)
	}
	return NewCollections(st), st
}

func createActive(t *testing.T, svc *Collections, target string, participants ...int64) *models.Collection {
	t.Helper()
	ctx := context.Background()
	c, _, err := svc.Create(ctx, CreateParams{
		OrganizerID:    1,
		Title:          "farewell gift",
		TargetAmount:   dec(target),
		ParticipantIDs: participants,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != models.StatusPending {
		t.Fatalf("status after create = %s, want pending", c.Status)
	}
	c, _, err = svc.SetStatus(ctx, c.ID, models.StatusActive)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return c
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()

	var verr *ValidationError
	_, _, err := svc.Create(ctx, CreateParams{OrganizerID: 1, Title: " ", TargetAmount: dec("100")})
	if !errors.As(err, &verr) {
		t.Fatalf("empty title err = %v, want ValidationError", err)
	}
	_, _, err = svc.Create(ctx, CreateParams{OrganizerID: 1, Title: "x", TargetAmount: dec("0")})
	if !errors.As(err, &verr) {
		t.Fatalf("zero target err = %v, want ValidationError", err)
	}
}

func TestCreateDeduplicatesParticipants(t *testing.T) {
	svc, _ := newEngine(t)
	c, _, err := svc.Create(context.Background(), CreateParams{
		OrganizerID:    1,
		Title:          "gift",
		TargetAmount:   dec("100"),
		ParticipantIDs: []int64{1, 2, 2, 1, 3},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(c.Participants) != 3 {
		t.Fatalf("participants = %d, want 3", len(c.Participants))
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to models.CollectionStatus
		ok       bool
	}{
		{models.StatusPending, models.StatusActive, true},
		{models.StatusPending, models.StatusCancelled, true},
		{models.StatusPending, models.StatusCompleted, false},
		{models.StatusPending, models.StatusFrozen, false},
		{models.StatusActive, models.StatusFrozen, true},
		{models.StatusActive, models.StatusCompleted, true},
		{models.StatusActive, models.StatusCancelled, true},
		{models.StatusActive, models.StatusPending, false},
		{models.StatusFrozen, models.StatusActive, true},
		{models.StatusFrozen, models.StatusCancelled, true},
		{models.StatusFrozen, models.StatusCompleted, false},
		{models.StatusCompleted, models.StatusActive, false},
		{models.StatusCompleted, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusActive, false},
		{models.StatusCancelled, models.StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := transitionAllowed(tc.from, tc.to); got != tc.ok {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestSetStatusRejectsInvalidTransition(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "100", 1, 2)

	if _, _, err := svc.SetStatus(ctx, c.ID, models.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var terr *InvalidTransitionError
	_, _, err := svc.SetStatus(ctx, c.ID, models.StatusActive)
	if !errors.As(err, &terr) {
		t.Fatalf("completed->active err = %v, want InvalidTransitionError", err)
	}

	// The failed transition must leave no side effects.
	got, err := svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestSetStatusUnknownID(t *testing.T) {
	svc, _ := newEngine(t)
	_, _, err := svc.SetStatus(context.Background(), "missing", models.StatusActive)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAddPaymentLedgerInvariant(t *testing.T) {
	svc, st := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "1000", 1, 2)

	payments := []struct {
		user   int64
		amount string
	}{
		{1, "300"}, {2, "150"}, {1, "50.50"},
	}
	for _, p := range payments {
		ok, _, err := svc.AddPayment(ctx, c.ID, p.user, dec(p.amount))
		if err != nil || !ok {
			t.Fatalf("pay %s by %d: ok=%v err=%v", p.amount, p.user, ok, err)
		}
	}

	got, _ := svc.Get(ctx, c.ID)
	txs, err := st.Transactions().ListByCollection(ctx, c.ID)
	if err != nil {
		t.Fatalf("list txs: %v", err)
	}
	sum := decimal.Zero
	for _, tx := range txs {
		if !tx.Cancelled {
			sum = sum.Add(tx.Amount)
		}
	}
	if !got.CurrentAmount.Equal(sum) {
		t.Fatalf("currentAmount %s != tx sum %s", got.CurrentAmount, sum)
	}
	if !got.CurrentAmount.Equal(dec("500.50")) {
		t.Fatalf("currentAmount = %s, want 500.50", got.CurrentAmount)
	}
	if p := got.Participant(1); !p.Contribution.Equal(dec("350.50")) || !p.HasPaid {
		t.Fatalf("participant 1 = %+v", p)
	}
}

func TestAddPaymentWrongStatus(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c, _, err := svc.Create(ctx, CreateParams{
		OrganizerID: 1, Title: "gift", TargetAmount: dec("100"), ParticipantIDs: []int64{1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Still pending: payment silently refused.
	ok, _, err := svc.AddPayment(ctx, c.ID, 1, dec("10"))
	if err != nil || ok {
		t.Fatalf("pay on pending: ok=%v err=%v", ok, err)
	}
	got, _ := svc.Get(ctx, c.ID)
	if !got.CurrentAmount.IsZero() {
		t.Fatalf("currentAmount mutated: %s", got.CurrentAmount)
	}
}

func TestAddPaymentNonParticipant(t *testing.T) {
	svc, _ := newEngine(t)
	c := createActive(t, svc, "100", 1)
	ok, _, err := svc.AddPayment(context.Background(), c.ID, 2, dec("10"))
	if err != nil || ok {
		t.Fatalf("pay by outsider: ok=%v err=%v", ok, err)
	}
}

func TestTargetReachedNotifiedExactlyOnce(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "1000", 1, 2)

	countReached := func(notes []Notification) int {
		n := 0
		for _, note := range notes {
			if note.ChatID == 1 && containsTarget(note.Text) {
				n++
			}
		}
		return n
	}

	_, notes, err := svc.AddPayment(ctx, c.ID, 1, dec("600"))
	if err != nil {
		t.Fatalf("pay 600: %v", err)
	}
	if countReached(notes) != 0 {
		t.Fatal("target-reached fired before the target")
	}

	_, notes, err = svc.AddPayment(ctx, c.ID, 2, dec("400"))
	if err != nil {
		t.Fatalf("pay 400: %v", err)
	}
	if countReached(notes) != 1 {
		t.Fatalf("target-reached on crossing payment = %d, want 1", countReached(notes))
	}

	_, notes, err = svc.AddPayment(ctx, c.ID, 1, dec("50"))
	if err != nil {
		t.Fatalf("pay past target: %v", err)
	}
	if countReached(notes) != 0 {
		t.Fatal("target-reached fired again after the crossing payment")
	}
}

func containsTarget(text string) bool {
	return strings.Contains(text, "Target reached")
}

func TestCancelTransactionReversesAndIsIdempotent(t *testing.T) {
	svc, st := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "1000", 1, 2)

	if ok, _, err := svc.AddPayment(ctx, c.ID, 2, dec("200")); err != nil || !ok {
		t.Fatalf("pay: ok=%v err=%v", ok, err)
	}
	txs, _ := st.Transactions().ListByCollection(ctx, c.ID)
	if len(txs) != 1 {
		t.Fatalf("txs = %d, want 1", len(txs))
	}

	ok, err := svc.CancelTransaction(ctx, txs[0].ID, "sent by mistake", 99)
	if err != nil || !ok {
		t.Fatalf("cancel: ok=%v err=%v", ok, err)
	}

	got, _ := svc.Get(ctx, c.ID)
	if !got.CurrentAmount.IsZero() {
		t.Fatalf("currentAmount after cancel = %s, want 0", got.CurrentAmount)
	}
	p := got.Participant(2)
	if !p.Contribution.IsZero() || p.HasPaid {
		t.Fatalf("participant after cancel = %+v", p)
	}

	// Second cancel is a no-op.
	ok, err = svc.CancelTransaction(ctx, txs[0].ID, "again", 99)
	if err != nil || ok {
		t.Fatalf("second cancel: ok=%v err=%v", ok, err)
	}
	got, _ = svc.Get(ctx, c.ID)
	if !got.CurrentAmount.IsZero() {
		t.Fatalf("double reversal: currentAmount = %s", got.CurrentAmount)
	}
}

func TestVoteToggleAndSwitch(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "100", 1, 2)

	optA, err := svc.AddGiftOption(ctx, c.ID, "board game", "")
	if err != nil {
		t.Fatalf("add option: %v", err)
	}
	optB, err := svc.AddGiftOption(ctx, c.ID, "book", "signed edition")
	if err != nil {
		t.Fatalf("add option: %v", err)
	}

	mustVote := func(user int64, opt string) {
		t.Helper()
		ok, err := svc.Vote(ctx, c.ID, user, opt)
		if err != nil || !ok {
			t.Fatalf("vote %d->%s: ok=%v err=%v", user, opt, ok, err)
		}
	}
	votes := func() (int, int) {
		got, _ := svc.Get(ctx, c.ID)
		return got.Option(optA.ID).Votes, got.Option(optB.ID).Votes
	}

	mustVote(1, optA.ID)
	mustVote(2, optA.ID)
	if a, b := votes(); a != 2 || b != 0 {
		t.Fatalf("votes = %d/%d, want 2/0", a, b)
	}

	// Switching moves the vote.
	mustVote(2, optB.ID)
	if a, b := votes(); a != 1 || b != 1 {
		t.Fatalf("votes after switch = %d/%d, want 1/1", a, b)
	}

	// Voting the same option again withdraws it.
	mustVote(1, optA.ID)
	if a, b := votes(); a != 0 || b != 1 {
		t.Fatalf("votes after toggle = %d/%d, want 0/1", a, b)
	}

	// Vote counts mirror participant votes.
	got, _ := svc.Get(ctx, c.ID)
	counts := map[string]int{}
	for _, p := range got.Participants {
		if p.Vote != nil {
			counts[*p.Vote]++
		}
	}
	if counts[optA.ID] != got.Option(optA.ID).Votes || counts[optB.ID] != got.Option(optB.ID).Votes {
		t.Fatalf("vote counters diverged from participant votes: %v", counts)
	}
}

func TestVoteRequiresParticipantAndOption(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "100", 1)
	opt, _ := svc.AddGiftOption(ctx, c.ID, "book", "")

	if ok, err := svc.Vote(ctx, c.ID, 3, opt.ID); err != nil || ok {
		t.Fatalf("outsider vote: ok=%v err=%v", ok, err)
	}
	if ok, err := svc.Vote(ctx, c.ID, 1, "missing-option"); err != nil || ok {
		t.Fatalf("vote for missing option: ok=%v err=%v", ok, err)
	}
}

func TestJoinTwiceRejected(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "100", 1)

	if _, err := svc.Join(ctx, c.ID, 2); err != nil {
		t.Fatalf("join: %v", err)
	}
	var verr *ValidationError
	if _, err := svc.Join(ctx, c.ID, 2); !errors.As(err, &verr) {
		t.Fatalf("second join err = %v, want ValidationError", err)
	}
	got, _ := svc.Get(ctx, c.ID)
	if len(got.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(got.Participants))
	}
}

func TestDeclineRemovesUnpaidParticipant(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "100", 1, 2)

	if err := svc.Decline(ctx, c.ID, 2); err != nil {
		t.Fatalf("decline: %v", err)
	}
	got, _ := svc.Get(ctx, c.ID)
	if got.Participant(2) != nil {
		t.Fatal("participant still present after decline")
	}

	// Paid participants cannot leave.
	if ok, _, err := svc.AddPayment(ctx, c.ID, 1, dec("10")); err != nil || !ok {
		t.Fatalf("pay: ok=%v err=%v", ok, err)
	}
	var verr *ValidationError
	if err := svc.Decline(ctx, c.ID, 1); !errors.As(err, &verr) {
		t.Fatalf("decline after paying err = %v, want ValidationError", err)
	}
}

func TestUpdateTargetAmountOnlyWhileOpen(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "100", 1)

	ok, err := svc.UpdateTargetAmount(ctx, c.ID, dec("250"))
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	got, _ := svc.Get(ctx, c.ID)
	if !got.TargetAmount.Equal(dec("250")) {
		t.Fatalf("target = %s, want 250", got.TargetAmount)
	}

	if _, _, err := svc.SetStatus(ctx, c.ID, models.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var terr *InvalidTransitionError
	if _, err := svc.UpdateTargetAmount(ctx, c.ID, dec("300")); !errors.As(err, &terr) {
		t.Fatalf("update on cancelled err = %v, want InvalidTransitionError", err)
	}
}

func TestFreezeUnfreezeAudited(t *testing.T) {
	svc, st := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "100", 1)

	if err := svc.Freeze(ctx, c.ID, 42); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	got, _ := svc.Get(ctx, c.ID)
	if got.Status != models.StatusFrozen {
		t.Fatalf("status = %s, want frozen", got.Status)
	}

	// Contributions are paused while frozen.
	if ok, _, err := svc.AddPayment(ctx, c.ID, 1, dec("10")); err != nil || ok {
		t.Fatalf("pay while frozen: ok=%v err=%v", ok, err)
	}

	if err := svc.Unfreeze(ctx, c.ID, 42); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	got, _ = svc.Get(ctx, c.ID)
	if got.Status != models.StatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}

	type auditor interface{ AdminEntries() []models.AdminLog }
	entries := st.(auditor).AdminEntries()
	if len(entries) != 2 {
		t.Fatalf("admin log entries = %d, want 2", len(entries))
	}
	if entries[0].Action != "freeze_collection" || entries[1].Action != "unfreeze_collection" {
		t.Fatalf("actions = %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestCancelWritesRefundLedgerEntries(t *testing.T) {
	svc, st := newEngine(t)
	ctx := context.Background()
	c := createActive(t, svc, "1000", 1, 2, 3)

	if ok, _, err := svc.AddPayment(ctx, c.ID, 1, dec("300")); !ok || err != nil {
		t.Fatalf("pay 1: ok=%v err=%v", ok, err)
	}
	if ok, _, err := svc.AddPayment(ctx, c.ID, 2, dec("150")); !ok || err != nil {
		t.Fatalf("pay 2: ok=%v err=%v", ok, err)
	}

	if _, _, err := svc.SetStatus(ctx, c.ID, models.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	txs, err := st.Transactions().ListByCollection(ctx, c.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	refunds := make(map[int64]decimal.Decimal)
	for _, tx := range txs {
		if tx.Type == models.TxRefund {
			refunds[tx.UserID] = tx.Amount
		}
	}
	if len(refunds) != 2 {
		t.Fatalf("refund entries = %d, want one per paid participant", len(refunds))
	}
	if !refunds[1].Equal(dec("300")) || !refunds[2].Equal(dec("150")) {
		t.Fatalf("refund amounts = %v", refunds)
	}
	if _, ok := refunds[3]; ok {
		t.Fatal("unpaid participant got a refund entry")
	}
}

// stalledCollections refuses writes once its budget is spent.
type stalledCollections struct {
	store.Collections
	allowed *int
}

func (s stalledCollections) Save(ctx context.Context, c *models.Collection) error {
	if *s.allowed <= 0 {
		return errors.New("collection write refused")
	}
	*s.allowed--
	return s.Collections.Save(ctx, c)
}

type stalledStore struct {
	store.Store
	allowed int
}

func (s *stalledStore) Collections() store.Collections {
	return stalledCollections{Collections: s.Store.Collections(), allowed: &s.allowed}
}

func TestAddPaymentLedgerEntryPrecedesCollectionWrite(t *testing.T) {
	mem := store.NewMemory()
	for _, id := range []int64{1, 2, 3} {
		seedUser(t, mem, id)
	}
	// Budget covers create and activate; the payment's collection write fails.
	st := &stalledStore{Store: mem, allowed: 2}
	svc := NewCollections(st)
	ctx := context.Background()
	c := createActive(t, svc, "500", 1)

	ok, _, err := svc.AddPayment(ctx, c.ID, 1, dec("100"))
	if err == nil || ok {
		t.Fatalf("payment with refused collection write: ok=%v err=%v", ok, err)
	}

	txs, err := mem.Transactions().ListByCollection(ctx, c.ID)
	if err != nil || len(txs) != 1 {
		t.Fatalf("ledger entries = %v (err %v), want the contribution recorded", txs, err)
	}
	persisted, err := mem.Collections().Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !persisted.CurrentAmount.IsZero() {
		t.Fatalf("currentAmount = %s, want unchanged when the write failed", persisted.CurrentAmount)
	}
}
