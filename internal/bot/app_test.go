package bot

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"giftpool/internal/models"
	"giftpool/internal/service"
)

func TestUserMessageMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&usageError{usage: "Usage: /pay <id> <amount>"}, "Usage: /pay <id> <amount>"},
		{service.Validationf("already a participant"), "already a participant"},
		{service.ErrNotFound, "Collection not found"},
		{service.ErrUnauthorized, "not allowed"},
		{&service.InvalidTransitionError{From: models.StatusCompleted, To: models.StatusActive}, "current state"},
		{assertErr("boom"), "try again later"},
	}
	for _, tc := range cases {
		got := userMessage(tc.err)
		if !strings.Contains(got, tc.want) {
			t.Errorf("userMessage(%v) = %q, want substring %q", tc.err, got, tc.want)
		}
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestClaimBoxTakeOnce(t *testing.T) {
	box := newClaimBox()
	box.Put("col", 7, decimal.NewFromInt(250))

	amount, ok := box.Take("col", 7)
	if !ok || !amount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("take = %s, %v", amount, ok)
	}
	if _, ok := box.Take("col", 7); ok {
		t.Fatal("claim taken twice")
	}
}

func TestClaimBoxReplacesEarlierClaim(t *testing.T) {
	box := newClaimBox()
	box.Put("col", 7, decimal.NewFromInt(100))
	box.Put("col", 7, decimal.NewFromInt(300))

	amount, ok := box.Take("col", 7)
	if !ok || !amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("take = %s, %v", amount, ok)
	}
}

func TestRenderStatus(t *testing.T) {
	desc := "for the office farewell"
	c := &models.Collection{
		ID:            "col-1",
		Title:         "Farewell gift",
		Description:   &desc,
		TargetAmount:  decimal.NewFromInt(1000),
		CurrentAmount: decimal.NewFromInt(400),
		Status:        models.StatusActive,
		Participants: []models.Participant{
			{UserID: 1, HasPaid: true},
			{UserID: 2},
		},
	}
	got := renderStatus(c)
	for _, want := range []string{"Farewell gift", "400.00 of 1000.00", "2 (1 paid)", "active"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderStatus missing %q in:\n%s", want, got)
		}
	}
}

func TestRenderListEmpty(t *testing.T) {
	got := renderList(nil)
	if !strings.Contains(got, "/new_collection") {
		t.Fatalf("empty list reply should point at /new_collection, got %q", got)
	}
}

func TestRenderEscapesMarkdownInUserText(t *testing.T) {
	c := &models.Collection{
		ID:           "col-1",
		Title:        "a*b_c`d",
		TargetAmount: decimal.NewFromInt(100),
		Status:       models.StatusActive,
		GiftOptions:  []models.GiftOption{{ID: "opt-1", Title: "socks [wool]"}},
	}
	got := renderDetails(c)
	if strings.Contains(got, "a*b_c`d") {
		t.Fatalf("title interpolated unescaped:\n%s", got)
	}
	for _, want := range []string{`a\*b\_c` + "\\`" + `d`, `socks \[wool]`} {
		if !strings.Contains(got, want) {
			t.Errorf("missing escaped text %q in:\n%s", want, got)
		}
	}
}
