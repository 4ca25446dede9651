package checkout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/partyshop-backend/pkg/errors"
)

func lines(prices ...string) []PricedLine {
	out := make([]PricedLine, 0, len(prices))
	for _, p := range prices {
		out = append(out, PricedLine{ProductID: uuid.New(), Name: "item", UnitPrice: decimal.RequireFromString(p), Quantity: 1})
	}
	return out
}

func TestBuildQuote_Success(t *testing.T) {
	quote, err := BuildQuote(lines("150", "150"), 2, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !quote.TotalValue.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected total 300, got %s", quote.TotalValue)
	}
	if !quote.ValuePerParticipant.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected 150 per participant, got %s", quote.ValuePerParticipant)
	}
	if len(quote.Lines) != 2 || !quote.Lines[0].LineTotal.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unexpected lines %+v", quote.Lines)
	}
}

func TestBuildQuote_BelowMinimum(t *testing.T) {
	quote, err := BuildQuote(lines("150", "150"), 4, decimal.NewFromInt(100))
	if !pkgerrors.IsReason(err, ReasonBelowMinimum) {
		t.Fatalf("expected below minimum, got %v", err)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	detail, ok := pkgerrors.As(err).Details().(ShortfallDetail)
	if !ok {
		t.Fatalf("expected shortfall detail, got %T", pkgerrors.As(err).Details())
	}
	if detail.Shortfall != "25.00" || detail.ValuePerParticipant != "75.00" {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if !quote.ValuePerParticipant.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("quote should still carry the computed share, got %s", quote.ValuePerParticipant)
	}
}

func TestBuildQuote_ExactMinimumPasses(t *testing.T) {
	if _, err := BuildQuote(lines("100"), 1, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("expected exact minimum to pass, got %v", err)
	}
	if _, err := BuildQuote(lines("100", "100", "100"), 3, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("expected exact three-way minimum to pass, got %v", err)
	}
}

func TestBuildQuote_RoundsShare(t *testing.T) {
	quote, err := BuildQuote(lines("100", "100", "100.01"), 3, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if quote.ValuePerParticipant.String() != "100" {
		t.Fatalf("expected rounded share 100, got %s", quote.ValuePerParticipant)
	}
}

func TestBuildQuote_JustBelowMinimumFails(t *testing.T) {
	quote, err := BuildQuote(lines("100", "100", "99.99"), 3, decimal.NewFromInt(100))
	if !pkgerrors.IsReason(err, ReasonBelowMinimum) {
		t.Fatalf("expected below minimum, got %v", err)
	}
	if quote.ValuePerParticipant.StringFixed(2) != "100.00" {
		t.Fatalf("expected displayed share 100.00, got %s", quote.ValuePerParticipant)
	}
	detail, ok := pkgerrors.As(err).Details().(ShortfallDetail)
	if !ok {
		t.Fatalf("expected shortfall detail, got %T", pkgerrors.As(err).Details())
	}
	if detail.Shortfall != "0.01" {
		t.Fatalf("expected shortfall 0.01, got %s", detail.Shortfall)
	}
}

func TestBuildQuote_Preconditions(t *testing.T) {
	if _, err := BuildQuote(nil, 2, decimal.Zero); !pkgerrors.IsReason(err, ReasonEmptyCart) {
		t.Fatalf("expected empty cart, got %v", err)
	}
	if _, err := BuildQuote(lines("10"), 0, decimal.Zero); !pkgerrors.IsReason(err, ReasonNoParticipants) {
		t.Fatalf("expected no participants, got %v", err)
	}
}

func TestTotalMultipliesQuantity(t *testing.T) {
	got := Total([]PricedLine{
		{UnitPrice: decimal.RequireFromString("19.90"), Quantity: 3},
		{UnitPrice: decimal.RequireFromString("0.10"), Quantity: 1},
	})
	if !got.Equal(decimal.RequireFromString("59.80")) {
		t.Fatalf("expected 59.80, got %s", got)
	}
}
