package lotmatch

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/tax"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lot(pos uuid.UUID, date time.Time, qty, unitCost string) tax.Lot {
	return tax.Lot{
		ID:              uuid.New(),
		PositionID:      pos,
		AcquisitionDate: date,
		Quantity:        dec(qty),
		UnitCost:        dec(unitCost),
		Currency:        "EUR",
	}
}

func sell(pos uuid.UUID, date time.Time, qty, amount string) tax.Transaction {
	return tax.Transaction{
		ID:         uuid.New(),
		PositionID: pos,
		Type:       tax.TransactionTypeSell,
		Date:       date,
		Quantity:   dec(qty),
		Amount:     dec(amount),
		Currency:   "EUR",
		Source:     tax.JurisdictionDE,
	}
}

func TestFIFOConsumesOldestLotsFirst(t *testing.T) {
	posID := uuid.New()
	first := lot(posID, day(2020, 1, 1), "100", "10")
	second := lot(posID, day(2021, 6, 1), "50", "20")
	p := tax.Position{ID: posID, CostMethod: tax.CostMethodFIFO, Lots: []tax.Lot{first, second}}

	// sell 120 @ 25: 100 from the 2020 lot, 20 from the 2021 lot
	res, err := Match(p, []tax.Transaction{sell(posID, day(2023, 6, 1), "120", "3000")})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(res.Events))
	}
	e0, e1 := res.Events[0], res.Events[1]
	if e0.LotID != first.ID || !e0.Quantity.Equal(dec("100")) {
		t.Fatalf("first event should drain oldest lot: %+v", e0)
	}
	// proceeds prorated: 3000 * 100/120 = 2500; cost 1000; gain 1500
	if !e0.GainLoss.Equal(dec("1500")) {
		t.Fatalf("gain on first lot: got %s want 1500", e0.GainLoss)
	}
	if e1.LotID != second.ID || !e1.Quantity.Equal(dec("20")) {
		t.Fatalf("second event should split newer lot: %+v", e1)
	}
	// 3000 * 20/120 = 500; cost 400; gain 100
	if !e1.GainLoss.Equal(dec("100")) {
		t.Fatalf("gain on second lot: got %s want 100", e1.GainLoss)
	}
	// surviving remainder keeps its original acquisition date
	if len(res.OpenLots) != 1 || !res.OpenLots[0].AcquisitionDate.Equal(second.AcquisitionDate) {
		t.Fatalf("remainder lost acquisition date: %+v", res.OpenLots)
	}
	if !res.OpenLots[0].Quantity.Equal(dec("30")) {
		t.Fatalf("remainder quantity: got %s want 30", res.OpenLots[0].Quantity)
	}
}

func TestLotConservation(t *testing.T) {
	posID := uuid.New()
	p := tax.Position{ID: posID, Lots: []tax.Lot{
		lot(posID, day(2019, 3, 1), "40", "5"),
		lot(posID, day(2020, 3, 1), "60", "8"),
	}}
	txs := []tax.Transaction{
		sell(posID, day(2024, 2, 1), "30", "600"),
		sell(posID, day(2024, 5, 1), "50", "900"),
	}
	res, err := Match(p, txs)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	consumed := decimal.Zero
	for _, e := range res.Events {
		consumed = consumed.Add(e.Quantity)
	}
	open := decimal.Zero
	for _, l := range res.OpenLots {
		open = open.Add(l.Quantity)
	}
	// open + consumed = acquired, always
	if !consumed.Add(open).Equal(dec("100")) {
		t.Fatalf("lot conservation violated: consumed %s + open %s != 100", consumed, open)
	}
}

func TestBuysWithinYearCreateLots(t *testing.T) {
	posID := uuid.New()
	p := tax.Position{ID: posID}
	buy := tax.Transaction{
		ID: uuid.New(), PositionID: posID, Type: tax.TransactionTypeBuy,
		Date: day(2024, 1, 10), Quantity: dec("10"), Amount: dec("150"), Currency: "EUR",
	}
	res, err := Match(p, []tax.Transaction{buy, sell(posID, day(2024, 3, 1), "4", "100")})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(res.Events))
	}
	// unit cost 15, cost 60, gain 40
	if !res.Events[0].GainLoss.Equal(dec("40")) {
		t.Fatalf("gain: got %s want 40", res.Events[0].GainLoss)
	}
}

func TestAverageCostBasis(t *testing.T) {
	posID := uuid.New()
	p := tax.Position{ID: posID, CostMethod: tax.CostMethodAverage, Lots: []tax.Lot{
		lot(posID, day(2020, 1, 1), "100", "10"),
		lot(posID, day(2021, 1, 1), "100", "20"),
	}}
	// average unit cost 15; sell 50 @ 18 -> cost 750, gain 150
	res, err := Match(p, []tax.Transaction{sell(posID, day(2024, 6, 1), "50", "900")})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected a single event per disposal, got %d", len(res.Events))
	}
	if !res.Events[0].CostBasis.Equal(dec("750")) || !res.Events[0].GainLoss.Equal(dec("150")) {
		t.Fatalf("average basis wrong: %+v", res.Events[0])
	}
}

func TestSpecificIdentification(t *testing.T) {
	posID := uuid.New()
	oldLot := lot(posID, day(2018, 1, 1), "100", "10")
	newLot := lot(posID, day(2022, 1, 1), "100", "30")
	p := tax.Position{ID: posID, CostMethod: tax.CostMethodSpecific, Lots: []tax.Lot{oldLot, newLot}}
	s := sell(posID, day(2024, 6, 1), "40", "1600")
	s.LotID = newLot.ID
	res, err := Match(p, []tax.Transaction{s})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	// cost 40*30=1200, gain 400 against the named newer lot
	if res.Events[0].LotID != newLot.ID || !res.Events[0].GainLoss.Equal(dec("400")) {
		t.Fatalf("specific-id matched wrong lot: %+v", res.Events[0])
	}
}

func TestInsufficientLotsFailsLoudly(t *testing.T) {
	posID := uuid.New()
	p := tax.Position{ID: posID, Lots: []tax.Lot{lot(posID, day(2020, 1, 1), "10", "10")}}
	_, err := Match(p, []tax.Transaction{sell(posID, day(2024, 1, 1), "11", "300")})
	if !errors.Is(err, errs.ErrInsufficientLots) {
		t.Fatalf("expected insufficient_lots, got %v", err)
	}
	if !errors.Is(err, errs.ErrDataIntegrity) {
		t.Fatalf("insufficient lots should classify as data integrity: %v", err)
	}
	var ile *InsufficientLotsError
	if !errors.As(err, &ile) || !ile.Available.Equal(dec("10")) {
		t.Fatalf("error lacks context: %v", err)
	}
}

func TestOutOfOrderDisposalsAreRejected(t *testing.T) {
	posID := uuid.New()
	p := tax.Position{ID: posID, Lots: []tax.Lot{lot(posID, day(2020, 1, 1), "100", "10")}}
	txs := []tax.Transaction{
		sell(posID, day(2024, 6, 1), "10", "200"),
		sell(posID, day(2024, 3, 1), "10", "200"),
	}
	_, err := Match(p, txs)
	if !errors.Is(err, errs.ErrUnorderedTransaction) {
		t.Fatalf("expected unordered_transaction, got %v", err)
	}
}
