// Package lotmatch reconstructs realized gains and losses by replaying a
// position's transactions against its acquisition lots.
package lotmatch

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/errs"
	"github.com/avoscheidt/fiskal/internal/tax"
)

// InsufficientLotsError reports a disposal exceeding the open lot quantity.
// This is a data-integrity failure, never silently clamped.
type InsufficientLotsError struct {
	PositionID    uuid.UUID
	TransactionID uuid.UUID
	Requested     decimal.Decimal
	Available     decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("position %s: disposal %s requests %s units but only %s are open",
		e.PositionID, e.TransactionID, e.Requested, e.Available)
}

func (e *InsufficientLotsError) Unwrap() []error {
	return []error{errs.ErrDataIntegrity, errs.ErrInsufficientLots}
}

// UnorderedTransactionError reports disposal timestamps arriving out of order.
// Re-sorting silently could change which lots are matched, so this fails hard.
type UnorderedTransactionError struct {
	PositionID    uuid.UUID
	TransactionID uuid.UUID
	Date          time.Time
	Previous      time.Time
}

func (e *UnorderedTransactionError) Error() string {
	return fmt.Sprintf("position %s: transaction %s dated %s arrives after %s",
		e.PositionID, e.TransactionID, e.Date.Format(time.RFC3339), e.Previous.Format(time.RFC3339))
}

func (e *UnorderedTransactionError) Unwrap() error { return errs.ErrUnorderedTransaction }

// Result carries the realized events of a replay plus the surviving open lots.
type Result struct {
	Events   []tax.RealizedEvent
	OpenLots []tax.Lot
}

// Match replays the position's buy and sell transactions, in the order given,
// against its open lot snapshot. Buys append new lots; sells consume lots per
// the position's cost method (FIFO by default). Transactions must already be
// in chronological order; out-of-order input is an error, not re-sorted.
func Match(p tax.Position, txs []tax.Transaction) (Result, error) {
	lots := make([]tax.Lot, len(p.Lots))
	copy(lots, p.Lots)
	// Lots consume in acquisition-date order; ties break on ID for determinism.
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].AcquisitionDate.Equal(lots[j].AcquisitionDate) {
			return lots[i].AcquisitionDate.Before(lots[j].AcquisitionDate)
		}
		return lots[i].ID.String() < lots[j].ID.String()
	})

	res := Result{}
	var prev time.Time
	var prevSet bool
	for _, t := range txs {
		if t.PositionID != p.ID {
			continue
		}
		switch t.Type {
		case tax.TransactionTypeBuy, tax.TransactionTypeSell:
		default:
			continue
		}
		if prevSet && t.Date.Before(prev) {
			return Result{}, &UnorderedTransactionError{PositionID: p.ID, TransactionID: t.ID, Date: t.Date, Previous: prev}
		}
		prev, prevSet = t.Date, true

		if t.Quantity.Sign() <= 0 {
			return Result{}, fmt.Errorf("position %s: transaction %s has non-positive quantity: %w", p.ID, t.ID, errs.ErrDataIntegrity)
		}

		if t.Type == tax.TransactionTypeBuy {
			unitCost := t.Amount.Div(t.Quantity)
			lots = append(lots, tax.Lot{
				ID:              t.ID,
				PositionID:      p.ID,
				AcquisitionDate: t.Date,
				Quantity:        t.Quantity,
				UnitCost:        unitCost,
				Currency:        t.Currency,
			})
			continue
		}

		events, rest, err := consume(p, lots, t)
		if err != nil {
			return Result{}, err
		}
		res.Events = append(res.Events, events...)
		lots = rest
	}
	res.OpenLots = lots
	return res, nil
}

func consume(p tax.Position, lots []tax.Lot, t tax.Transaction) ([]tax.RealizedEvent, []tax.Lot, error) {
	open := decimal.Zero
	for _, l := range lots {
		open = open.Add(l.Quantity)
	}
	if t.Quantity.GreaterThan(open) {
		return nil, nil, &InsufficientLotsError{PositionID: p.ID, TransactionID: t.ID, Requested: t.Quantity, Available: open}
	}

	switch p.CostMethod {
	case tax.CostMethodAverage:
		return consumeAverage(p, lots, t, open)
	case tax.CostMethodSpecific:
		return consumeSpecific(p, lots, t)
	default:
		return consumeFIFO(p, lots, t)
	}
}

// consumeFIFO eats the oldest lots first, splitting the last one if needed.
// A surviving remainder keeps its original acquisition date, which matters for
// holding-period-dependent exemptions.
func consumeFIFO(p tax.Position, lots []tax.Lot, t tax.Transaction) ([]tax.RealizedEvent, []tax.Lot, error) {
	var events []tax.RealizedEvent
	remaining := t.Quantity
	for remaining.Sign() > 0 {
		lot := lots[0]
		q := decimal.Min(remaining, lot.Quantity)
		events = append(events, realize(p, t, lot, q))
		remaining = remaining.Sub(q)
		lot.Quantity = lot.Quantity.Sub(q)
		if lot.Quantity.IsZero() {
			lots = lots[1:]
		} else {
			lots[0] = lot
		}
	}
	return events, lots, nil
}

// consumeAverage prices the whole disposal at the running weighted average of
// all open lots, then removes quantity oldest-first to keep the lot pool sane.
func consumeAverage(p tax.Position, lots []tax.Lot, t tax.Transaction, open decimal.Decimal) ([]tax.RealizedEvent, []tax.Lot, error) {
	totalCost := decimal.Zero
	for _, l := range lots {
		totalCost = totalCost.Add(l.Cost())
	}
	avgUnit := totalCost.Div(open)
	cost := avgUnit.Mul(t.Quantity)
	ev := tax.RealizedEvent{
		TransactionID:   t.ID,
		PositionID:      p.ID,
		Quantity:        t.Quantity,
		Proceeds:        t.Amount,
		CostBasis:       cost,
		GainLoss:        t.Amount.Sub(cost),
		AcquisitionDate: lots[0].AcquisitionDate,
		DisposalDate:    t.Date,
		FundCategory:    p.FundCategory,
		Source:          t.Source,
	}
	remaining := t.Quantity
	for remaining.Sign() > 0 {
		q := decimal.Min(remaining, lots[0].Quantity)
		remaining = remaining.Sub(q)
		lots[0].Quantity = lots[0].Quantity.Sub(q)
		if lots[0].Quantity.IsZero() {
			lots = lots[1:]
		}
	}
	return []tax.RealizedEvent{ev}, lots, nil
}

func consumeSpecific(p tax.Position, lots []tax.Lot, t tax.Transaction) ([]tax.RealizedEvent, []tax.Lot, error) {
	for i, lot := range lots {
		if lot.ID != t.LotID {
			continue
		}
		if t.Quantity.GreaterThan(lot.Quantity) {
			return nil, nil, &InsufficientLotsError{PositionID: p.ID, TransactionID: t.ID, Requested: t.Quantity, Available: lot.Quantity}
		}
		ev := realize(p, t, lot, t.Quantity)
		lot.Quantity = lot.Quantity.Sub(t.Quantity)
		if lot.Quantity.IsZero() {
			lots = append(lots[:i], lots[i+1:]...)
		} else {
			lots[i] = lot
		}
		return []tax.RealizedEvent{ev}, lots, nil
	}
	return nil, nil, fmt.Errorf("position %s: disposal %s names unknown lot %s: %w", p.ID, t.ID, t.LotID, errs.ErrDataIntegrity)
}

// realize builds the event for consuming quantity q of lot by disposal t.
// Proceeds are prorated at full precision; rounding happens only at the final
// per-jurisdiction tax line.
func realize(p tax.Position, t tax.Transaction, lot tax.Lot, q decimal.Decimal) tax.RealizedEvent {
	proceeds := t.Amount.Mul(q).Div(t.Quantity)
	cost := lot.UnitCost.Mul(q)
	return tax.RealizedEvent{
		TransactionID:   t.ID,
		PositionID:      p.ID,
		LotID:           lot.ID,
		Quantity:        q,
		Proceeds:        proceeds,
		CostBasis:       cost,
		GainLoss:        proceeds.Sub(cost),
		AcquisitionDate: lot.AcquisitionDate,
		DisposalDate:    t.Date,
		FundCategory:    p.FundCategory,
		Source:          t.Source,
	}
}
