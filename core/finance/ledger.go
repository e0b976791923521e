package finance

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

type (
	// Posting is one movement to append to the ledger.
	Posting struct {
		Type            EntryType       `json:"type" validate:"required,oneof=credit debit"`
		Category        string          `json:"category" validate:"required,notblank,max=50"`
		ReferenceID     string          `json:"reference_id" validate:"max=100"`
		ReferenceNumber string          `json:"reference_number" validate:"max=100"`
		Amount          decimal.Decimal `json:"amount" validate:"gt=0,money"`
		Description     string          `json:"description" validate:"required,notblank,max=255"`
		Date            time.Time       `json:"date"` // zero: today
	}

	LedgerPage struct {
		Entries    []LedgerEntry   `json:"entries"`
		Balance    decimal.Decimal `json:"balance"`
		Pagination core.Pagination `json:"pagination"`
	}

	// LedgerExporter writes ledger entries in a downloadable format.
	LedgerExporter interface {
		ExportLedger(w io.Writer, entries []LedgerEntry, balance decimal.Decimal) error
	}

	ledgerCursor struct {
		seq     int64
		balance decimal.Decimal
	}
)

func (p *Posting) Validate(validate *validator.Validate) error {
	p.Category = core.CleanString(p.Category, true)
	p.Description = core.CleanString(p.Description)
	return validate.Struct(p)
}

// next stamps entry with the following sequence number and running balance.
func (c *ledgerCursor) next(entry LedgerEntry) LedgerEntry {
	c.seq++
	if entry.Type == EntryCredit {
		c.balance = c.balance.Add(entry.Amount)
	} else {
		c.balance = c.balance.Sub(entry.Amount)
	}
	entry.Seq = c.seq
	entry.Balance = c.balance
	return entry
}

// lockLedger makes tx the single ledger writer.
func (svc *Service) lockLedger(ctx context.Context, tx Tx) (*ledgerCursor, error) {
	last, err := tx.LockLedger(ctx)
	if errors.Is(err, ErrNotFound) {
		return &ledgerCursor{balance: svc.opts.OpeningBalance}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ledgerCursor{seq: last.Seq, balance: last.Balance}, nil
}

// Post appends an entry to the ledger. The reserved categories cannot be posted by hand.
func (svc *Service) Post(ctx context.Context, caller Caller, p Posting) (LedgerEntry, error) {
	if err := caller.mustBeAdmin("posting ledger entries"); err != nil {
		return LedgerEntry{}, err
	}
	if err := p.Validate(svc.validate); err != nil {
		return LedgerEntry{}, err
	}
	if p.Category == CategoryFeeCollection || p.Category == CategoryReversal {
		return LedgerEntry{}, fieldError("category", "%q is reserved", p.Category)
	}
	return svc.post(ctx, caller, p)
}

// RecordExpense posts a debit.
func (svc *Service) RecordExpense(ctx context.Context, caller Caller, ne NewExpense) (LedgerEntry, error) {
	if err := caller.mustBeAdmin("recording expenses"); err != nil {
		return LedgerEntry{}, err
	}
	if err := ne.Validate(svc.validate); err != nil {
		return LedgerEntry{}, err
	}
	return svc.post(ctx, caller, Posting{
		Type:            EntryDebit,
		Category:        ne.Category,
		ReferenceID:     ne.ReferenceID,
		ReferenceNumber: ne.ReferenceNumber,
		Amount:          ne.Amount,
		Description:     ne.Description,
		Date:            ne.Date,
	})
}

func (svc *Service) post(ctx context.Context, caller Caller, p Posting) (LedgerEntry, error) {
	date := DateOf(p.Date)
	if p.Date.IsZero() {
		date = svc.today()
	}

	var entry LedgerEntry
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		cur, err := svc.lockLedger(ctx, tx)
		if err != nil {
			return err
		}
		entry = cur.next(LedgerEntry{
			ID:              newID(),
			Date:            date,
			Type:            p.Type,
			Category:        p.Category,
			ReferenceID:     p.ReferenceID,
			ReferenceNumber: p.ReferenceNumber,
			Description:     p.Description,
			Amount:          p.Amount,
			CreatedBy:       caller.ID,
			CreatedAt:       svc.timestamp(),
		})
		return tx.CreateLedgerEntry(ctx, entry)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// Reverse appends the compensating entry of entry `id`. An entry is reversed at most once
// and reversals cannot be reversed.
func (svc *Service) Reverse(ctx context.Context, caller Caller, id string, re ReverseEntry) (LedgerEntry, error) {
	if err := caller.mustBeAdmin("reversing ledger entries"); err != nil {
		return LedgerEntry{}, err
	}
	if err := re.Validate(svc.validate); err != nil {
		return LedgerEntry{}, err
	}

	var entry LedgerEntry
	err := svc.repo.RunInTx(ctx, func(tx Tx) error {
		cur, err := svc.lockLedger(ctx, tx)
		if err != nil {
			return err
		}
		orig, err := tx.GetLedgerEntry(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case orig.ReversedBy != "":
			return &InvalidStateError{Entity: "ledger entry", ID: id, State: "already reversed", Action: "reverse"}
		case orig.ReversalOf != "":
			return &InvalidStateError{Entity: "ledger entry", ID: id, State: "is a reversal", Action: "reverse"}
		}

		typ := EntryDebit
		if orig.Type == EntryDebit {
			typ = EntryCredit
		}
		entry = cur.next(LedgerEntry{
			ID:              newID(),
			Date:            svc.today(),
			Type:            typ,
			Category:        CategoryReversal,
			ReferenceID:     orig.ID,
			ReferenceNumber: orig.ReferenceNumber,
			Description:     fmt.Sprintf("Reversal of #%d: %s", orig.Seq, re.Reason),
			Amount:          orig.Amount,
			ReversalOf:      orig.ID,
			CreatedBy:       caller.ID,
			CreatedAt:       svc.timestamp(),
		})
		if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
			return err
		}
		return tx.MarkLedgerEntryReversed(ctx, orig.ID, entry.ID)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	svc.logger.Warn(fmt.Sprintf("ledger entry %s reversed by %s: %s", id, entry.ID, re.Reason), caller)
	return entry, nil
}

// Balance is the running balance after the last entry, or the opening balance.
func (svc *Service) Balance(ctx context.Context) (decimal.Decimal, error) {
	last, err := svc.repo.LastLedgerEntry(ctx)
	if errors.Is(err, ErrNotFound) {
		return svc.opts.OpeningBalance, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return last.Balance, nil
}

// ListLedger lists entries newest first, with the current balance.
func (svc *Service) ListLedger(ctx context.Context, caller Caller, filter LedgerFilter) (LedgerPage, error) {
	if err := caller.mustBeAdmin("reading the ledger"); err != nil {
		return LedgerPage{}, err
	}
	filter.Page.Clean()
	entries, total, err := svc.repo.QueryLedger(ctx, filter)
	if err != nil {
		return LedgerPage{}, err
	}
	balance, err := svc.Balance(ctx)
	if err != nil {
		return LedgerPage{}, err
	}
	return LedgerPage{Entries: entries, Balance: balance, Pagination: core.NewPagination(filter.Page, total)}, nil
}

// ExportLedger writes every entry matching filter (pagination ignored) with exporter.
func (svc *Service) ExportLedger(ctx context.Context, caller Caller, filter LedgerFilter, exporter LedgerExporter, w io.Writer) error {
	if err := caller.mustBeAdmin("exporting the ledger"); err != nil {
		return err
	}
	filter.Page = core.Page{Page: 1, PageSize: core.MaxPageSize}
	var all []LedgerEntry
	for {
		entries, total, err := svc.repo.QueryLedger(ctx, filter)
		if err != nil {
			return err
		}
		all = append(all, entries...)
		if len(entries) == 0 || len(all) >= total {
			break
		}
		filter.Page.Page++
	}
	balance, err := svc.Balance(ctx)
	if err != nil {
		return err
	}
	return exporter.ExportLedger(w, all, balance)
}
