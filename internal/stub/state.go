package stub

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"settleload/internal/action"
)

const (
	batchOpen     = "OPEN"
	batchClosed   = "CLOSED"
	batchLocked   = "LOCKED"
	batchSettled  = "SETTLED"
	batchDisputed = "DISPUTED"
)

type accountKey struct {
	participant string
	currency    string
}

type account struct {
	debit  decimal.Decimal
	credit decimal.Decimal
}

type batch struct {
	action.SettlementBatch
	accounts  map[accountKey]*account
	transfers int
	lockedBy  string
}

func (b *batch) post(tr action.TransferRequest, amount decimal.Decimal) {
	payer := b.account(tr.PayerFspID, tr.CurrencyCode)
	payer.debit = payer.debit.Add(amount)
	payee := b.account(tr.PayeeFspID, tr.CurrencyCode)
	payee.credit = payee.credit.Add(amount)
	b.transfers++
}

func (b *batch) account(participant, currency string) *account {
	k := accountKey{participant, currency}
	a, ok := b.accounts[k]
	if !ok {
		a = &account{}
		b.accounts[k] = a
	}
	return a
}

func (b *batch) sortedKeys() []accountKey {
	keys := make([]accountKey, 0, len(b.accounts))
	for k := range b.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].participant != keys[j].participant {
			return keys[i].participant < keys[j].participant
		}
		return keys[i].currency < keys[j].currency
	})
	return keys
}

// view renders the batch with its accounts.
func (b *batch) view() action.SettlementBatch {
	out := b.SettlementBatch
	out.Accounts = nil
	for _, k := range b.sortedKeys() {
		a := b.accounts[k]
		out.Accounts = append(out.Accounts, action.BatchAccount{
			AccountExtID:  fmt.Sprintf("%s.%s", k.participant, k.currency),
			ParticipantID: k.participant,
			CurrencyCode:  k.currency,
			Balance:       balance(a.debit, a.credit),
		})
	}
	return out
}

type matrix struct {
	action.SettlementMatrix
	batchIDs map[string]bool
}

func newMatrix(req action.CreateMatrixRequest, now time.Time) *matrix {
	m := &matrix{
		SettlementMatrix: action.SettlementMatrix{
			ID:              req.MatrixID,
			CreatedAt:       now.UnixMilli(),
			UpdatedAt:       now.UnixMilli(),
			DateFrom:        req.FromDate,
			DateTo:          req.ToDate,
			CurrencyCodes:   req.CurrencyCodes,
			SettlementModel: req.SettlementModel,
			BatchStatuses:   req.BatchStatuses,
			State:           action.MatrixIdle,
			Type:            req.Type,
		},
		batchIDs: make(map[string]bool),
	}
	for _, id := range req.BatchIDs {
		m.batchIDs[id] = true
	}
	return m
}

// selects reports whether a dynamic matrix's criteria cover b.
func (m *matrix) selects(b *batch) bool {
	if m.SettlementModel != "" && m.SettlementModel != b.SettlementModel {
		return false
	}
	if m.DateFrom > 0 && b.Timestamp < m.DateFrom {
		return false
	}
	if m.DateTo > 0 && b.Timestamp > m.DateTo {
		return false
	}
	if len(m.CurrencyCodes) > 0 && !contains(m.CurrencyCodes, b.CurrencyCode) {
		return false
	}
	if len(m.BatchStatuses) > 0 && !contains(m.BatchStatuses, b.State) {
		return false
	}
	return true
}

func (m *matrix) memberIDs() []string {
	ids := make([]string, 0, len(m.batchIDs))
	for id := range m.batchIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// view renders the matrix with balances summed over its member batches.
func (m *matrix) view(batches map[string]*batch) action.SettlementMatrix {
	out := m.SettlementMatrix
	out.Batches = nil
	out.BalancesByCurrency = nil
	out.BalancesByParticipant = nil

	byCurrency := make(map[string]*account)
	type participantKey struct {
		accountKey
		state string
	}
	byParticipant := make(map[participantKey]*account)

	for _, id := range m.memberIDs() {
		b, ok := batches[id]
		if !ok {
			continue
		}
		var debit, credit decimal.Decimal
		for _, k := range b.sortedKeys() {
			a := b.accounts[k]
			debit = debit.Add(a.debit)
			credit = credit.Add(a.credit)

			c := byCurrency[k.currency]
			if c == nil {
				c = &account{}
				byCurrency[k.currency] = c
			}
			c.debit = c.debit.Add(a.debit)
			c.credit = c.credit.Add(a.credit)

			pk := participantKey{k, b.State}
			p := byParticipant[pk]
			if p == nil {
				p = &account{}
				byParticipant[pk] = p
			}
			p.debit = p.debit.Add(a.debit)
			p.credit = p.credit.Add(a.credit)
		}
		out.Batches = append(out.Batches, action.MatrixBatch{
			ID:      b.ID,
			Name:    b.BatchName,
			State:   b.State,
			Balance: balance(debit, credit),
		})
	}

	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		a := byCurrency[c]
		out.BalancesByCurrency = append(out.BalancesByCurrency, action.BalanceByCurrency{
			CurrencyCode: c,
			Balance:      balance(a.debit, a.credit),
		})
	}

	keys := make([]participantKey, 0, len(byParticipant))
	for k := range byParticipant {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].participant != keys[j].participant {
			return keys[i].participant < keys[j].participant
		}
		if keys[i].currency != keys[j].currency {
			return keys[i].currency < keys[j].currency
		}
		return keys[i].state < keys[j].state
	})
	for _, k := range keys {
		a := byParticipant[k]
		out.BalancesByParticipant = append(out.BalancesByParticipant, action.BalanceByParticipant{
			BalanceByStateAndCurrency: action.BalanceByStateAndCurrency{
				BalanceByCurrency: action.BalanceByCurrency{CurrencyCode: k.currency, Balance: balance(a.debit, a.credit)},
				State:             k.state,
			},
			ParticipantID: k.participant,
		})
	}
	return out
}

func balance(debit, credit decimal.Decimal) action.Balance {
	return action.Balance{DebitBalance: debit.String(), CreditBalance: credit.String()}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
