package engine

import (
	"fmt"

	"tradesim/internal/domain"
)

// lot is one arena slot. Closed lots stay in place until the arena is
// compacted so IDs handed out during a pass remain valid.
type lot struct {
	pos  domain.Position
	open bool
}

// Ledger is the FIFO collection of open long lots for one run.
type Ledger struct {
	lots   []lot
	nextID int
	open   int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{nextID: 1}
}

// Open appends a lot and returns its ID. The Position's ID field is
// overwritten.
func (l *Ledger) Open(p domain.Position) int {
	p.ID = l.nextID
	l.nextID++
	l.lots = append(l.lots, lot{pos: p, open: true})
	l.open++
	return p.ID
}

// Close removes the lot with the given ID and returns it. Closing an
// unknown or already closed lot is an invariant violation.
func (l *Ledger) Close(id int) (domain.Position, error) {
	i := l.index(id)
	if i < 0 || !l.lots[i].open {
		return domain.Position{}, fmt.Errorf("lot %d is not open", id)
	}
	l.lots[i].open = false
	l.open--
	p := l.lots[i].pos
	if l.open == 0 {
		l.lots = l.lots[:0]
	}
	return p, nil
}

// Get returns the lot with the given ID if it is still open.
func (l *Ledger) Get(id int) (domain.Position, bool) {
	i := l.index(id)
	if i < 0 || !l.lots[i].open {
		return domain.Position{}, false
	}
	return l.lots[i].pos, true
}

// OpenIDs returns the IDs of open lots in insertion order. The slice is a
// snapshot; closing lots while ranging over it is safe.
func (l *Ledger) OpenIDs() []int {
	ids := make([]int, 0, l.open)
	for _, lt := range l.lots {
		if lt.open {
			ids = append(ids, lt.pos.ID)
		}
	}
	return ids
}

// Len returns the number of open lots.
func (l *Ledger) Len() int { return l.open }

// Shares returns the total shares held across open lots.
func (l *Ledger) Shares() int64 {
	var n int64
	for _, lt := range l.lots {
		if lt.open {
			n += lt.pos.Shares
		}
	}
	return n
}

// index finds the slot for id. IDs are assigned in increasing order so the
// arena is sorted by ID.
func (l *Ledger) index(id int) int {
	lo, hi := 0, len(l.lots)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case l.lots[mid].pos.ID == id:
			return mid
		case l.lots[mid].pos.ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}
