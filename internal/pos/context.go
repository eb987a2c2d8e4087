package pos

import (
	"sync"
	"time"

	"TableSide/internal/cart"
	"TableSide/internal/models"

	"github.com/shopspring/decimal"
)

// SessionContext is everything one terminal knows about one table: its
// unsent cart, the exploded ledger view and the last session it read.
// Callers hold mu for the whole of an operation.
type SessionContext struct {
	mu sync.Mutex

	tableID  string
	cart     *cart.Buffer
	units    []models.Unit
	session  *models.TableSession
	loadedAt time.Time
}

func newSessionContext(tableID string) *SessionContext {
	return &SessionContext{tableID: tableID, cart: cart.New(), session: &models.TableSession{TableID: tableID}}
}

func (sc *SessionContext) TableID() string      { return sc.tableID }
func (sc *SessionContext) Cart() *cart.Buffer   { return sc.cart }
func (sc *SessionContext) Units() []models.Unit { return sc.units }

// Snapshot is a read-only copy of a SessionContext.
type Snapshot struct {
	TableID     string               `json:"table_id"`
	Session     *models.TableSession `json:"session"`
	Units       []models.Unit        `json:"units"`
	Cart        []models.CartLine    `json:"cart"`
	CartTotal   decimal.Decimal      `json:"cart_total"`
	LedgerTotal decimal.Decimal      `json:"ledger_total"`
	Dirty       bool                 `json:"dirty"`
	LoadedAt    time.Time            `json:"loaded_at"`
}

func (sc *SessionContext) snapshot() Snapshot {
	s := *sc.session
	units := make([]models.Unit, len(sc.units))
	copy(units, sc.units)
	return Snapshot{
		TableID:     sc.tableID,
		Session:     &s,
		Units:       units,
		Cart:        sc.cart.Lines(),
		CartTotal:   sc.cart.Total(),
		LedgerTotal: activeTotal(sc.units),
		Dirty:       sc.cart.Dirty(),
		LoadedAt:    sc.loadedAt,
	}
}

// activeTotal is what is still owed on the loaded units.
func activeTotal(units []models.Unit) decimal.Decimal {
	sum := decimal.Zero
	for i := range units {
		if units[i].Line.Status.IsActive() {
			sum = sum.Add(units[i].Line.UnitValue())
		}
	}
	return sum
}
