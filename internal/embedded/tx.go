package embedded

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type TxState string

const (
	TxActive     TxState = "ACTIVE"
	TxPrepared   TxState = "PREPARED"
	TxCommitted  TxState = "COMMITTED"
	TxRolledBack TxState = "ROLLED_BACK"
)

// TxInfo describes a prepared transaction awaiting an outcome.
type TxInfo struct {
	InternalID int64
	Xid        string
	Status     TxState
	Prepared   time.Time
}

// Tx buffers writes until commit.
type Tx struct {
	table  *TxTable
	id     int64
	xid    uuid.UUID
	state  TxState
	at     time.Time
	writes map[string]*[]byte
	order  []string
}

func (tx *Tx) InternalID() int64 { return tx.id }
func (tx *Tx) Xid() string       { return tx.xid.String() }

func (tx *Tx) Put(key string, value []byte) {
	tx.write(key, &value)
}

func (tx *Tx) Remove(key string) {
	tx.write(key, nil)
}

func (tx *Tx) write(key string, v *[]byte) {
	if _, ok := tx.writes[key]; !ok {
		tx.order = append(tx.order, key)
	}
	tx.writes[key] = v
}

// Prepare makes the transaction in doubt until it is committed, rolled back or forgotten.
func (tx *Tx) Prepare() error { return tx.table.prepare(tx) }

func (tx *Tx) Commit() error { return tx.table.commit(tx) }

func (tx *Tx) Rollback() error { return tx.table.rollback(tx) }

// TxTable tracks the prepared transactions of a cache and its transaction counters.
type TxTable struct {
	mu       sync.Mutex
	apply    func(key string, value *[]byte) error
	nextID   int64
	prepared map[int64]*Tx

	commits, prepares, rollbacks atomic.Int64
}

func newTxTable(apply func(key string, value *[]byte) error) *TxTable {
	return &TxTable{apply: apply, prepared: make(map[int64]*Tx)}
}

func (t *TxTable) begin() *Tx {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	return &Tx{table: t, id: t.nextID, xid: uuid.New(), state: TxActive, writes: make(map[string]*[]byte)}
}

func (t *TxTable) prepare(tx *Tx) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tx.state != TxActive {
		return fmt.Errorf("cannot prepare transaction %d in state %s", tx.id, tx.state)
	}
	tx.state, tx.at = TxPrepared, time.Now()
	t.prepared[tx.id] = tx
	t.prepares.Add(1)
	return nil
}

func (t *TxTable) commit(tx *Tx) error {
	t.mu.Lock()
	if tx.state != TxActive && tx.state != TxPrepared {
		t.mu.Unlock()
		return fmt.Errorf("cannot commit transaction %d in state %s", tx.id, tx.state)
	}
	if tx.state == TxActive {
		t.prepares.Add(1)
	}
	tx.state = TxCommitted
	delete(t.prepared, tx.id)
	t.mu.Unlock()

	t.commits.Add(1)
	for _, k := range tx.order {
		if err := t.apply(k, tx.writes[k]); err != nil {
			return fmt.Errorf("commit transaction %d: %w", tx.id, err)
		}
	}
	return nil
}

func (t *TxTable) rollback(tx *Tx) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tx.state != TxActive && tx.state != TxPrepared {
		return fmt.Errorf("cannot roll back transaction %d in state %s", tx.id, tx.state)
	}
	tx.state = TxRolledBack
	delete(t.prepared, tx.id)
	t.rollbacks.Add(1)
	return nil
}

// InDoubt lists prepared transactions by internal id.
func (t *TxTable) InDoubt() []TxInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TxInfo, 0, len(t.prepared))
	for _, tx := range t.prepared {
		out = append(out, TxInfo{InternalID: tx.id, Xid: tx.xid.String(), Status: tx.state, Prepared: tx.at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalID < out[j].InternalID })
	return out
}

func (t *TxTable) lookup(id int64) (*Tx, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, ok := t.prepared[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTransactionUnknown, id)
	}
	return tx, nil
}

// ForceCommit completes an in doubt transaction.
func (t *TxTable) ForceCommit(id int64) (string, error) {
	tx, err := t.lookup(id)
	if err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}
	return "Commit successful!", nil
}

func (t *TxTable) ForceRollback(id int64) (string, error) {
	tx, err := t.lookup(id)
	if err != nil {
		return "", err
	}
	if err = tx.Rollback(); err != nil {
		return "", err
	}
	return "Rollback successful", nil
}

// Forget drops an in doubt transaction without deciding its outcome.
func (t *TxTable) Forget(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.prepared[id]; !ok {
		return fmt.Errorf("%w: %d", ErrTransactionUnknown, id)
	}
	delete(t.prepared, id)
	return nil
}

// Counters returns commits, prepares and rollbacks.
func (t *TxTable) Counters() (commits, prepares, rollbacks int64) {
	return t.commits.Load(), t.prepares.Load(), t.rollbacks.Load()
}

func (t *TxTable) ResetCounters() {
	t.commits.Store(0)
	t.prepares.Store(0)
	t.rollbacks.Store(0)
}
