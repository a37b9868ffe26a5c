package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"topup-service/internal/models"
	"topup-service/internal/reseller"
	"topup-service/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	txs      map[int64]*models.Transaction
	balances map[int64]int64
	getErr   error
	saveErr  error

	merchandise map[int64]models.Merchandise
	checkouts   [][]store.CheckoutLine
	checkoutErr error
	nextID      int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txs:         map[int64]*models.Transaction{},
		balances:    map[int64]int64{},
		merchandise: map[int64]models.Merchandise{},
		nextID:      100,
	}
}

func (f *fakeStore) put(tx models.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := tx
	f.txs[tx.ID] = &cp
}

func (f *fakeStore) get(id int64) models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.txs[id]
}

func (f *fakeStore) balance(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeStore) GetTransaction(_ context.Context, id int64) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	tx, ok := f.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrTransactionNotFound, id)
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeStore) SaveOrderOutcome(_ context.Context, id int64, serverResponse string, accepted bool, status models.Status, externalOrderID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	tx, ok := f.txs[id]
	if !ok {
		return store.ErrTransactionNotFound
	}
	tx.ServerResponse = serverResponse
	tx.IsAccepted = accepted
	tx.Status = status
	if externalOrderID != nil {
		tx.ExternalOrderID = externalOrderID
	}
	return nil
}

func (f *fakeStore) SaveRefreshOutcome(_ context.Context, id int64, serverResponse string, status models.Status, accepted bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return false, f.saveErr
	}
	tx := f.txs[id]
	if tx == nil || tx.Status.IsRefunded() {
		return false, nil
	}
	tx.ServerResponse = serverResponse
	tx.Status = status
	tx.IsAccepted = accepted
	return true, nil
}

func (f *fakeStore) ApplyRefund(_ context.Context, id int64, serverResponse string, status models.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return false, f.saveErr
	}
	tx := f.txs[id]
	if tx == nil || tx.Status.IsRefunded() {
		return false, nil
	}
	tx.ServerResponse = serverResponse
	tx.Status = status
	tx.IsAccepted = false
	f.balances[tx.UserID] += tx.Amount
	return true, nil
}

func (f *fakeStore) AnnotateServerResponse(_ context.Context, id int64, serverResponse string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[id]
	if !ok {
		return store.ErrTransactionNotFound
	}
	tx.ServerResponse = serverResponse
	return nil
}

func (f *fakeStore) GetMerchandiseByIDs(_ context.Context, ids []int64) ([]models.Merchandise, error) {
	var out []models.Merchandise
	for _, id := range ids {
		if m, ok := f.merchandise[id]; ok && m.Enabled {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateCheckout(_ context.Context, _ string, lines []store.CheckoutLine, _ models.Inputs) ([]int64, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.checkouts = append(f.checkouts, lines)
	ids := make([]int64, 0, len(lines))
	for range lines {
		f.nextID++
		ids = append(ids, f.nextID)
	}
	return ids, nil
}

type resellerCall struct {
	path    string
	payload interface{}
}

type fakeReseller struct {
	mu      sync.Mutex
	calls   []resellerCall
	respond func(path string) (reseller.Result, error)
}

func (f *fakeReseller) Call(_ context.Context, path string, payload interface{}) (reseller.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, resellerCall{path: path, payload: payload})
	f.mu.Unlock()
	return f.respond(path)
}

func (f *fakeReseller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []models.NotificationKind
	last  models.Transaction
}

func (f *fakeNotifier) Notify(_ context.Context, tx *models.Transaction, kind models.NotificationKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	f.last = *tx
	return nil
}

func (f *fakeNotifier) sent() []models.NotificationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.NotificationKind(nil), f.kinds...)
}

type fakeGuard struct {
	mu      sync.Mutex
	locks   map[string]string
	markers map[string]bool
	seq     int
	lockErr error
	markErr error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{locks: map[string]string{}, markers: map[string]bool{}}
}

func (g *fakeGuard) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lockErr != nil {
		return "", g.lockErr
	}
	if _, held := g.locks[key]; held {
		return "", nil
	}
	g.seq++
	token := fmt.Sprintf("t%d", g.seq)
	g.locks[key] = token
	return token, nil
}

func (g *fakeGuard) ReleaseLock(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locks[key] == token {
		delete(g.locks, key)
	}
	return nil
}

func (g *fakeGuard) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.markErr != nil {
		return false, g.markErr
	}
	if g.markers[key] {
		return false, nil
	}
	g.markers[key] = true
	return true, nil
}

type fakeQueue struct {
	mu          sync.Mutex
	fulfillment []int64
	refresh     []int64
	err         error
}

func (q *fakeQueue) EnqueueFulfillment(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.fulfillment = append(q.fulfillment, id)
	return nil
}

func (q *fakeQueue) EnqueueRefresh(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.refresh = append(q.refresh, id)
	return nil
}

type fakeLookup map[string]int64

func (l fakeLookup) FindTransactionIDByExternalOrderID(_ context.Context, orderID string) (int64, error) {
	id, ok := l[orderID]
	if !ok {
		return 0, store.ErrTransactionNotFound
	}
	return id, nil
}

type fakeBalances struct {
	credited map[string]int64
}

func (b *fakeBalances) CreditUser(_ context.Context, telegramID string, amount int64) (int64, error) {
	if _, ok := b.credited[telegramID]; !ok {
		return 0, store.ErrUserNotFound
	}
	b.credited[telegramID] += amount
	return b.credited[telegramID], nil
}
