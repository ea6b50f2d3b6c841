package evaluation

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// FaultFunc is consulted before every transactional write of a MemoryStore.
// A non-nil return aborts the write with that error.
type FaultFunc func(op string) error

type MemoryOption func(*MemoryStore)

func WithFault(fault FaultFunc) MemoryOption {
	return func(s *MemoryStore) {
		s.fault = fault
	}
}

// MemoryStore keeps evaluation state in process. Transactions stage their
// writes and publish them on commit, so a failed transaction leaves nothing behind.
type MemoryStore struct {
	mu    sync.RWMutex
	data  memoryData
	locks *keyedMutex
	fault FaultFunc
}

type memoryData struct {
	items     map[string]EvaluationItem
	itemKeys  map[ItemKey]string
	records   map[RecordKey]StepApprovalRecord
	revisions map[string]RevisionRequest
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data: memoryData{
			items:     map[string]EvaluationItem{},
			itemKeys:  map[ItemKey]string{},
			records:   map[RecordKey]StepApprovalRecord{},
			revisions: map[string]RevisionRequest{},
		},
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) GetItem(ctx context.Context, itemID string) (EvaluationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getItem(itemID)
}

func (s *MemoryStore) ListItems(ctx context.Context, filter ItemFilter) ([]EvaluationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listItems(filter), nil
}

func (s *MemoryStore) GetApprovalRecord(ctx context.Context, key RecordKey) (StepApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getRecord(key)
}

func (s *MemoryStore) ListApprovalRecords(ctx context.Context, periodID, employeeID string) ([]StepApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listRecords(periodID, employeeID), nil
}

func (s *MemoryStore) GetRevision(ctx context.Context, requestID string) (RevisionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getRevision(requestID)
}

func (s *MemoryStore) ListRevisions(ctx context.Context, filter RevisionFilter) ([]RevisionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listRevisions(filter), nil
}

func (s *MemoryStore) ReadSnapshot(ctx context.Context, fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memoryView{data: &s.data})
}

func (s *MemoryStore) WithScopeTx(ctx context.Context, lockKey string, fn func(tx Tx) error) error {
	if err := s.locks.lock(ctx, lockKey); err != nil {
		return err
	}
	defer s.locks.unlock(lockKey)

	tx := &memoryTx{store: s, staged: newStaged()}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.staged.publish(&s.data)
	return nil
}

// memoryView reads data without locking; the caller holds the store lock.
type memoryView struct {
	data *memoryData
}

func (v memoryView) GetItem(ctx context.Context, itemID string) (EvaluationItem, error) {
	return v.data.getItem(itemID)
}

func (v memoryView) ListItems(ctx context.Context, filter ItemFilter) ([]EvaluationItem, error) {
	return v.data.listItems(filter), nil
}

func (v memoryView) GetApprovalRecord(ctx context.Context, key RecordKey) (StepApprovalRecord, error) {
	return v.data.getRecord(key)
}

func (v memoryView) ListApprovalRecords(ctx context.Context, periodID, employeeID string) ([]StepApprovalRecord, error) {
	return v.data.listRecords(periodID, employeeID), nil
}

func (v memoryView) GetRevision(ctx context.Context, requestID string) (RevisionRequest, error) {
	return v.data.getRevision(requestID)
}

func (v memoryView) ListRevisions(ctx context.Context, filter RevisionFilter) ([]RevisionRequest, error) {
	return v.data.listRevisions(filter), nil
}

// memoryTx reads through its staged writes onto the committed data.
type memoryTx struct {
	store  *MemoryStore
	staged *memoryData
}

func newStaged() *memoryData {
	return &memoryData{
		items:     map[string]EvaluationItem{},
		itemKeys:  map[ItemKey]string{},
		records:   map[RecordKey]StepApprovalRecord{},
		revisions: map[string]RevisionRequest{},
	}
}

func (tx *memoryTx) read(fn func(o overlay)) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	fn(overlay{staged: tx.staged, base: &tx.store.data})
}

func (tx *memoryTx) GetItem(ctx context.Context, itemID string) (item EvaluationItem, err error) {
	tx.read(func(o overlay) { item, err = o.getItem(itemID) })
	return item, err
}

func (tx *memoryTx) ListItems(ctx context.Context, filter ItemFilter) (items []EvaluationItem, err error) {
	tx.read(func(o overlay) { items = o.listItems(filter) })
	return items, nil
}

func (tx *memoryTx) GetApprovalRecord(ctx context.Context, key RecordKey) (record StepApprovalRecord, err error) {
	tx.read(func(o overlay) { record, err = o.getRecord(key) })
	return record, err
}

func (tx *memoryTx) ListApprovalRecords(ctx context.Context, periodID, employeeID string) (records []StepApprovalRecord, err error) {
	tx.read(func(o overlay) { records = o.listRecords(periodID, employeeID) })
	return records, nil
}

func (tx *memoryTx) GetRevision(ctx context.Context, requestID string) (request RevisionRequest, err error) {
	tx.read(func(o overlay) { request, err = o.getRevision(requestID) })
	return request, err
}

func (tx *memoryTx) ListRevisions(ctx context.Context, filter RevisionFilter) (requests []RevisionRequest, err error) {
	tx.read(func(o overlay) { requests = o.listRevisions(filter) })
	return requests, nil
}

func (tx *memoryTx) UpsertItem(ctx context.Context, item EvaluationItem) (EvaluationItem, error) {
	if err := tx.check("UpsertItem"); err != nil {
		return EvaluationItem{}, err
	}
	var existing EvaluationItem
	found := false
	tx.read(func(o overlay) {
		if id, ok := o.itemID(item.Key()); ok {
			existing, found = o.lookupItem(id)
		}
	})
	if found {
		existing.Content = item.Content
		existing.Score = item.Score
		existing.ProjectID = item.ProjectID
		existing.UpdatedAt = item.UpdatedAt
		tx.staged.items[existing.ID] = existing
		return existing, nil
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	tx.staged.items[item.ID] = item
	tx.staged.itemKeys[item.Key()] = item.ID
	return item, nil
}

func (tx *memoryTx) UpdateItemSubmission(ctx context.Context, item EvaluationItem) error {
	if err := tx.check("UpdateItemSubmission"); err != nil {
		return err
	}
	current, err := tx.GetItem(ctx, item.ID)
	if err != nil {
		return err
	}
	current.SubmittedToEvaluator = item.SubmittedToEvaluator
	current.SubmittedToEvaluatorAt = item.SubmittedToEvaluatorAt
	current.SubmittedToManager = item.SubmittedToManager
	current.SubmittedToManagerAt = item.SubmittedToManagerAt
	current.UpdatedAt = item.UpdatedAt
	tx.staged.items[current.ID] = current
	return nil
}

func (tx *memoryTx) SaveApprovalRecord(ctx context.Context, record StepApprovalRecord) error {
	if err := tx.check("SaveApprovalRecord"); err != nil {
		return err
	}
	tx.staged.records[record.Key()] = record
	return nil
}

func (tx *memoryTx) InsertRevision(ctx context.Context, request RevisionRequest) error {
	if err := tx.check("InsertRevision"); err != nil {
		return err
	}
	var dup bool
	tx.read(func(o overlay) { _, dup = o.lookupRevision(request.ID) })
	if dup {
		return fmt.Errorf("revision request %s already exists", request.ID)
	}
	tx.staged.revisions[request.ID] = request
	return nil
}

func (tx *memoryTx) UpdateRevision(ctx context.Context, request RevisionRequest) error {
	if err := tx.check("UpdateRevision"); err != nil {
		return err
	}
	if _, err := tx.GetRevision(ctx, request.ID); err != nil {
		return err
	}
	tx.staged.revisions[request.ID] = request
	return nil
}

func (tx *memoryTx) check(op string) error {
	if tx.store.fault == nil {
		return nil
	}
	return tx.store.fault(op)
}

func (d *memoryData) publish(into *memoryData) {
	for id, item := range d.items {
		into.items[id] = item
	}
	for key, id := range d.itemKeys {
		into.itemKeys[key] = id
	}
	for key, record := range d.records {
		into.records[key] = record
	}
	for id, request := range d.revisions {
		into.revisions[id] = request
	}
}

func (d *memoryData) getItem(itemID string) (EvaluationItem, error) {
	item, ok := d.items[itemID]
	if !ok {
		return EvaluationItem{}, ErrNotFound
	}
	return item, nil
}

func (d *memoryData) listItems(filter ItemFilter) []EvaluationItem {
	out := make([]EvaluationItem, 0)
	for _, item := range d.items {
		if matchItem(item, filter) {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out
}

func (d *memoryData) getRecord(key RecordKey) (StepApprovalRecord, error) {
	record, ok := d.records[key]
	if !ok {
		return StepApprovalRecord{}, ErrNotFound
	}
	return record, nil
}

func (d *memoryData) listRecords(periodID, employeeID string) []StepApprovalRecord {
	out := make([]StepApprovalRecord, 0)
	for key, record := range d.records {
		if key.PeriodID == periodID && key.EmployeeID == employeeID {
			out = append(out, record)
		}
	}
	sortRecords(out)
	return out
}

func (d *memoryData) getRevision(requestID string) (RevisionRequest, error) {
	request, ok := d.revisions[requestID]
	if !ok {
		return RevisionRequest{}, ErrNotFound
	}
	return request, nil
}

func (d *memoryData) listRevisions(filter RevisionFilter) []RevisionRequest {
	out := make([]RevisionRequest, 0)
	for _, request := range d.revisions {
		if matchRevision(request, filter) {
			out = append(out, request)
		}
	}
	sortRevisions(out)
	return out
}

// overlay reads a transaction's staged writes first and falls back to the
// committed data key by key. The caller holds the store read lock.
type overlay struct {
	staged *memoryData
	base   *memoryData
}

func (o overlay) lookupItem(itemID string) (EvaluationItem, bool) {
	if item, ok := o.staged.items[itemID]; ok {
		return item, true
	}
	item, ok := o.base.items[itemID]
	return item, ok
}

func (o overlay) getItem(itemID string) (EvaluationItem, error) {
	item, ok := o.lookupItem(itemID)
	if !ok {
		return EvaluationItem{}, ErrNotFound
	}
	return item, nil
}

func (o overlay) itemID(key ItemKey) (string, bool) {
	if id, ok := o.staged.itemKeys[key]; ok {
		return id, true
	}
	id, ok := o.base.itemKeys[key]
	return id, ok
}

func (o overlay) listItems(filter ItemFilter) []EvaluationItem {
	out := make([]EvaluationItem, 0)
	for id, item := range o.base.items {
		if staged, ok := o.staged.items[id]; ok {
			item = staged
		}
		if matchItem(item, filter) {
			out = append(out, item)
		}
	}
	for id, item := range o.staged.items {
		if _, committed := o.base.items[id]; !committed && matchItem(item, filter) {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out
}

func (o overlay) getRecord(key RecordKey) (StepApprovalRecord, error) {
	if record, ok := o.staged.records[key]; ok {
		return record, nil
	}
	return o.base.getRecord(key)
}

func (o overlay) listRecords(periodID, employeeID string) []StepApprovalRecord {
	out := make([]StepApprovalRecord, 0)
	keep := func(key RecordKey) bool { return key.PeriodID == periodID && key.EmployeeID == employeeID }
	for key, record := range o.base.records {
		if staged, ok := o.staged.records[key]; ok {
			record = staged
		}
		if keep(key) {
			out = append(out, record)
		}
	}
	for key, record := range o.staged.records {
		if _, committed := o.base.records[key]; !committed && keep(key) {
			out = append(out, record)
		}
	}
	sortRecords(out)
	return out
}

func (o overlay) lookupRevision(requestID string) (RevisionRequest, bool) {
	if request, ok := o.staged.revisions[requestID]; ok {
		return request, true
	}
	request, ok := o.base.revisions[requestID]
	return request, ok
}

func (o overlay) getRevision(requestID string) (RevisionRequest, error) {
	request, ok := o.lookupRevision(requestID)
	if !ok {
		return RevisionRequest{}, ErrNotFound
	}
	return request, nil
}

func (o overlay) listRevisions(filter RevisionFilter) []RevisionRequest {
	out := make([]RevisionRequest, 0)
	for id, request := range o.base.revisions {
		if staged, ok := o.staged.revisions[id]; ok {
			request = staged
		}
		if matchRevision(request, filter) {
			out = append(out, request)
		}
	}
	for id, request := range o.staged.revisions {
		if _, committed := o.base.revisions[id]; !committed && matchRevision(request, filter) {
			out = append(out, request)
		}
	}
	sortRevisions(out)
	return out
}

func sortItems(items []EvaluationItem) {
	slices.SortFunc(items, func(a, b EvaluationItem) int {
		return cmp.Or(
			cmp.Compare(stepOrder(a.Step), stepOrder(b.Step)),
			cmp.Compare(a.EvaluatorID, b.EvaluatorID),
			cmp.Compare(a.WBSItemID, b.WBSItemID),
		)
	})
}

func sortRecords(records []StepApprovalRecord) {
	slices.SortFunc(records, func(a, b StepApprovalRecord) int {
		return cmp.Or(
			cmp.Compare(stepOrder(a.Step), stepOrder(b.Step)),
			cmp.Compare(a.EvaluatorID, b.EvaluatorID),
		)
	})
}

func sortRevisions(requests []RevisionRequest) {
	slices.SortFunc(requests, func(a, b RevisionRequest) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

func matchItem(item EvaluationItem, f ItemFilter) bool {
	return (f.PeriodID == "" || item.PeriodID == f.PeriodID) &&
		(f.EmployeeID == "" || item.EmployeeID == f.EmployeeID) &&
		(f.Step == "" || item.Step == f.Step) &&
		(f.EvaluatorID == "" || item.EvaluatorID == f.EvaluatorID) &&
		(f.ProjectID == "" || item.ProjectID == f.ProjectID)
}

func matchRevision(r RevisionRequest, f RevisionFilter) bool {
	return (f.PeriodID == "" || r.PeriodID == f.PeriodID) &&
		(f.EmployeeID == "" || r.EmployeeID == f.EmployeeID) &&
		(f.Step == "" || r.Step == f.Step) &&
		(f.RecipientID == "" || r.RecipientID == f.RecipientID) &&
		(f.IsCompleted == nil || r.IsCompleted == *f.IsCompleted)
}

func stepOrder(step Step) int {
	return slices.Index(Steps, step)
}

// keyedMutex hands out one lock per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (m *keyedMutex) lock(ctx context.Context, key string) error {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, l)
		return ctx.Err()
	}
}

func (m *keyedMutex) unlock(key string) {
	m.mu.Lock()
	l := m.locks[key]
	m.mu.Unlock()
	<-l.ch
	m.release(key, l)
}

func (m *keyedMutex) release(key string, l *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}
