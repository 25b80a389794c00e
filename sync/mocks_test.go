package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syc/clubsync/acuity"
	"github.com/syc/clubsync/config"
	"github.com/syc/clubsync/google"
	"github.com/syc/clubsync/report"
)

type mockTable struct {
	Table
	rows [][]interface{}
}

type mockCollection struct {
	title  string
	tables []*mockTable
}

// MockSheetStore is an in-memory SheetStore. Rows are kept as written;
// calls counts every method invocation by name.
type MockSheetStore struct {
	mu               sync.Mutex
	collections      map[string]*mockCollection
	nextCollectionID int
	nextTableID      int64
	shares           map[string][]google.Grant
	calls            map[string]int

	shareErr      error
	listTablesErr error

	// appendErr is returned by the next failAppends AppendRows calls.
	appendErr   error
	failAppends int
}

var _ SheetStore = (*MockSheetStore)(nil)

func NewMockSheetStore() *MockSheetStore {
	return &MockSheetStore{
		collections: make(map[string]*mockCollection),
		shares:      make(map[string][]google.Grant),
		calls:       make(map[string]int),
	}
}

func (m *MockSheetStore) call(name string) {
	m.calls[name]++
}

// Calls returns how often a method was invoked.
func (m *MockSheetStore) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Mutations counts calls that change spreadsheet contents.
func (m *MockSheetStore) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, name := range []string{"CreateCollection", "CreateTable", "DeleteTable", "ClearTable", "AppendRows", "UpdateRow", "DeleteRow"} {
		n += m.calls[name]
	}
	return n
}

// AddCollection seeds a collection and returns its id.
func (m *MockSheetStore) AddCollection(title string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCollectionID++
	id := fmt.Sprintf("sheet-%d", m.nextCollectionID)
	m.collections[id] = &mockCollection{title: title}
	return id
}

// AddTable seeds a table with rows (header included).
func (m *MockSheetStore) AddTable(collectionID, title string, rows ...[]interface{}) Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTableID++
	t := &mockTable{Table: Table{ID: m.nextTableID, Title: title}, rows: rows}
	c := m.collections[collectionID]
	c.tables = append(c.tables, t)
	return t.Table
}

// RemoveCollection drops a collection, as if it were trashed in Drive.
func (m *MockSheetStore) RemoveCollection(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, id)
}

// CollectionID returns the id of the collection with title.
func (m *MockSheetStore) CollectionID(title string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.collections {
		if c.title == title {
			return id, true
		}
	}
	return "", false
}

// Rows returns a copy of a table's rows, or nil when it does not exist.
func (m *MockSheetStore) Rows(collectionID, title string) [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collectionID]
	if !ok {
		return nil
	}
	for _, t := range c.tables {
		if t.Title == title {
			return append([][]interface{}(nil), t.rows...)
		}
	}
	return nil
}

// HasTable reports whether a collection has a table with title.
func (m *MockSheetStore) HasTable(collectionID, title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collectionID]
	if !ok {
		return false
	}
	for _, t := range c.tables {
		if t.Title == title {
			return true
		}
	}
	return false
}

func (m *MockSheetStore) table(collectionID string, t Table) (*mockTable, error) {
	c, ok := m.collections[collectionID]
	if !ok {
		return nil, fmt.Errorf("no collection %s", collectionID)
	}
	for _, mt := range c.tables {
		if mt.ID == t.ID {
			return mt, nil
		}
	}
	return nil, fmt.Errorf("no table %d in %s", t.ID, collectionID)
}

func (m *MockSheetStore) FindCollection(_ context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("FindCollection")
	for id, c := range m.collections {
		if c.title == title {
			return id, nil
		}
	}
	return "", google.ErrSpreadsheetNotFound
}

func (m *MockSheetStore) CreateCollection(_ context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("CreateCollection")
	m.nextCollectionID++
	id := fmt.Sprintf("sheet-%d", m.nextCollectionID)
	m.collections[id] = &mockCollection{title: title}
	return id, nil
}

func (m *MockSheetStore) ShareCollection(_ context.Context, collectionID string, grant google.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("ShareCollection")
	if m.shareErr != nil {
		return m.shareErr
	}
	m.shares[collectionID] = append(m.shares[collectionID], grant)
	return nil
}

func (m *MockSheetStore) ListTables(_ context.Context, collectionID string) ([]Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("ListTables")
	if m.listTablesErr != nil {
		return nil, m.listTablesErr
	}
	c, ok := m.collections[collectionID]
	if !ok {
		return nil, fmt.Errorf("no collection %s: %w", collectionID, google.ErrSpreadsheetNotFound)
	}
	tables := make([]Table, 0, len(c.tables))
	for _, t := range c.tables {
		tables = append(tables, t.Table)
	}
	return tables, nil
}

func (m *MockSheetStore) CreateTable(_ context.Context, collectionID, title string, _ int) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("CreateTable")
	c, ok := m.collections[collectionID]
	if !ok {
		return Table{}, fmt.Errorf("no collection %s", collectionID)
	}
	m.nextTableID++
	t := &mockTable{Table: Table{ID: m.nextTableID, Title: title}}
	c.tables = append(c.tables, t)
	return t.Table, nil
}

func (m *MockSheetStore) DeleteTable(_ context.Context, collectionID string, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("DeleteTable")
	c, ok := m.collections[collectionID]
	if !ok {
		return fmt.Errorf("no collection %s", collectionID)
	}
	for i, mt := range c.tables {
		if mt.ID == t.ID {
			c.tables = append(c.tables[:i], c.tables[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no table %d", t.ID)
}

func (m *MockSheetStore) ClearTable(_ context.Context, collectionID string, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("ClearTable")
	mt, err := m.table(collectionID, t)
	if err != nil {
		return err
	}
	mt.rows = nil
	return nil
}

func (m *MockSheetStore) FreezeHeader(_ context.Context, collectionID string, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("FreezeHeader")
	_, err := m.table(collectionID, t)
	return err
}

func (m *MockSheetStore) AppendRows(_ context.Context, collectionID string, t Table, rows [][]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("AppendRows")
	if m.failAppends > 0 {
		m.failAppends--
		return m.appendErr
	}
	mt, err := m.table(collectionID, t)
	if err != nil {
		return err
	}
	mt.rows = append(mt.rows, rows...)
	return nil
}

func (m *MockSheetStore) ReadRows(_ context.Context, collectionID string, t Table) ([][]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("ReadRows")
	mt, err := m.table(collectionID, t)
	if err != nil {
		return nil, err
	}
	return append([][]interface{}(nil), mt.rows...), nil
}

func (m *MockSheetStore) ReadColumn(_ context.Context, collectionID string, t Table) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("ReadColumn")
	mt, err := m.table(collectionID, t)
	if err != nil {
		return nil, err
	}
	col := make([]string, len(mt.rows))
	for i, row := range mt.rows {
		if len(row) > 0 {
			col[i] = fmt.Sprint(row[0])
		}
	}
	return col, nil
}

func (m *MockSheetStore) UpdateRow(_ context.Context, collectionID string, t Table, rowNum int, row []interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("UpdateRow")
	mt, err := m.table(collectionID, t)
	if err != nil {
		return err
	}
	if rowNum < 1 || rowNum > len(mt.rows) {
		return fmt.Errorf("row %d out of range", rowNum)
	}
	mt.rows[rowNum-1] = row
	return nil
}

func (m *MockSheetStore) DeleteRow(_ context.Context, collectionID string, t Table, rowNum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.call("DeleteRow")
	mt, err := m.table(collectionID, t)
	if err != nil {
		return err
	}
	if rowNum < 1 || rowNum > len(mt.rows) {
		return fmt.Errorf("row %d out of range", rowNum)
	}
	mt.rows = append(mt.rows[:rowNum-1], mt.rows[rowNum:]...)
	return nil
}

// MockRegistry is an in-memory CollectionRegistry.
type MockRegistry struct {
	mu  sync.Mutex
	ids map[string]string
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{ids: make(map[string]string)}
}

func (r *MockRegistry) Lookup(_ context.Context, title string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[title]
	return id, ok, nil
}

func (r *MockRegistry) Save(_ context.Context, title, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[title] = id
	return nil
}

func (r *MockRegistry) Delete(_ context.Context, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, title)
	return nil
}

// MockAppointmentSource serves appointments and orders from maps.
type MockAppointmentSource struct {
	appointments map[string]report.RawAppointment
	orders       map[string]report.RawSchedulingOrder
}

func (s *MockAppointmentSource) Appointment(_ context.Context, id string) (*report.RawAppointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", id, acuity.ErrNotFound)
	}
	return &a, nil
}

func (s *MockAppointmentSource) Order(_ context.Context, id string) (*report.RawSchedulingOrder, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, acuity.ErrNotFound)
	}
	return &o, nil
}

// MockOrderFetcher returns canned Squarespace pages by year.
type MockOrderFetcher struct {
	orders       map[int][]report.RawOrder
	transactions map[int][]json.RawMessage
	err          error
	ordersErr    error
}

func (f *MockOrderFetcher) Orders(_ context.Context, year int) ([]json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	var out []json.RawMessage
	for _, o := range f.orders[year] {
		data, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func (f *MockOrderFetcher) Transactions(_ context.Context, year int) ([]json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transactions[year], nil
}

// MockBalanceFetcher returns canned Stripe balance transactions.
type MockBalanceFetcher struct {
	txns []report.StripeBalanceTransaction
	err  error
}

func (f *MockBalanceFetcher) BalanceTransactions(context.Context, int) ([]report.StripeBalanceTransaction, error) {
	return f.txns, f.err
}

// MockRunLog records summaries in memory.
type MockRunLog struct {
	mu      sync.Mutex
	records []*Summary
	pruned  []time.Time
}

func (l *MockRunLog) Record(s *Summary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, s)
	return nil
}

func (l *MockRunLog) Prune(before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruned = append(l.pruned, before)
	return 0, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Collections[config.CollectionInstruction] = config.CollectionConfig{
		Title:  "{org} Instruction - Year {year}",
		Grants: []google.Grant{{Email: "coach@example.com"}},
	}
	return cfg
}

func testResolver(store SheetStore) *DestinationResolver {
	return NewDestinationResolver(testConfig(), store, NewMockRegistry(), nil)
}
