// Package partition implements the PartitionEngine: the three-level
// nested namespace (database -> schema -> table) a StoragePeer holds
// its partition under, each level an ordmap.OrderedMap over the level
// below, with the innermost level an OrderedMap keyed by recordkey.Key
// holding the record payload.
package partition

import (
	"github.com/sharddb/sharddb/pkg/codec"
	"github.com/sharddb/sharddb/pkg/errs"
	"github.com/sharddb/sharddb/pkg/ordmap"
	"github.com/sharddb/sharddb/pkg/recordkey"
)

// namespaceDegree/namespaceLeafCap size the db and schema levels. These
// levels hold at most a handful of entries per peer in practice, so a
// small fixed tree shape is sufficient; the record-bearing table level
// uses the caller-supplied degree/leaf capacity, since that is the
// level spec.md's size and performance requirements are about.
const (
	namespaceDegree  = 4
	namespaceLeafCap = 4
)

func stringCmp(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// table is the innermost level: a set of records keyed by recordkey.Key.
type table = ordmap.OrderedMap[recordkey.Key, codec.Record]

// schema holds table trees keyed by table name.
type schema = ordmap.OrderedMap[string, *table]

// database holds schema trees keyed by schema name.
type database = ordmap.OrderedMap[string, *schema]

// Engine is the PartitionEngine: db -> schema -> table -> set<Record>.
type Engine struct {
	tableDegree   int
	tableLeafCap  int
	tableCapacity int
	dbs           *ordmap.OrderedMap[string, *database]
}

// New constructs an empty Engine. tableDegree/tableLeafCap size every
// per-table record tree it lazily creates; tableCapacity bounds each
// such tree's node arena (<= 0 means unbounded), per the config.Tree
// "capacity" setting every table-level tree is built against. The db
// and schema namespace levels hold only a handful of entries per peer
// in practice, so they stay on an unbounded arena regardless.
func New(tableDegree, tableLeafCap, tableCapacity int) *Engine {
	return &Engine{
		tableDegree:   tableDegree,
		tableLeafCap:  tableLeafCap,
		tableCapacity: tableCapacity,
		dbs:           ordmap.New[string, *database](stringCmp, namespaceDegree, namespaceLeafCap, nil),
	}
}

func validatePath(db, schema, tbl string) error {
	switch {
	case db == "":
		return errs.NewProtocol("database name must be non-empty")
	case schema == "":
		return errs.NewProtocol("schema name must be non-empty")
	case tbl == "":
		return errs.NewProtocol("table name must be non-empty")
	}
	return nil
}

func newSchema() *schema {
	return ordmap.New[string, *table](stringCmp, namespaceDegree, namespaceLeafCap, nil)
}

func newDatabase() *database {
	return ordmap.New[string, *schema](stringCmp, namespaceDegree, namespaceLeafCap, nil)
}

// ensureTable creates the (db, schema, table) levels lazily, used by Add.
func (e *Engine) ensureTable(db, sch, tbl string) *table {
	d, ok := e.dbs.Get(db)
	if !ok {
		d = newDatabase()
		e.dbs.Add(db, d)
	}
	s, ok := d.Get(sch)
	if !ok {
		s = newSchema()
		d.Add(sch, s)
	}
	t, ok := s.Get(tbl)
	if !ok {
		t = ordmap.NewBounded[recordkey.Key, codec.Record](recordkey.Compare, e.tableDegree, e.tableLeafCap, e.tableCapacity)
		s.Add(tbl, t)
	}
	return t
}

// lookupTable navigates to an existing table, returning ok=false if any
// level is missing.
func (e *Engine) lookupTable(db, sch, tbl string) (*table, bool) {
	d, ok := e.dbs.Get(db)
	if !ok {
		return nil, false
	}
	s, ok := d.Get(sch)
	if !ok {
		return nil, false
	}
	t, ok := s.Get(tbl)
	return t, ok
}

// Add inserts rec at key in (db, schema, table), creating intermediate
// levels lazily. It returns false if the key is already present.
func (e *Engine) Add(db, sch, tbl string, key recordkey.Key, rec codec.Record) (bool, error) {
	if err := validatePath(db, sch, tbl); err != nil {
		return false, err
	}
	t := e.ensureTable(db, sch, tbl)
	added, err := t.Add(key, rec)
	if err != nil {
		return false, errs.NewCapacityExhausted(err.Error())
	}
	return added, nil
}

// Contains reports whether key is present in (db, schema, table). A
// missing namespace level is not an error: it simply answers false.
func (e *Engine) Contains(db, sch, tbl string, key recordkey.Key) (bool, error) {
	if err := validatePath(db, sch, tbl); err != nil {
		return false, err
	}
	t, ok := e.lookupTable(db, sch, tbl)
	if !ok {
		return false, nil
	}
	return t.Contains(key), nil
}

// Remove deletes key from (db, schema, table). It returns false if the
// key, or any containing namespace level, does not exist.
func (e *Engine) Remove(db, sch, tbl string, key recordkey.Key) (bool, error) {
	if err := validatePath(db, sch, tbl); err != nil {
		return false, err
	}
	t, ok := e.lookupTable(db, sch, tbl)
	if !ok {
		return false, nil
	}
	return t.Remove(key), nil
}

// GetKey returns the record stored at key, if present.
func (e *Engine) GetKey(db, sch, tbl string, key recordkey.Key) (codec.Record, bool, error) {
	if err := validatePath(db, sch, tbl); err != nil {
		return codec.Record{}, false, err
	}
	t, ok := e.lookupTable(db, sch, tbl)
	if !ok {
		return codec.Record{}, false, nil
	}
	rec, found := t.Get(key)
	return rec, found, nil
}

// DeleteDatabase removes db and everything nested under it. It returns
// false if db does not exist.
func (e *Engine) DeleteDatabase(db string) (bool, error) {
	if db == "" {
		return false, errs.NewProtocol("database name must be non-empty")
	}
	return e.dbs.Remove(db), nil
}

// DeleteSchema removes (db, schema) and everything nested under it. It
// returns false if the path does not exist.
func (e *Engine) DeleteSchema(db, sch string) (bool, error) {
	if db == "" || sch == "" {
		return false, errs.NewProtocol("database and schema names must be non-empty")
	}
	d, ok := e.dbs.Get(db)
	if !ok {
		return false, nil
	}
	return d.Remove(sch), nil
}

// DeleteTable removes (db, schema, table). It returns false if the path
// does not exist.
func (e *Engine) DeleteTable(db, sch, tbl string) (bool, error) {
	if err := validatePath(db, sch, tbl); err != nil {
		return false, err
	}
	d, ok := e.dbs.Get(db)
	if !ok {
		return false, nil
	}
	s, ok := d.Get(sch)
	if !ok {
		return false, nil
	}
	return s.Remove(tbl), nil
}

// Visit is called by IterAll for every record in the engine.
type Visit func(db, schema, tableName string, key recordkey.Key, rec codec.Record)

// IterAll performs a depth-first traversal over every record held by
// the engine, used by StoragePeer to drive resharding.
func (e *Engine) IterAll(visit Visit) {
	for dc := e.dbs.Begin(); dc.Valid(); dc.Next() {
		dbEntry := dc.Entry()
		for sc := dbEntry.Value.Begin(); sc.Valid(); sc.Next() {
			schEntry := sc.Entry()
			for tc := schEntry.Value.Begin(); tc.Valid(); tc.Next() {
				tblEntry := tc.Entry()
				t := tblEntry.Value
				for rc := t.Begin(); rc.Valid(); rc.Next() {
					recEntry := rc.Entry()
					visit(dbEntry.Key, schEntry.Key, tblEntry.Key, recEntry.Key, recEntry.Value)
				}
			}
		}
	}
}
