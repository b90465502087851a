package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ Connection = (*Memory)(nil)

var (
	ErrDuplicateKey      = errors.New("E11000 duplicate key error")
	ErrNamespaceExists   = errors.New("collection already exists")
	ErrImmutableID       = errors.New("performing an update on the path '_id' would modify the immutable field '_id'")
	ErrUnsupportedFilter = errors.New("unsupported query operator")
)

// MemoryConfig 内存实现的配置
type MemoryConfig struct {
	Iterations int
	MultiDB    bool
	Shards     int
	// WriteConcern makes write errors surface from the write call itself.
	// Otherwise they are held per shard and returned by the next Drain,
	// like unacknowledged writes against a server.
	WriteConcern bool
}

// Memory is an in-process Connection. Every operation is applied
// synchronously, so it measures the harness itself rather than a server.
type Memory struct {
	cfg MemoryConfig

	mu  sync.Mutex
	dbs map[string]*memCollection

	pendingMu sync.Mutex
	pending   map[int]error
}

func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Shards <= 0 {
		cfg.Shards = MaxShards
	}
	return &Memory{
		cfg:     cfg,
		dbs:     make(map[string]*memCollection),
		pending: make(map[int]error),
	}
}

func (m *Memory) Iterations() int                 { return m.cfg.Iterations }
func (m *Memory) MultiDB() bool                   { return m.cfg.MultiDB }
func (m *Memory) Shards() int                     { return m.cfg.Shards }
func (m *Memory) Close(ctx context.Context) error { return nil }

func (m *Memory) coll(slot int, create bool) *memCollection {
	name := DatabaseName(slot, m.cfg.MultiDB)
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.dbs[name]
	if c == nil && create {
		c = newMemCollection()
		m.dbs[name] = c
	}
	return c
}

// settle either returns a write error or parks it for the next Drain.
func (m *Memory) settle(slot int, err error) error {
	if err == nil || m.cfg.WriteConcern {
		return err
	}
	m.pendingMu.Lock()
	if m.pending[slot] == nil {
		m.pending[slot] = err
	}
	m.pendingMu.Unlock()
	return nil
}

func (m *Memory) writeEach(shard int, fn func(c *memCollection) error) error {
	slots, err := targets(shard, m.Shards(), m.cfg.MultiDB)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		err := fn(m.coll(slot, true))
		// fixture writes are acknowledged
		if shard != AllShards {
			err = m.settle(slot, err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Insert(ctx context.Context, shard int, doc bson.D) error {
	return m.InsertMany(ctx, shard, []bson.D{doc})
}

func (m *Memory) InsertMany(ctx context.Context, shard int, docs []bson.D) error {
	return m.writeEach(shard, func(c *memCollection) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, doc := range docs {
			if err := c.insert(doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Memory) Update(ctx context.Context, shard int, filter, update bson.D, upsert, multi bool) error {
	if err := checkShard(shard, m.Shards()); err != nil {
		return err
	}
	c := m.coll(shard, true)
	c.mu.Lock()
	_, err := c.update(filter, update, upsert, multi)
	c.mu.Unlock()
	return m.settle(shard, err)
}

func (m *Memory) Remove(ctx context.Context, shard int, filter bson.D, justOne bool) error {
	if err := checkShard(shard, m.Shards()); err != nil {
		return err
	}
	c := m.coll(shard, false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	err := c.remove(filter, justOne)
	c.mu.Unlock()
	return m.settle(shard, err)
}

func (m *Memory) FindOne(ctx context.Context, shard int, filter, projection bson.D) (bson.D, error) {
	cur, err := m.find(shard, filter, 1, 0, projection)
	if err != nil || len(cur.docs) == 0 {
		return nil, err
	}
	return cur.docs[0], nil
}

func (m *Memory) Query(ctx context.Context, shard int, filter bson.D, limit, skip int64, projection bson.D) (Cursor, error) {
	cur, err := m.find(shard, filter, limit, skip, projection)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (m *Memory) find(shard int, filter bson.D, limit, skip int64, projection bson.D) (*MemoryCursor, error) {
	if err := checkShard(shard, m.Shards()); err != nil {
		return nil, err
	}
	cur := &MemoryCursor{pos: -1}
	c := m.coll(shard, false)
	if c == nil {
		return cur, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.docs {
		if d.dead {
			continue
		}
		ok, err := matches(d.doc, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		projected, err := project(d.doc, projection)
		if err != nil {
			return nil, err
		}
		cur.docs = append(cur.docs, projected)
		if limit > 0 && int64(len(cur.docs)) >= limit {
			break
		}
	}
	return cur, nil
}

func (m *Memory) Command(ctx context.Context, shard int, cmd bson.D) (bool, error) {
	if err := checkShard(shard, m.Shards()); err != nil {
		return false, err
	}
	if len(cmd) == 0 {
		return false, nil
	}
	c := m.coll(shard, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch strings.ToLower(cmd[0].Key) {
	case "ping", "getlasterror", "buildinfo", "ismaster", "hello":
		return true, nil
	case "count":
		filter, _ := lookupD(cmd, "query")
		for _, d := range c.docs {
			if d.dead {
				continue
			}
			// the count itself is discarded; only the scan's cost is kept
			if _, err := matches(d.doc, filter); err != nil {
				return false, nil
			}
		}
		return true, nil
	case "distinct":
		key, ok := lookup(cmd, "key")
		if !ok {
			return false, nil
		}
		filter, _ := lookupD(cmd, "query")
		// built for the cost of deduplication, the values are not returned
		seen := make(map[interface{}]struct{})
		for _, d := range c.docs {
			if d.dead {
				continue
			}
			ok, err := matches(d.doc, filter)
			if err != nil {
				return false, nil
			}
			if v, found := lookup(d.doc, fmt.Sprint(key)); ok && found {
				seen[idKey(v)] = struct{}{}
			}
		}
		return true, nil
	case "findandmodify":
		filter, _ := lookupD(cmd, "query")
		update, _ := lookupD(cmd, "update")
		upsert, _ := lookup(cmd, "upsert")
		remove, _ := lookup(cmd, "remove")
		if remove == true {
			return c.remove(filter, true) == nil, nil
		}
		if _, err := c.update(filter, update, upsert == true, false); err != nil {
			return false, nil
		}
		return true, nil
	case "insert":
		raw, _ := lookup(cmd, "documents")
		docs, ok := raw.([]bson.D)
		if !ok {
			if arr, isArr := raw.(bson.A); isArr {
				for _, v := range arr {
					if d, isD := v.(bson.D); isD {
						docs = append(docs, d)
					}
				}
			}
		}
		for _, doc := range docs {
			if err := c.insert(doc); err != nil {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, nil
	}
}

func (m *Memory) EnsureIndex(ctx context.Context, shard int, keys bson.D) error {
	return m.writeEach(shard, func(c *memCollection) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, idx := range c.indexes {
			if keysEqual(idx, keys) {
				return nil
			}
		}
		c.indexes = append(c.indexes, keys)
		return nil
	})
}

func (m *Memory) CreateCollection(ctx context.Context, shard int, sizeBytes int64, capped bool) error {
	slots, err := targets(shard, m.Shards(), m.cfg.MultiDB)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range slots {
		name := DatabaseName(slot, m.cfg.MultiDB)
		if _, ok := m.dbs[name]; ok {
			return fmt.Errorf("%s.%s: %w", name, CollectionName, ErrNamespaceExists)
		}
		c := newMemCollection()
		c.capped = capped
		c.maxSize = sizeBytes
		m.dbs[name] = c
	}
	return nil
}

func (m *Memory) ClearDatabase(ctx context.Context) error {
	m.mu.Lock()
	m.dbs = make(map[string]*memCollection)
	m.mu.Unlock()
	m.pendingMu.Lock()
	m.pending = make(map[int]error)
	m.pendingMu.Unlock()
	return nil
}

func (m *Memory) Drain(ctx context.Context, shard int) error {
	if shard != AllShards {
		if err := checkShard(shard, m.Shards()); err != nil {
			return err
		}
	}
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if shard != AllShards {
		err := m.pending[shard]
		delete(m.pending, shard)
		return err
	}
	var first error
	for slot := 0; slot < m.Shards(); slot++ {
		if err := m.pending[slot]; err != nil && first == nil {
			first = err
		}
	}
	m.pending = make(map[int]error)
	return first
}

// Documents returns a copy of every live document in the shard's collection
// in insertion order.
func (m *Memory) Documents(shard int) []bson.D {
	c := m.coll(shard, false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []bson.D
	for _, d := range c.docs {
		if !d.dead {
			out = append(out, cloneD(d.doc))
		}
	}
	return out
}

// Count returns the number of live documents in the shard's collection.
func (m *Memory) Count(shard int) int {
	c := m.coll(shard, false)
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Indexes returns the key patterns registered on the shard's collection.
func (m *Memory) Indexes(shard int) []bson.D {
	c := m.coll(shard, false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bson.D(nil), c.indexes...)
}

// MemoryCursor iterates a snapshot taken when the query ran.
type MemoryCursor struct {
	docs []bson.D
	pos  int
}

func (c *MemoryCursor) Next(ctx context.Context) bool {
	if c.pos+1 >= len(c.docs) {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

// Current returns the document the cursor is positioned on.
func (c *MemoryCursor) Current() bson.D {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

func (c *MemoryCursor) Err() error                      { return nil }
func (c *MemoryCursor) Close(ctx context.Context) error { return nil }

type memDoc struct {
	doc  bson.D
	size int64
	dead bool
}

type memCollection struct {
	mu      sync.Mutex
	docs    []*memDoc
	byID    map[interface{}]*memDoc
	dead    int
	indexes []bson.D

	capped  bool
	maxSize int64
	size    int64
}

func newMemCollection() *memCollection {
	return &memCollection{byID: make(map[interface{}]*memDoc)}
}

func (c *memCollection) insert(doc bson.D) error {
	stored, size, err := canonical(doc)
	if err != nil {
		return err
	}
	id, ok := lookup(stored, "_id")
	if !ok {
		id = primitive.NewObjectID()
		stored = append(bson.D{{Key: "_id", Value: id}}, stored...)
		size += 17
	}
	key := idKey(id)
	if _, dup := c.byID[key]; dup {
		return fmt.Errorf("%w: _id %v", ErrDuplicateKey, id)
	}
	d := &memDoc{doc: stored, size: size}
	c.docs = append(c.docs, d)
	c.byID[key] = d
	c.size += size
	if c.capped && c.maxSize > 0 {
		for _, old := range c.docs {
			if c.size <= c.maxSize || old == d {
				break
			}
			if !old.dead {
				c.kill(old)
			}
		}
	}
	c.compact()
	return nil
}

func (c *memCollection) kill(d *memDoc) {
	id, _ := lookup(d.doc, "_id")
	delete(c.byID, idKey(id))
	d.dead = true
	c.dead++
	c.size -= d.size
}

func (c *memCollection) compact() {
	if c.dead < 1024 || c.dead*2 < len(c.docs) {
		return
	}
	live := make([]*memDoc, 0, len(c.docs)-c.dead)
	for _, d := range c.docs {
		if !d.dead {
			live = append(live, d)
		}
	}
	c.docs = live
	c.dead = 0
}

// candidates narrows a scan to one document when the filter is an _id
// equality match.
func (c *memCollection) candidates(filter bson.D) []*memDoc {
	if len(filter) == 1 && filter[0].Key == "_id" && !isOperatorDoc(filter[0].Value) {
		if _, isRegex := filter[0].Value.(primitive.Regex); !isRegex {
			if d, ok := c.byID[idKey(filter[0].Value)]; ok {
				return []*memDoc{d}
			}
			return nil
		}
	}
	return c.docs
}

func (c *memCollection) update(filter, update bson.D, upsert, multi bool) (int, error) {
	n := 0
	for _, d := range c.candidates(filter) {
		if d.dead {
			continue
		}
		ok, err := matches(d.doc, filter)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		next, err := applyUpdate(d.doc, update)
		if err != nil {
			return n, err
		}
		stored, size, err := canonical(next)
		if err != nil {
			return n, err
		}
		c.size += size - d.size
		d.doc, d.size = stored, size
		n++
		if !multi {
			return n, nil
		}
	}
	if n > 0 || !upsert {
		return n, nil
	}
	seed := bson.D{}
	for _, e := range filter {
		if strings.HasPrefix(e.Key, "$") || isOperatorDoc(e.Value) {
			continue
		}
		if _, isRegex := e.Value.(primitive.Regex); isRegex {
			continue
		}
		seed = setPath(seed, strings.Split(e.Key, "."), e.Value)
	}
	doc, err := applyUpdate(seed, update)
	if err != nil {
		return 0, err
	}
	return 1, c.insert(doc)
}

func (c *memCollection) remove(filter bson.D, justOne bool) error {
	for _, d := range c.candidates(filter) {
		if d.dead {
			continue
		}
		ok, err := matches(d.doc, filter)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		c.kill(d)
		if justOne {
			break
		}
	}
	c.compact()
	return nil
}

// canonical deep copies a document through its BSON encoding so stored
// values never alias caller memory and numbers carry their wire types.
func canonical(doc bson.D) (bson.D, int64, error) {
	if doc == nil {
		doc = bson.D{}
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, 0, err
	}
	var out bson.D
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, 0, err
	}
	if out == nil {
		out = bson.D{}
	}
	return out, int64(len(raw)), nil
}

func cloneD(doc bson.D) bson.D {
	out, _, err := canonical(doc)
	if err != nil {
		return append(bson.D(nil), doc...)
	}
	return out
}

func idKey(v interface{}) interface{} {
	if f, ok := toFloat(v); ok {
		return f
	}
	switch t := v.(type) {
	case string, bool, primitive.ObjectID, nil:
		return t
	case primitive.DateTime:
		return int64(t)
	default:
		raw, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// lookup resolves a dotted path through nested documents and arrays.
func lookup(doc interface{}, path string) (interface{}, bool) {
	cur := doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case bson.D:
			found := false
			for _, e := range node {
				if e.Key == part {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		case bson.M:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case bson.A:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		case []interface{}:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func lookupD(doc bson.D, key string) (bson.D, bool) {
	v, ok := lookup(doc, key)
	if !ok {
		return nil, false
	}
	d, ok := v.(bson.D)
	return d, ok
}

func isOperatorDoc(v interface{}) bool {
	d, ok := v.(bson.D)
	return ok && len(d) > 0 && strings.HasPrefix(d[0].Key, "$")
}

func matches(doc, filter bson.D) (bool, error) {
	for _, e := range filter {
		switch e.Key {
		case "$and", "$or":
			clauses, ok := e.Value.(bson.A)
			if !ok {
				return false, fmt.Errorf("%w: %s needs an array", ErrUnsupportedFilter, e.Key)
			}
			anyHit := false
			for _, clause := range clauses {
				sub, ok := clause.(bson.D)
				if !ok {
					return false, fmt.Errorf("%w: %s clause", ErrUnsupportedFilter, e.Key)
				}
				hit, err := matches(doc, sub)
				if err != nil {
					return false, err
				}
				if e.Key == "$and" && !hit {
					return false, nil
				}
				anyHit = anyHit || hit
			}
			if e.Key == "$or" && !anyHit {
				return false, nil
			}
			continue
		}
		if strings.HasPrefix(e.Key, "$") {
			return false, fmt.Errorf("%w: %s", ErrUnsupportedFilter, e.Key)
		}
		actual, found := lookup(doc, e.Key)
		switch want := e.Value.(type) {
		case primitive.Regex:
			ok, err := regexMatch(actual, found, want)
			if err != nil || !ok {
				return false, err
			}
		case bson.D:
			if !isOperatorDoc(want) {
				if !found || compare(actual, want) != 0 {
					return false, nil
				}
				continue
			}
			for _, op := range want {
				ok, err := applyOperator(op.Key, actual, found, op.Value)
				if err != nil || !ok {
					return false, err
				}
			}
		default:
			if !found {
				if want != nil {
					return false, nil
				}
				continue
			}
			if compare(actual, want) != 0 {
				return false, nil
			}
		}
	}
	return true, nil
}

func applyOperator(op string, actual interface{}, found bool, want interface{}) (bool, error) {
	switch op {
	case "$eq":
		return found && compare(actual, want) == 0, nil
	case "$ne":
		return !found || compare(actual, want) != 0, nil
	case "$gt":
		return found && sameClass(actual, want) && compare(actual, want) > 0, nil
	case "$gte":
		return found && sameClass(actual, want) && compare(actual, want) >= 0, nil
	case "$lt":
		return found && sameClass(actual, want) && compare(actual, want) < 0, nil
	case "$lte":
		return found && sameClass(actual, want) && compare(actual, want) <= 0, nil
	case "$exists":
		return found == truthy(want), nil
	case "$in":
		arr, ok := want.(bson.A)
		if !ok {
			return false, fmt.Errorf("%w: $in needs an array", ErrUnsupportedFilter)
		}
		for _, v := range arr {
			if found && compare(actual, v) == 0 {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		pattern, _ := want.(string)
		return regexMatch(actual, found, primitive.Regex{Pattern: pattern})
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedFilter, op)
	}
}

func regexMatch(actual interface{}, found bool, want primitive.Regex) (bool, error) {
	s, ok := actual.(string)
	if !found || !ok {
		return false, nil
	}
	pattern := want.Pattern
	if want.Options != "" {
		pattern = "(?" + strings.ReplaceAll(want.Options, "x", "") + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

func truthy(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return v != nil
}

// sameClass reports whether two values share a BSON sort class, which range
// operators require.
func sameClass(a, b interface{}) bool {
	return typeClass(a) == typeClass(b)
}

func typeClass(v interface{}) int {
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 2
	case bson.D, bson.M:
		return 3
	case bson.A, []interface{}:
		return 4
	case primitive.Binary:
		return 5
	case primitive.ObjectID:
		return 6
	case bool:
		return 7
	case primitive.DateTime, time.Time:
		return 8
	default:
		return 9
	}
}

// compare orders values the way the server does for the types the workloads
// use. Values of different classes order by class.
func compare(a, b interface{}) int {
	ca, cb := typeClass(a), typeClass(b)
	if ca != cb {
		return ca - cb
	}
	switch ca {
	case 0:
		return 0
	case 1:
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 6:
		x, y := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:])
	case 7:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case 8:
		x, y := toTime(a), toTime(b)
		return x.Compare(y)
	default:
		x, _ := bson.Marshal(bson.D{{Key: "v", Value: a}})
		y, _ := bson.Marshal(bson.D{{Key: "v", Value: b}})
		return bytes.Compare(x, y)
	}
}

func toTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	}
	return time.Time{}
}

func applyUpdate(doc, update bson.D) (bson.D, error) {
	if len(update) == 0 || !strings.HasPrefix(update[0].Key, "$") {
		id, hasID := lookup(doc, "_id")
		out := bson.D{}
		if hasID {
			out = append(out, bson.E{Key: "_id", Value: id})
		}
		for _, e := range update {
			if e.Key == "_id" {
				if hasID && compare(e.Value, id) != 0 {
					return nil, ErrImmutableID
				}
				if !hasID {
					out = append(out, e)
				}
				continue
			}
			out = append(out, e)
		}
		return out, nil
	}
	out := append(bson.D(nil), doc...)
	for _, op := range update {
		fields, ok := op.Value.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%s needs a document", op.Key)
		}
		for _, f := range fields {
			if f.Key == "_id" || strings.HasPrefix(f.Key, "_id.") {
				if _, exists := lookup(out, "_id"); exists {
					return nil, ErrImmutableID
				}
			}
			parts := strings.Split(f.Key, ".")
			switch op.Key {
			case "$set":
				out = setPath(out, parts, f.Value)
			case "$unset":
				out = unsetPath(out, parts)
			case "$inc":
				delta, ok := toFloat(f.Value)
				if !ok {
					return nil, fmt.Errorf("cannot increment with non-numeric argument %v", f.Value)
				}
				cur, found := lookup(out, f.Key)
				if !found {
					out = setPath(out, parts, f.Value)
					continue
				}
				out = setPath(out, parts, addNumbers(cur, f.Value, delta))
			default:
				return nil, fmt.Errorf("unknown modifier %s", op.Key)
			}
		}
	}
	return out, nil
}

func addNumbers(cur, inc interface{}, delta float64) interface{} {
	switch c := cur.(type) {
	case int32:
		if i, ok := inc.(int32); ok {
			return c + i
		}
		if i, ok := inc.(int); ok {
			return int64(c) + int64(i)
		}
	case int64:
		if i, ok := inc.(int64); ok {
			return c + i
		}
		if i, ok := inc.(int32); ok {
			return c + int64(i)
		}
		if i, ok := inc.(int); ok {
			return c + int64(i)
		}
	}
	f, _ := toFloat(cur)
	return f + delta
}

func setPath(doc bson.D, parts []string, v interface{}) bson.D {
	for i := range doc {
		if doc[i].Key != parts[0] {
			continue
		}
		if len(parts) == 1 {
			doc[i].Value = v
			return doc
		}
		child, _ := doc[i].Value.(bson.D)
		doc[i].Value = setPath(append(bson.D(nil), child...), parts[1:], v)
		return doc
	}
	if len(parts) == 1 {
		return append(doc, bson.E{Key: parts[0], Value: v})
	}
	return append(doc, bson.E{Key: parts[0], Value: setPath(bson.D{}, parts[1:], v)})
}

func unsetPath(doc bson.D, parts []string) bson.D {
	for i := range doc {
		if doc[i].Key != parts[0] {
			continue
		}
		if len(parts) == 1 {
			return append(append(bson.D(nil), doc[:i]...), doc[i+1:]...)
		}
		if child, ok := doc[i].Value.(bson.D); ok {
			doc[i].Value = unsetPath(append(bson.D(nil), child...), parts[1:])
		}
		return doc
	}
	return doc
}

// project applies an inclusion, exclusion or $elemMatch projection.
func project(doc, projection bson.D) (bson.D, error) {
	out := cloneD(doc)
	if len(projection) == 0 {
		return out, nil
	}
	includeID := true
	var include, exclude []string
	elemMatch := map[string]bson.D{}
	for _, p := range projection {
		if d, ok := p.Value.(bson.D); ok && len(d) == 1 && d[0].Key == "$elemMatch" {
			cond, _ := d[0].Value.(bson.D)
			elemMatch[p.Key] = cond
			include = append(include, p.Key)
			continue
		}
		on := truthy(p.Value)
		if p.Key == "_id" {
			includeID = on
			continue
		}
		if on {
			include = append(include, p.Key)
		} else {
			exclude = append(exclude, p.Key)
		}
	}
	if len(include) > 0 && len(exclude) > 0 {
		return nil, errors.New("projection cannot have a mix of inclusion and exclusion")
	}
	if len(include) == 0 {
		for _, path := range exclude {
			out = unsetPath(out, strings.Split(path, "."))
		}
		if !includeID {
			out = unsetPath(out, []string{"_id"})
		}
		return out, nil
	}

	sort.Strings(include)
	res := bson.D{}
	if includeID {
		if id, ok := lookup(out, "_id"); ok {
			res = append(res, bson.E{Key: "_id", Value: id})
		}
	}
	for _, path := range include {
		v, ok := lookup(out, path)
		if !ok {
			continue
		}
		if cond, isElem := elemMatch[path]; isElem {
			arr, isArr := v.(bson.A)
			if !isArr {
				continue
			}
			var hit interface{}
			for _, el := range arr {
				sub, isD := el.(bson.D)
				if !isD {
					continue
				}
				ok, err := matches(sub, cond)
				if err != nil {
					return nil, err
				}
				if ok {
					hit = sub
					break
				}
			}
			if hit == nil {
				continue
			}
			v = bson.A{hit}
		}
		res = setPath(res, strings.Split(path, "."), v)
	}
	return res, nil
}

func keysEqual(a, b bson.D) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || compare(a[i].Value, b[i].Value) != 0 {
			return false
		}
	}
	return true
}
