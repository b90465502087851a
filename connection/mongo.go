package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

var _ Connection = (*Mongo)(nil)

// MongoConfig 配置
type MongoConfig struct {
	URI          string
	Username     string
	Password     string
	AuthDatabase string
	Iterations   int
	MultiDB      bool
	// Batch sends inserts through the insert command instead of the CRUD API.
	Batch bool
	// WriteConcern requests acknowledged writes. Without it writes are fire
	// and forget and only Drain observes them.
	WriteConcern bool
	Shards       int
	Timeout      time.Duration
}

// Mongo is a Connection backed by one single-connection client per shard slot.
type Mongo struct {
	cfg     MongoConfig
	clients []*mongo.Client
	owned   bool
}

// NewMongo dials cfg.Shards clients (MaxShards when unset) and pings each one.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if cfg.Shards <= 0 {
		cfg.Shards = MaxShards
	}
	m := &Mongo{cfg: cfg, owned: true}
	for i := 0; i < cfg.Shards; i++ {
		client, err := mongo.Connect(ctx, m.clientOptions(i))
		if err != nil {
			m.Close(ctx)
			return nil, fmt.Errorf("connect shard %d: %w", i, err)
		}
		m.clients = append(m.clients, client)
		if err := client.Ping(ctx, nil); err != nil {
			m.Close(ctx)
			return nil, fmt.Errorf("ping shard %d: %w", i, err)
		}
	}
	log.WithFields(log.Fields{"uri": redact(cfg.URI), "shards": cfg.Shards, "multi_db": cfg.MultiDB}).
		Info("MongoDB 连接成功")
	return m, nil
}

// NewMongoFromClients wraps already connected clients, one per shard slot.
// The caller keeps ownership of the clients.
func NewMongoFromClients(cfg MongoConfig, clients ...*mongo.Client) *Mongo {
	cfg.Shards = len(clients)
	return &Mongo{cfg: cfg, clients: clients}
}

func (m *Mongo) clientOptions(shard int) *options.ClientOptions {
	opts := options.Client().ApplyURI(m.cfg.URI).SetMaxPoolSize(1)
	if m.cfg.WriteConcern {
		opts.SetWriteConcern(writeconcern.W1())
	} else {
		opts.SetWriteConcern(writeconcern.Unacknowledged())
	}
	if m.cfg.Timeout > 0 {
		opts.SetTimeout(m.cfg.Timeout)
	}
	if m.cfg.Username != "" {
		source := m.cfg.AuthDatabase
		if source == "" {
			source = "admin"
			if m.cfg.MultiDB {
				source = DatabaseName(shard, true)
			}
		}
		opts.SetAuth(options.Credential{
			AuthSource: source,
			Username:   m.cfg.Username,
			Password:   m.cfg.Password,
		})
	}
	return opts
}

func (m *Mongo) Iterations() int { return m.cfg.Iterations }
func (m *Mongo) MultiDB() bool   { return m.cfg.MultiDB }
func (m *Mongo) Shards() int     { return len(m.clients) }

// Client returns the client behind a shard slot.
func (m *Mongo) Client(shard int) *mongo.Client { return m.clients[shard] }

func (m *Mongo) database(shard int) *mongo.Database {
	return m.clients[shard].Database(DatabaseName(shard, m.cfg.MultiDB))
}

// acknowledged addresses a shard's database with w:1 regardless of the
// configured write concern.
func (m *Mongo) acknowledged(shard int) *mongo.Database {
	return m.clients[shard].Database(DatabaseName(shard, m.cfg.MultiDB),
		options.Database().SetWriteConcern(writeconcern.W1()))
}

func (m *Mongo) collection(shard int) *mongo.Collection {
	return m.database(shard).Collection(CollectionName)
}

func (m *Mongo) each(shard int, fn func(slot int) error) error {
	slots, err := targets(shard, m.Shards(), m.cfg.MultiDB)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if err := fn(slot); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mongo) Insert(ctx context.Context, shard int, doc bson.D) error {
	return m.InsertMany(ctx, shard, []bson.D{doc})
}

// InsertMany writes docs to a shard. Writes addressed to AllShards build
// fixtures and are always acknowledged, so their errors are returned here
// whatever the configured write concern.
func (m *Mongo) InsertMany(ctx context.Context, shard int, docs []bson.D) error {
	if len(docs) == 0 {
		return nil
	}
	fixture := shard == AllShards
	return m.each(shard, func(slot int) error {
		if m.cfg.Batch && !fixture {
			return m.batchInsert(ctx, slot, docs)
		}
		coll := m.collection(slot)
		if fixture {
			coll = m.acknowledged(slot).Collection(CollectionName)
		}
		if len(docs) == 1 {
			_, err := coll.InsertOne(ctx, docs[0])
			return ignoreUnacknowledged(err)
		}
		batch := make([]interface{}, len(docs))
		for i := range docs {
			batch[i] = docs[i]
		}
		_, err := coll.InsertMany(ctx, batch)
		return ignoreUnacknowledged(err)
	})
}

// batchInsert sends the insert command directly. The server answers a
// command even when the client is unacknowledged, and reports write errors
// inside an ok reply.
func (m *Mongo) batchInsert(ctx context.Context, slot int, docs []bson.D) error {
	cmd := bson.D{{Key: "insert", Value: CollectionName}, {Key: "documents", Value: docs}}
	var reply struct {
		WriteErrors []struct {
			Index  int    `bson:"index"`
			Code   int    `bson:"code"`
			Errmsg string `bson:"errmsg"`
		} `bson:"writeErrors"`
	}
	if err := m.database(slot).RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return err
	}
	if len(reply.WriteErrors) > 0 {
		we := reply.WriteErrors[0]
		return fmt.Errorf("insert document %d: %s (code %d)", we.Index, we.Errmsg, we.Code)
	}
	return nil
}

func (m *Mongo) Update(ctx context.Context, shard int, filter, update bson.D, upsert, multi bool) error {
	if err := checkShard(shard, m.Shards()); err != nil {
		return err
	}
	coll := m.collection(shard)
	filter = orEmpty(filter)
	var err error
	switch {
	case !hasOperators(update):
		_, err = coll.ReplaceOne(ctx, filter, update, options.Replace().SetUpsert(upsert))
	case multi:
		_, err = coll.UpdateMany(ctx, filter, update, options.Update().SetUpsert(upsert))
	default:
		_, err = coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(upsert))
	}
	return ignoreUnacknowledged(err)
}

func (m *Mongo) Remove(ctx context.Context, shard int, filter bson.D, justOne bool) error {
	if err := checkShard(shard, m.Shards()); err != nil {
		return err
	}
	var err error
	if justOne {
		_, err = m.collection(shard).DeleteOne(ctx, orEmpty(filter))
	} else {
		_, err = m.collection(shard).DeleteMany(ctx, orEmpty(filter))
	}
	return ignoreUnacknowledged(err)
}

func (m *Mongo) FindOne(ctx context.Context, shard int, filter, projection bson.D) (bson.D, error) {
	if err := checkShard(shard, m.Shards()); err != nil {
		return nil, err
	}
	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	var doc bson.D
	err := m.collection(shard).FindOne(ctx, orEmpty(filter), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	return doc, err
}

func (m *Mongo) Query(ctx context.Context, shard int, filter bson.D, limit, skip int64, projection bson.D) (Cursor, error) {
	if err := checkShard(shard, m.Shards()); err != nil {
		return nil, err
	}
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	return m.collection(shard).Find(ctx, orEmpty(filter), opts)
}

func (m *Mongo) Command(ctx context.Context, shard int, cmd bson.D) (bool, error) {
	if err := checkShard(shard, m.Shards()); err != nil {
		return false, err
	}
	err := m.database(shard).RunCommand(ctx, cmd).Err()
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Mongo) EnsureIndex(ctx context.Context, shard int, keys bson.D) error {
	return m.each(shard, func(slot int) error {
		_, err := m.acknowledged(slot).Collection(CollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys})
		return err
	})
}

func (m *Mongo) CreateCollection(ctx context.Context, shard int, sizeBytes int64, capped bool) error {
	return m.each(shard, func(slot int) error {
		opts := options.CreateCollection().SetCapped(capped)
		if sizeBytes > 0 {
			opts.SetSizeInBytes(sizeBytes)
		}
		return m.acknowledged(slot).CreateCollection(ctx, CollectionName, opts)
	})
}

func (m *Mongo) ClearDatabase(ctx context.Context) error {
	return m.each(AllShards, func(slot int) error {
		if err := m.acknowledged(slot).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", DatabaseName(slot, m.cfg.MultiDB), err)
		}
		return nil
	})
}

// Drain issues a round trip on the shard's single connection. The server
// handles commands on a connection in order, so once the ping returns every
// earlier write has been applied. The server never replies to unacknowledged
// writes, so their errors are lost; only WriteConcern or batch mode report
// them. Fixture writes are acknowledged either way.
func (m *Mongo) Drain(ctx context.Context, shard int) error {
	slots := []int{shard}
	if shard == AllShards {
		slots = make([]int, m.Shards())
		for i := range slots {
			slots[i] = i
		}
	} else if err := checkShard(shard, m.Shards()); err != nil {
		return err
	}
	for _, slot := range slots {
		if err := m.database(slot).RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
			return fmt.Errorf("drain shard %d: %w", slot, err)
		}
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if !m.owned {
		return nil
	}
	var first error
	for _, client := range m.clients {
		if err := client.Disconnect(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// orEmpty turns a nil filter into the match-all document; the driver rejects nil.
func orEmpty(filter bson.D) bson.D {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

func hasOperators(update bson.D) bool {
	return len(update) > 0 && strings.HasPrefix(update[0].Key, "$")
}

func ignoreUnacknowledged(err error) error {
	if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
		return nil
	}
	return err
}

func redact(uri string) string {
	at := strings.LastIndex(uri, "@")
	scheme := strings.Index(uri, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return uri
	}
	return uri[:scheme+3] + "***" + uri[at:]
}
