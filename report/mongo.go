package report

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TreeWu/mongo-perf/benchmark"
)

const (
	ResultsDatabase = "bench_results"
	RawCollection   = "raw"
)

// Run is one stored run: its identity plus every result pushed so far.
type Run struct {
	RunInfo `bson:",inline"`
	Results []benchmark.Result `json:"results" bson:"results"`
}

// RunFilter selects stored runs. Empty fields match anything.
type RunFilter struct {
	Label    string
	Version  string
	Platform string
	Limit    int64
}

// MongoStore keeps results in bench_results.raw, one document per
// {label, version, platform, run_date}. Each Write pushes one result onto it.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	info   RunInfo
	owned  bool
}

// OpenMongoStore connects to uri and describes the run from that server.
func OpenMongoStore(ctx context.Context, uri string, info RunInfo) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("连接结果库失败: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("结果库连接测试失败: %w", err)
	}
	s := NewMongoStore(ctx, client, info)
	s.owned = true
	return s, nil
}

// NewMongoStore fills in the version and platform from the store's own server
// when info leaves them empty.
func NewMongoStore(ctx context.Context, client *mongo.Client, info RunInfo) *MongoStore {
	if info.Version == "" || info.Platform == "" {
		version, platform := DescribeServer(ctx, client)
		if info.Version == "" {
			info.Version = version
		}
		if info.Platform == "" {
			info.Platform = platform
		}
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(ResultsDatabase).Collection(RawCollection),
		info:   info.withDefaults(),
	}
}

// DescribeServer asks a server for its version (buildInfo) and operating
// system (hostInfo). Either is empty when the command fails.
func DescribeServer(ctx context.Context, client *mongo.Client) (version, platform string) {
	admin := client.Database("admin")
	var build struct {
		Version string `bson:"version"`
	}
	if err := admin.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&build); err != nil {
		log.WithError(err).Warn("buildInfo failed, version unknown")
	}
	var host struct {
		OS struct {
			Type string `bson:"type"`
		} `bson:"os"`
	}
	if err := admin.RunCommand(ctx, bson.D{{Key: "hostInfo", Value: 1}}).Decode(&host); err != nil {
		log.WithError(err).Warn("hostInfo failed, platform unknown")
	}
	return build.Version, host.OS.Type
}

func (s *MongoStore) Info() RunInfo { return s.info }

func (s *MongoStore) Write(ctx context.Context, r benchmark.Result) error {
	filter := bson.D{
		{Key: "label", Value: s.info.Label},
		{Key: "version", Value: s.info.Version},
		{Key: "platform", Value: s.info.Platform},
		{Key: "run_date", Value: s.info.RunDate},
	}
	update := bson.D{{Key: "$push", Value: bson.D{{Key: "results", Value: r}}}}
	if _, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("store %s: %w", r.Name, err)
	}
	return nil
}

// Runs returns stored runs, newest first.
func (s *MongoStore) Runs(ctx context.Context, f RunFilter) ([]Run, error) {
	filter := bson.D{}
	for _, e := range []bson.E{
		{Key: "label", Value: f.Label},
		{Key: "version", Value: f.Version},
		{Key: "platform", Value: f.Platform},
	} {
		if e.Value != "" {
			filter = append(filter, e)
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "run_date", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var runs []Run
	if err := cur.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}
