package workloads

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TreeWu/mongo-perf/connection"
	"github.com/TreeWu/mongo-perf/value"
)

// fakeTemplate is a user profile with the shape of a typical application
// document.
var fakeTemplate = bson.D{
	{Key: "name", Value: "@name"},
	{Key: "email", Value: "@email"},
	{Key: "age", Value: "@randInt:2"},
	{Key: "city", Value: "@oneOf:北京|上海|广州|深圳|杭州|成都|武汉|西安"},
	{Key: "salary", Value: "@float"},
	{Key: "created_at", Value: "@datetime"},
	{Key: "tags", Value: bson.A{"@oneOf:活跃|新用户|VIP|优质|普通|沉默|流失", "@word"}},
	{Key: "metadata", Value: bson.D{
		{Key: "department", Value: "@oneOf:技术部|销售部|市场部|人事部|财务部|产品部"},
		{Key: "position", Value: "@oneOf:工程师|经理|总监|专员|助理|主管"},
		{Key: "level", Value: "@oneOf:初级|中级|高级|资深"},
	}},
}

func fakeDoc(h *value.Handler, seq int) bson.D {
	return append(bson.D{{Key: "seq", Value: seq}}, h.Document(fakeTemplate)...)
}

// fakeDocsFindOne looks generated profiles up by their indexed sequence number.
func fakeDocsFindOne() *workload {
	return readOnly("Queries.FakeDocsFindOne",
		func(ctx context.Context, conn connection.Connection) error {
			h := value.NewSeededHandler(1)
			return seed(ctx, conn, conn.Iterations(), func(i int) bson.D { return fakeDoc(h, i) }, key("seq", 1))
		},
		findEach("seq", nil))
}
