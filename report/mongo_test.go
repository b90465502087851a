package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("describes the server and pushes results", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "version", Value: "7.0.2"}),
			mtest.CreateSuccessResponse(bson.E{Key: "os", Value: bson.D{{Key: "type", Value: "Linux"}}}),
		)
		store := NewMongoStore(ctx, mt.Client, RunInfo{Label: "nightly", RunDate: "2026-10-16"})
		assert.Equal(mt, RunInfo{Label: "nightly", Version: "7.0.2", Platform: "Linux", RunDate: "2026-10-16"}, store.Info())

		mt.ClearEvents()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		require.NoError(mt, store.Write(ctx, insertEmpty))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, ResultsDatabase, evt.DatabaseName)

		var cmd struct {
			Update  string `bson:"update"`
			Updates []struct {
				Q      bson.M `bson:"q"`
				U      bson.M `bson:"u"`
				Upsert bool   `bson:"upsert"`
			} `bson:"updates"`
		}
		require.NoError(mt, bson.Unmarshal(evt.Command, &cmd))
		assert.Equal(mt, RawCollection, cmd.Update)
		require.Len(mt, cmd.Updates, 1)
		u := cmd.Updates[0]
		assert.True(mt, u.Upsert)
		assert.Equal(mt, "nightly", u.Q["label"])
		assert.Equal(mt, "7.0.2", u.Q["version"])
		assert.Equal(mt, "Linux", u.Q["platform"])
		assert.Equal(mt, "2026-10-16", u.Q["run_date"])
		assert.Contains(mt, u.U, "$push")
		require.NoError(mt, store.Close(ctx))
	})

	mt.Run("server info falls back to unknown", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized", Name: "Unauthorized"}),
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized", Name: "Unauthorized"}),
		)
		store := NewMongoStore(ctx, mt.Client, RunInfo{Label: "x"})
		assert.Equal(mt, "unknown", store.Info().Version)
		assert.Equal(mt, "unknown", store.Info().Platform)
	})

	mt.Run("write error", func(mt *mtest.T) {
		store := NewMongoStore(ctx, mt.Client, RunInfo{Version: "7.0", Platform: "Linux"})
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad", Name: "BadValue"}))
		assert.ErrorContains(mt, store.Write(ctx, insertEmpty), "store Insert.Empty")
	})

	mt.Run("lists runs", func(mt *mtest.T) {
		store := NewMongoStore(ctx, mt.Client, RunInfo{Version: "7.0", Platform: "Linux"})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ResultsDatabase+"."+RawCollection, mtest.FirstBatch, bson.D{
			{Key: "label", Value: "nightly"},
			{Key: "version", Value: "7.0.2"},
			{Key: "platform", Value: "Linux"},
			{Key: "run_date", Value: "2026-10-16"},
			{Key: "results", Value: bson.A{insertEmpty}},
		}))

		runs, err := store.Runs(ctx, RunFilter{Label: "nightly", Limit: 5})
		require.NoError(mt, err)
		require.Len(mt, runs, 1)
		assert.Equal(mt, "nightly", runs[0].Label)
		assert.Equal(mt, "2026-10-16", runs[0].RunDate)
		require.Len(mt, runs[0].Results, 1)
		assert.Equal(mt, insertEmpty, runs[0].Results[0])

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "find", evt.CommandName)
		assert.Equal(mt, "nightly", evt.Command.Lookup("filter", "label").StringValue())
		_, hasVersion := evt.Command.Lookup("filter").Document().Lookup("version").StringValueOK()
		assert.False(mt, hasVersion)
		assert.EqualValues(mt, 5, evt.Command.Lookup("limit").AsInt64())
	})
}
