package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Luismorlan/community/model"
	"github.com/Luismorlan/community/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func tweet(id int64, text string) model.Tweet {
	return model.Tweet{BaseMessage: model.BaseMessage{
		Id:        id,
		JobID:     1,
		UserID:    100 + id,
		Message:   text,
		Timestamp: time.Date(2022, 1, int(id), 0, 0, 0, 0, time.UTC),
		Data:      datatypes.JSON(`{}`),
	}}
}

func payload(t *testing.T, data datatypes.JSON) map[string]interface{} {
	res := map[string]interface{}{}
	require.Nil(t, json.Unmarshal(data, &res))
	return res
}

func TestBulkCreate_PartialBatchDurability(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	ctx := context.Background()

	objs := []model.Tweet{
		tweet(1, "one"), tweet(2, "two"), tweet(1, "duplicate of one"), tweet(4, "four"), tweet(5, "five"),
	}
	created, err := BulkCreate(ctx, db, objs)
	require.Nil(t, err)
	assert.Equal(t, 4, created)

	var ids []int64
	require.Nil(t, db.Model(&model.Tweet{}).Order("id").Pluck("id", &ids).Error)
	assert.Equal(t, []int64{1, 2, 4, 5}, ids)

	var first model.Tweet
	require.Nil(t, db.Take(&first, 1).Error)
	assert.Equal(t, "one", first.Message)
}

func TestBulkCreate_SecondRunSkipsEverything(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	ctx := context.Background()

	_, err := BulkCreate(ctx, db, []model.Tweet{tweet(1, "one"), tweet(2, "two")})
	require.Nil(t, err)
	created, err := BulkCreate(ctx, db, []model.Tweet{tweet(1, "one"), tweet(2, "two")})
	require.Nil(t, err)
	assert.Equal(t, 0, created)
}

func TestBulkCreate_SkipsDuplicateNaturalKey(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	rel := func() model.GithubRelation {
		return model.GithubRelation{BaseRelation: model.BaseRelation{
			FromNodeID: 1, ToNodeID: 2, RelationType: model.RelationTypeStarred, JobID: 1, Timestamp: time.Now(),
		}}
	}
	created, err := BulkCreate(context.Background(), db, []model.GithubRelation{rel(), rel()})
	require.Nil(t, err)
	assert.Equal(t, 1, created)
}

func TestBulkUpsert_Convergence(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	ctx := context.Background()
	reaction := func(data string) model.TwitterReaction {
		return model.TwitterReaction{BaseReaction: model.BaseReaction{
			MessageID: 7, UserID: 8, Reaction: model.ReactionTypeLike, JobID: 1,
			Timestamp: time.Now(), Data: datatypes.JSON(data),
		}}
	}

	require.Nil(t, BulkUpsert(ctx, db, []model.TwitterReaction{reaction(`{"a": 1, "c": "old"}`)}))
	require.Nil(t, BulkUpsert(ctx, db, []model.TwitterReaction{reaction(`{"b": 2, "c": "new"}`)}))

	var rows []model.TwitterReaction
	require.Nil(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]interface{}{"a": float64(1), "b": float64(2), "c": "new"}, payload(t, rows[0].Data))
}

func TestBulkUpsert_KeepsColumnsOfStoredRow(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	ctx := context.Background()

	require.Nil(t, BulkUpsert(ctx, db, []model.Tweet{tweet(1, "first")}))
	second := tweet(1, "second")
	second.Data = datatypes.JSON(`{"k": "v"}`)
	require.Nil(t, BulkUpsert(ctx, db, []model.Tweet{second}))

	var stored model.Tweet
	require.Nil(t, db.Take(&stored, 1).Error)
	assert.Equal(t, "first", stored.Message)
	assert.Equal(t, map[string]interface{}{"k": "v"}, payload(t, stored.Data))
}

func TestBulkUpdate(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	ctx := context.Background()

	require.Nil(t, db.Create(&model.TwitterUser{BasePlatformUser: model.BasePlatformUser{
		Id: 1, Username: model.StringPtr("ann"), JobID: 1, Data: datatypes.JSON(`{"a": 1}`),
	}}).Error)

	err := BulkUpdate(ctx, db, []model.TwitterUser{{BasePlatformUser: model.BasePlatformUser{
		Id: 1, Name: model.StringPtr("Ann"), JobID: 1, Data: datatypes.JSON(`{"b": 2}`),
	}}})
	require.Nil(t, err)

	var stored model.TwitterUser
	require.Nil(t, db.Take(&stored, 1).Error)
	// Username was not provided so it survives.
	assert.Equal(t, "ann", model.StringValue(stored.Username))
	assert.Equal(t, "Ann", model.StringValue(stored.Name))
	assert.Equal(t, map[string]interface{}{"a": float64(1), "b": float64(2)}, payload(t, stored.Data))
}

func TestBulkUpdate_MissingRowAbortsBatch(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	ctx := context.Background()
	require.Nil(t, db.Create(&model.GithubUser{BasePlatformUser: model.BasePlatformUser{Id: 1, JobID: 1}}).Error)
	require.Nil(t, db.Create(&model.GithubUser{BasePlatformUser: model.BasePlatformUser{Id: 3, JobID: 1}}).Error)

	err := BulkUpdate(ctx, db, []model.GithubUser{
		{BasePlatformUser: model.BasePlatformUser{Id: 1, Username: model.StringPtr("one")}},
		{BasePlatformUser: model.BasePlatformUser{Id: 2, Username: model.StringPtr("two")}},
		{BasePlatformUser: model.BasePlatformUser{Id: 3, Username: model.StringPtr("three")}},
	})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	var users []model.GithubUser
	require.Nil(t, db.Order("id").Find(&users).Error)
	require.Len(t, users, 2)
	assert.Equal(t, "one", model.StringValue(users[0].Username))
	assert.Nil(t, users[1].Username)
}

func TestGetOrCreate(t *testing.T) {
	db, _ := utils.CreateTempDB(t)
	ctx := context.Background()
	project := model.Project{Name: "p"}
	require.Nil(t, db.Create(&project).Error)

	repo := model.GithubRepo{Id: 42, Owner: "o", Name: "r", ProjectID: project.Id}
	created, err := GetOrCreate(ctx, db, &repo, map[string]interface{}{"id": repo.Id})
	require.Nil(t, err)
	assert.True(t, created)

	again := model.GithubRepo{Id: 42, Owner: "o", Name: "renamed", ProjectID: project.Id}
	created, err = GetOrCreate(ctx, db, &again, map[string]interface{}{"id": again.Id})
	require.Nil(t, err)
	assert.False(t, created)
	assert.Equal(t, "r", again.Name)

	var count int64
	require.Nil(t, db.Model(&model.GithubRepo{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMergePayload(t *testing.T) {
	merged, err := MergePayload(datatypes.JSON(`{"a": 1, "b": 1}`), datatypes.JSON(`{"b": 2, "c": 3}`))
	require.Nil(t, err)
	assert.JSONEq(t, `{"a": 1, "b": 2, "c": 3}`, string(merged))

	merged, err = MergePayload(nil, datatypes.JSON(`{"a": 1}`))
	require.Nil(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(merged))

	merged, err = MergePayload(datatypes.JSON(`{"a": 1}`), nil)
	require.Nil(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(merged))

	merged, err = MergePayload(datatypes.JSON(`[1]`), datatypes.JSON(`{"a": 1}`))
	require.Nil(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(merged))
}

func TestIsIntegrityViolation(t *testing.T) {
	assert.False(t, IsIntegrityViolation(nil))
	assert.True(t, IsIntegrityViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsIntegrityViolation(errors.New("UNIQUE constraint failed: tweets.id")))
	assert.False(t, IsIntegrityViolation(errors.New("connection refused")))
}
