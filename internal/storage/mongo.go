package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore 文档库存储，每条帖子一个文档，id 上建唯一索引
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "storage: connect mongo")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "storage: ping mongo")
	}

	return newMongoStore(ctx, client, client.Database(database).Collection(collection)), nil
}

func newMongoStore(ctx context.Context, client *mongo.Client, coll *mongo.Collection) *MongoStore {
	// 旧脚本写入的集合可能已有重复 id，建索引失败时只告警，去重仍由 Exists 保证
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_id"),
	})
	if err != nil {
		zap.L().Warn("mongo: create unique index on id failed", zap.Error(err))
	}
	return &MongoStore{client: client, coll: coll}
}

// idFilter 旧数据里 id 可能是整数，纯数字 ID 同时匹配两种类型
func idFilter(id string) bson.M {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return bson.M{"id": bson.M{"$in": bson.A{id, n}}}
	}
	return bson.M{"id": id}
}

func (s *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, idFilter(id), options.Count().SetLimit(1))
	if err != nil {
		return false, eris.Wrapf(err, "storage: exists %s", id)
	}
	return n > 0, nil
}

func (s *MongoStore) Insert(ctx context.Context, rec Record) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return eris.Wrapf(err, "storage: insert %s", rec.ID)
	}
	return nil
}

func (s *MongoStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(clampLimit(limit))).
		SetProjection(bson.M{"_id": 0})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, eris.Wrap(err, "storage: list recent")
	}
	var out []Record
	if err := cur.All(ctx, &out); err != nil {
		return nil, eris.Wrap(err, "storage: decode recent")
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
