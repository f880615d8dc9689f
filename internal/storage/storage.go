package storage

import (
	"context"
	"strings"
	"time"

	"github.com/LJTian/TransitAlerts/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrDuplicate 该 ID 已经入库；各后端都依赖唯一索引/主键兜底
var ErrDuplicate = eris.New("record already stored")

// Record 入库的帖子分类结果，只追加、不更新
type Record struct {
	ID            string      `bson:"id" json:"id"`
	Text          string      `bson:"text" json:"text"`
	ProcessedText string      `bson:"processed_text" json:"processed_text"`
	Category      string      `bson:"category" json:"category"`
	Timestamp     time.Time   `bson:"timestamp" json:"timestamp"`
	Meta          *RecordMeta `bson:"meta,omitempty" json:"meta,omitempty"`
}

// RecordMeta 记录帖子来源，便于区分降级抓取写入的数据
type RecordMeta struct {
	Author   string    `bson:"author,omitempty" json:"author,omitempty"`
	Source   string    `bson:"source,omitempty" json:"source,omitempty"`
	URL      string    `bson:"url,omitempty" json:"url,omitempty"`
	PostedAt time.Time `bson:"posted_at,omitempty" json:"posted_at,omitempty"`
}

// PostStore 按 ID 幂等写入的存储抽象，不提供更新与删除
type PostStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	// Insert 在 ID 已存在时返回 ErrDuplicate
	Insert(ctx context.Context, rec Record) error
	// Recent 按 timestamp 倒序返回最近的记录
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxRecentLimit {
		return defaultRecentLimit
	}
	return limit
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// Open 按配置选择存储后端；配置了 Redis 时在外层包一层已见 ID 缓存
func Open(ctx context.Context, cfg config.StoreConfig) (PostStore, error) {
	var (
		store PostStore
		err   error
	)
	switch cfg.Driver {
	case "", "mongo":
		store, err = NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case "postgres":
		store, err = NewGormStore(cfg.PostgresDSN)
	case "sqlite":
		store, err = NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, eris.Errorf("storage: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return store, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zap.L().Warn("redis ping failed, seen-id cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		return store, nil
	}
	return NewCachedStore(store, NewRedisSeenSet(rdb, cfg.RedisKey)), nil
}
