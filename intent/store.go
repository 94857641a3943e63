package intent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/Kellyjunior6387/flixshare/model"
)

var ErrIntentNotFound = errors.New("payment intent not found")

const keyPrefix = "payment_intent:"

// Cache is the fast tier of the store. Implementations must treat a miss
// as (nil, false, nil), not an error.
type Cache interface {
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// RedisCache bounds every operation with a short timeout so a slow Redis
// never stalls callback handling.
type RedisCache struct {
	RDB     *redis.Client
	Timeout time.Duration
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{RDB: rdb, Timeout: 500 * time.Millisecond}
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return c.RDB.Set(ctx, key, val, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	val, err := c.RDB.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// cached is the JSON shape stored under payment_intent:{id}.
type cached struct {
	UserID      string `json:"user_id"`
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	PhoneNumber string `json:"phone_number"`
}

// Store is the two-tier intent store: Redis in front, Postgres behind.
// The durable tier is the source of truth; the cache is best effort.
type Store struct {
	Cache Cache
	DB    *gorm.DB
	TTL   time.Duration
}

func NewStore(c Cache, db *gorm.DB) *Store {
	return &Store{Cache: c, DB: db, TTL: time.Hour}
}

// Put persists the intent. The durable insert must succeed; a cache write
// failure is logged and swallowed so it never fails the initiate request.
func (s *Store) Put(ctx context.Context, in *model.PaymentIntent) error {
	if err := s.DB.WithContext(ctx).Create(in).Error; err != nil {
		return err
	}

	payload, _ := json.Marshal(cached{
		UserID:      in.UserID,
		RoomID:      in.RoomID,
		RoomName:    in.RoomName,
		PhoneNumber: in.PhoneNumber,
	})
	if err := s.Cache.Set(ctx, keyPrefix+in.MerchantRequestID, payload, s.TTL); err != nil {
		log.Printf("intent cache write failed for %s: %v", in.MerchantRequestID, err)
	}
	return nil
}

// Get tries the cache first and falls back to the durable row on miss or
// cache error. Returns ErrIntentNotFound when both tiers come up empty.
func (s *Store) Get(ctx context.Context, merchantRequestID string) (*model.PaymentIntent, error) {
	val, found, err := s.Cache.Get(ctx, keyPrefix+merchantRequestID)
	if err != nil {
		log.Printf("intent cache read failed for %s: %v", merchantRequestID, err)
	} else if found {
		var c cached
		if err := json.Unmarshal(val, &c); err == nil {
			return &model.PaymentIntent{
				MerchantRequestID: merchantRequestID,
				UserID:            c.UserID,
				RoomID:            c.RoomID,
				RoomName:          c.RoomName,
				PhoneNumber:       c.PhoneNumber,
			}, nil
		}
		log.Printf("corrupt cache entry for %s, falling back to db", merchantRequestID)
	}

	var in model.PaymentIntent
	err = s.DB.WithContext(ctx).Where("merchant_request_id = ?", merchantRequestID).First(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}
