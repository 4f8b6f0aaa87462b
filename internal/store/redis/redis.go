package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/newroots/portfolio/internal/models"
	"github.com/newroots/portfolio/internal/store"
	"github.com/redis/go-redis/v9"
)

// Redis implements a Redis Store.
type Redis struct {
	client *redis.Client
	conf   Conf
}

// Conf contains Redis configuration fields.
type Conf struct {
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Username  string        `json:"username"`
	Password  string        `json:"password"`
	DB        int           `json:"db"`
	Timeout   time.Duration `json:"timeout"`
	KeyPrefix string        `json:"key_prefix"`
}

// New returns a Redis implementation of store.
func New(c Conf) *Redis {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "portfolio"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.Timeout,
		WriteTimeout: c.Timeout,
		ReadTimeout:  c.Timeout,
	})

	return &Redis{
		conf:   c,
		client: client,
	}
}

// Ping checks if the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// PutAccount writes an account keyed by its lowercased email.
func (r *Redis) PutAccount(ctx context.Context, a models.Account) error {
	return r.client.HSet(ctx, r.accountKey(a.Email),
		"email", a.Email,
		"password", a.Password,
		"full_name", a.FullName,
		"is_verified", a.IsVerified,
		"is_admin", a.IsAdmin,
		"created_at", a.CreatedAt,
		"last_login", a.LastLogin).Err()
}

// Account fetches an account by email.
func (r *Redis) Account(ctx context.Context, email string) (models.Account, error) {
	var out models.Account
	if err := r.client.HGetAll(ctx, r.accountKey(email)).Scan(&out); err != nil {
		return out, err
	}

	// Doesn't exist?
	if out.Email == "" {
		return out, store.ErrNotExist
	}

	return out, nil
}

// TouchLogin stamps the last successful login time on an account.
func (r *Redis) TouchLogin(ctx context.Context, email string, at time.Time) error {
	return r.setAccountField(ctx, email, "last_login", at.UnixMilli())
}

// SetPassword replaces the stored password hash.
func (r *Redis) SetPassword(ctx context.Context, email, hash string) error {
	return r.setAccountField(ctx, email, "password", hash)
}

// SetVerified marks the account's email as verified.
func (r *Redis) SetVerified(ctx context.Context, email string, at time.Time) error {
	return r.setAccountField(ctx, email, "is_verified", true)
}

// setAccountField updates one field on an existing account hash. A
// bare HSET on a missing key would create a stray partial account.
func (r *Redis) setAccountField(ctx context.Context, email, field string, val interface{}) error {
	key := r.accountKey(email)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotExist
	}
	return r.client.HSet(ctx, key, field, val).Err()
}

// SetOTP writes the pending OTP for an email, superseding any prior
// record and resetting the attempt counter.
func (r *Redis) SetOTP(ctx context.Context, o models.OTP, keep time.Duration) error {
	key := r.otpKey(o.Email)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"email", o.Email,
		"code", o.Code,
		"attempts", o.Attempts,
		"max_attempts", o.MaxAttempts,
		"issued_at", o.IssuedAt,
		"expires_at", o.ExpiresAt)
	pipe.PExpire(ctx, key, keep)
	_, err := pipe.Exec(ctx)
	return err
}

// OTP fetches the pending OTP for an email.
func (r *Redis) OTP(ctx context.Context, email string) (models.OTP, error) {
	var out models.OTP
	if err := r.client.HGetAll(ctx, r.otpKey(email)).Scan(&out); err != nil {
		return out, err
	}

	if out.Code == "" {
		return out, store.ErrNotExist
	}

	return out, nil
}

// IncrAttempts increments the attempt counter on the pending OTP.
func (r *Redis) IncrAttempts(ctx context.Context, email string) (int, error) {
	n, err := r.client.HIncrBy(ctx, r.otpKey(email), "attempts", 1).Result()
	return int(n), err
}

// DeleteOTP removes the pending OTP for an email.
func (r *Redis) DeleteOTP(ctx context.Context, email string) error {
	return r.client.Del(ctx, r.otpKey(email)).Err()
}

// PutContent writes a content item and indexes it under its section.
func (r *Redis) PutContent(ctx context.Context, item models.ContentItem) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.contentKey(item.Section, item.ID),
		"id", item.ID,
		"section", item.Section,
		"slug", item.Slug,
		"data", string(item.Data),
		"created_at", item.CreatedAt,
		"updated_at", item.UpdatedAt)
	pipe.SAdd(ctx, r.sectionKey(item.Section), item.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// Content lists all items in a section.
func (r *Redis) Content(ctx context.Context, section string) ([]models.ContentItem, error) {
	ids, err := r.client.SMembers(ctx, r.sectionKey(section)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.ContentItem, 0, len(ids))
	for _, id := range ids {
		item, err := r.ContentItem(ctx, section, id)
		if err != nil {
			// The index can briefly point at an item deleted by a
			// concurrent writer.
			if err == store.ErrNotExist {
				continue
			}
			return nil, err
		}
		out = append(out, item)
	}

	return out, nil
}

// ContentItem fetches a single item from a section.
func (r *Redis) ContentItem(ctx context.Context, section, id string) (models.ContentItem, error) {
	var out models.ContentItem
	if err := r.client.HGetAll(ctx, r.contentKey(section, id)).Scan(&out); err != nil {
		return out, err
	}

	if out.ID == "" {
		return out, store.ErrNotExist
	}

	return out, nil
}

// UpdateContent replaces the payload of an existing item.
func (r *Redis) UpdateContent(ctx context.Context, section, id string, data json.RawMessage, at time.Time) error {
	key := r.contentKey(section, id)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotExist
	}

	return r.client.HSet(ctx, key,
		"data", string(data),
		"updated_at", at.UnixMilli()).Err()
}

// DeleteContent removes an item and its index entry.
func (r *Redis) DeleteContent(ctx context.Context, section, id string) error {
	key := r.contentKey(section, id)

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return store.ErrNotExist
	}

	return r.client.SRem(ctx, r.sectionKey(section), id).Err()
}

// PutMessage writes a contact message and indexes it by submission
// time.
func (r *Redis) PutMessage(ctx context.Context, m models.ContactMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.messageKey(m.ID), b, 0)
	pipe.ZAdd(ctx, r.messagesKey(), redis.Z{
		Score:  float64(m.CreatedAt),
		Member: m.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// Messages lists contact messages, newest first.
func (r *Redis) Messages(ctx context.Context) ([]models.ContactMessage, error) {
	ids, err := r.client.ZRevRange(ctx, r.messagesKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.ContactMessage, 0, len(ids))
	for _, id := range ids {
		m, err := r.Message(ctx, id)
		if err != nil {
			// The index can briefly point at a message deleted by a
			// concurrent writer.
			if err == store.ErrNotExist {
				continue
			}
			return nil, err
		}
		out = append(out, m)
	}

	return out, nil
}

// Message fetches a single contact message.
func (r *Redis) Message(ctx context.Context, id string) (models.ContactMessage, error) {
	var out models.ContactMessage

	row, err := r.client.Get(ctx, r.messageKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return out, store.ErrNotExist
		}
		return out, err
	}

	if err := json.Unmarshal([]byte(row), &out); err != nil {
		return out, err
	}
	return out, nil
}

// SetMessageStatus updates a message's triage status.
func (r *Redis) SetMessageStatus(ctx context.Context, id, status string) error {
	m, err := r.Message(ctx, id)
	if err != nil {
		return err
	}
	m.Status = status

	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.messageKey(id), b, 0).Err()
}

// DeleteMessage removes a contact message and its index entry.
func (r *Redis) DeleteMessage(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, r.messageKey(id)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return store.ErrNotExist
	}

	return r.client.ZRem(ctx, r.messagesKey(), id).Err()
}

// WindowCount prunes entries older than cutoff from a rate-limit window
// and returns the remaining count and the oldest remaining timestamp.
func (r *Redis) WindowCount(ctx context.Context, key string, cutoff time.Time) (int, time.Time, error) {
	k := r.windowKey(key)

	// Scores are Unix milliseconds; they survive the float64 score
	// representation, nanoseconds don't.
	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(cutoff.UnixMilli(), 10))
	card := pipe.ZCard(ctx, k)
	oldest := pipe.ZRangeWithScores(ctx, k, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	var at time.Time
	if rows := oldest.Val(); len(rows) > 0 {
		at = time.UnixMilli(int64(rows[0].Score))
	}

	return int(card.Val()), at, nil
}

// WindowAppend records one hit in a rate-limit window.
func (r *Redis) WindowAppend(ctx context.Context, key string, at time.Time, keep time.Duration) error {
	k := r.windowKey(key)

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, k, keep)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) accountKey(email string) string {
	return fmt.Sprintf("%s:account:%s", r.conf.KeyPrefix, email)
}

func (r *Redis) otpKey(email string) string {
	return fmt.Sprintf("%s:otp:%s", r.conf.KeyPrefix, email)
}

func (r *Redis) contentKey(section, id string) string {
	return fmt.Sprintf("%s:content:%s:%s", r.conf.KeyPrefix, section, id)
}

func (r *Redis) sectionKey(section string) string {
	return fmt.Sprintf("%s:section:%s", r.conf.KeyPrefix, section)
}

func (r *Redis) messagesKey() string {
	return fmt.Sprintf("%s:messages", r.conf.KeyPrefix)
}

func (r *Redis) messageKey(id string) string {
	return fmt.Sprintf("%s:message:%s", r.conf.KeyPrefix, id)
}

func (r *Redis) windowKey(key string) string {
	return fmt.Sprintf("%s:window:%s", r.conf.KeyPrefix, key)
}
