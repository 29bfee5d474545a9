package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"verigate/internal/entitlement/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

const (
	defaultRedisKeyPrefix = "verigate:"
	orderKeyPart          = "order:"
	userOrdersKeyPart     = "user_orders:"
)

// debitScript is the Redis rendition of the conditional decrement. Times are
// compared in unix microseconds, which fit exactly in a Lua number.
//
// KEYS[1] order hash, ARGV[1] now in unix microseconds.
var debitScript = redis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'status', 'remaining', 'expires_at_us')
if not vals[1] or vals[1] ~= 'active' then
	return 0
end
local remaining = tonumber(vals[2])
if not remaining or remaining < 1 then
	return 0
end
if tonumber(vals[3]) <= tonumber(ARGV[1]) then
	return 0
end
redis.call('HINCRBY', KEYS[1], 'remaining', -1)
redis.call('HINCRBY', KEYS[1], 'used', 1)
return 1
`)

// grantScript inserts the order hash and indexes it under its user unless the
// id is taken.
//
// KEYS[1] order hash, KEYS[2] user index set, ARGV[1] order id, ARGV[2..] hash fields.
var grantScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// RedisStore keeps each Order in a hash and a per-user set of order ids.
// The grant script writes two keys that hash to different slots, so the store
// targets a standalone or sentinel-managed Redis rather than Redis Cluster.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces every key, which lets tests share one server.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) orderKey(orderID id.OrderID) string {
	return s.prefix + orderKeyPart + orderID.String()
}

func (s *RedisStore) userOrdersKey(userID id.UserID) string {
	return s.prefix + userOrdersKeyPart + userID.String()
}

func (s *RedisStore) FindUsableOrders(ctx context.Context, userID id.UserID, types []id.VerificationType, now time.Time) ([]*models.Order, error) {
	if len(types) == 0 {
		return nil, nil
	}
	orders, err := s.loadUserOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find usable orders: %w", err)
	}
	out := orders[:0]
	for _, o := range orders {
		if o.IsUsableForAny(types, now) {
			out = append(out, o)
		}
	}
	models.SortForConsumption(out)
	return out, nil
}

func (s *RedisStore) TryDebit(ctx context.Context, orderID id.OrderID, now time.Time) (bool, error) {
	res, err := debitScript.Run(ctx, s.client, []string{s.orderKey(orderID)}, now.UnixMicro()).Int()
	if err != nil {
		return false, fmt.Errorf("debit order: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) Grant(ctx context.Context, order *models.Order) error {
	if order == nil {
		return sentinel.ErrInvalidState
	}
	if err := order.Validate(); err != nil {
		return err
	}
	args := append([]any{order.ID.String()}, encodeOrder(order)...)
	res, err := grantScript.Run(ctx, s.client,
		[]string{s.orderKey(order.ID), s.userOrdersKey(order.UserID)},
		args...,
	).Int()
	if err != nil {
		return fmt.Errorf("grant order: %w", err)
	}
	if res == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	fields, err := s.client.HGetAll(ctx, s.orderKey(orderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeOrder(orderID, fields)
}

func (s *RedisStore) ListActive(ctx context.Context, userID id.UserID, now time.Time) ([]*models.Order, error) {
	orders, err := s.loadUserOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}
	out := orders[:0]
	for _, o := range orders {
		if o.CanDebit(now) {
			out = append(out, o)
		}
	}
	models.SortForConsumption(out)
	return out, nil
}

func (s *RedisStore) loadUserOrders(ctx context.Context, userID id.UserID) ([]*models.Order, error) {
	members, err := s.client.SMembers(ctx, s.userOrdersKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]id.OrderID, 0, len(members))
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			oid, err := id.ParseOrderID(m)
			if err != nil {
				continue
			}
			ids = append(ids, oid)
			cmds = append(cmds, pipe.HGetAll(ctx, s.orderKey(oid)))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(cmds))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		o, err := decodeOrder(ids[i], fields)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func encodeOrder(o *models.Order) []any {
	types := make([]string, len(o.Quota.EligibleTypes))
	for i, t := range o.Quota.EligibleTypes {
		types[i] = t.String()
	}
	return []any{
		"user_id", o.UserID.String(),
		"status", string(o.Status),
		"eligible_types", strings.Join(types, ","),
		"total_granted", o.Quota.TotalGranted,
		"used", o.Quota.Used,
		"remaining", o.Quota.Remaining,
		"expires_at", o.Quota.ExpiresAt.UTC().Format(time.RFC3339Nano),
		"expires_at_us", o.Quota.ExpiresAt.UnixMicro(),
		"created_at", o.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeOrder(orderID id.OrderID, f map[string]string) (*models.Order, error) {
	userID, err := id.ParseUserID(f["user_id"])
	if err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	o := &models.Order{
		ID:     orderID,
		UserID: userID,
		Status: models.OrderStatus(f["status"]),
	}
	for _, t := range strings.Split(f["eligible_types"], ",") {
		if t != "" {
			o.Quota.EligibleTypes = append(o.Quota.EligibleTypes, id.VerificationType(t))
		}
	}
	ints := []struct {
		field string
		dst   *int
	}{
		{"total_granted", &o.Quota.TotalGranted},
		{"used", &o.Quota.Used},
		{"remaining", &o.Quota.Remaining},
	}
	for _, n := range ints {
		v, err := strconv.Atoi(f[n.field])
		if err != nil {
			return nil, fmt.Errorf("decode order %s %s: %w", orderID, n.field, err)
		}
		*n.dst = v
	}
	if o.Quota.ExpiresAt, err = time.Parse(time.RFC3339Nano, f["expires_at"]); err != nil {
		return nil, fmt.Errorf("decode order %s expires_at: %w", orderID, err)
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, f["created_at"]); err != nil {
		return nil, fmt.Errorf("decode order %s created_at: %w", orderID, err)
	}
	return o, nil
}
