package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any transport-level Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no live record matches the lookup.
var ErrNotFound = errors.New("session not found")

// ErrAmbiguous is returned when a session-id scan matches more than one key.
// Session ids are unique by construction, so this is an integrity failure.
var ErrAmbiguous = errors.New("ambiguous session id")

// ErrRecordCorrupt is returned when a stored payload exists but cannot be
// decoded. Distinct from ErrNotFound so integrity problems surface loudly.
var ErrRecordCorrupt = errors.New("session record corrupt")

// ErrRecordExpired is returned when a record was found but its expiry has
// already passed. The record is deleted as part of the lookup.
var ErrRecordExpired = errors.New("session expired")

// ErrHashMismatch is returned when a presented refresh secret does not hash
// to the stored value.
var ErrHashMismatch = errors.New("refresh secret mismatch")

// ErrLimitExceeded is returned by Create when the owning user already holds
// the maximum number of live sessions.
var ErrLimitExceeded = errors.New("session limit reached")

const scanBatchSize = 1000

const (
	redeemStatusNotFound int64 = 0
	redeemStatusExpired  int64 = 1
	redeemStatusMismatch int64 = 2
	redeemStatusConsumed int64 = 3
	redeemStatusCorrupt  int64 = 4
)

// The script parses the stored v1 record far enough to locate the refresh
// hash and expiry, then consumes the key with a single atomic GET+DEL. A
// concurrent redemption of the same token therefore has exactly one winner;
// the loser observes an absent key. A hash mismatch leaves the record
// untouched: presenting a bad secret must not destroy the session.
const redeemScript = `
local function read_be64(s, i)
  local b1 = string.byte(s, i)
  local b2 = string.byte(s, i + 1)
  local b3 = string.byte(s, i + 2)
  local b4 = string.byte(s, i + 3)
  local b5 = string.byte(s, i + 4)
  local b6 = string.byte(s, i + 5)
  local b7 = string.byte(s, i + 6)
  local b8 = string.byte(s, i + 7)
  if not b8 then
    return nil
  end
  return ((((((((b1 * 256) + b2) * 256 + b3) * 256 + b4) * 256 + b5) * 256 + b6) * 256 + b7) * 256 + b8)
end

local function parse_record(data)
  local version = string.byte(data, 1)
  if version ~= 1 then
    return nil
  end

  local idx = 2
  for f = 1, 6 do
    local len = string.byte(data, idx)
    if not len then
      return nil
    end
    idx = idx + 1 + len
  end

  if #data < idx then
    return nil
  end
  idx = idx + 1

  if #data < idx + 31 then
    return nil
  end
  local refresh_hash = string.sub(data, idx, idx + 31)
  idx = idx + 32

  if #data < idx + 23 then
    return nil
  end
  idx = idx + 8
  local expires_at = read_be64(data, idx)
  if not expires_at then
    return nil
  end

  return {
    refresh_hash = refresh_hash,
    expires_at = expires_at
  }
end

local key = KEYS[1]
local provided_hash = ARGV[1]
local now_ms = tonumber(ARGV[2])

local data = redis.call("GET", key)
if not data then
  return {0}
end

local parsed = parse_record(data)
if not parsed then
  return {4}
end

if parsed.expires_at <= now_ms then
  redis.call("DEL", key)
  return {1}
end

if parsed.refresh_hash ~= provided_hash then
  return {2}
end

redis.call("DEL", key)
return {3, data}
`

var redeemLua = redis.NewScript(redeemScript)

// Registry is the Redis-backed session registry. One record per live
// session, keyed {prefix}:{userID}:{sessionID}, TTL equal to the remaining
// session lifetime. Redis is the single source of truth for validity;
// nothing is cached here.
type Registry struct {
	redis      redis.UniversalClient
	prefix     string
	maxPerUser int
}

// NewRegistry creates a [Registry]. prefix sets the key namespace;
// maxPerUser caps live sessions per user (0 disables the cap).
func NewRegistry(rdb redis.UniversalClient, prefix string, maxPerUser int) *Registry {
	return &Registry{
		redis:      rdb,
		prefix:     prefix,
		maxPerUser: maxPerUser,
	}
}

func (r *Registry) key(userID, sessionID string) string {
	return r.prefix + ":" + userID + ":" + sessionID
}

func (r *Registry) userPattern(userID string) string {
	return r.prefix + ":" + userID + ":*"
}

func (r *Registry) sessionPattern(sessionID string) string {
	return r.prefix + ":*:" + sessionID
}

func (r *Registry) allPattern() string {
	return r.prefix + ":*"
}

// splitKey recovers userID and sessionID from a full key. Session ids are
// base64url and never contain a colon, so the last separator wins even when
// the user id itself carries one.
func (r *Registry) splitKey(key string) (userID, sessionID string, ok bool) {
	rest, found := strings.CutPrefix(key, r.prefix+":")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

func (r *Registry) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)

	for {
		batch, next, err := r.redis.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Create persists a new record with the given TTL after enforcing the
// per-user cap. The count check and the write are separate round-trips: two
// creates racing just under the cap can both pass, so the cap is enforced
// approximately rather than strictly. Nothing is written when the cap check
// fails.
//
//	Performance: 1 SCAN loop + 1 SET.
func (r *Registry) Create(ctx context.Context, rec *Record, ttl time.Duration) error {
	if r.maxPerUser > 0 {
		count, err := r.CountForUser(ctx, rec.UserID)
		if err != nil {
			return err
		}
		if count >= r.maxPerUser {
			return ErrLimitExceeded
		}
	}

	data, err := Encode(rec)
	if err != nil {
		return err
	}

	if err := r.redis.Set(ctx, r.key(rec.UserID, rec.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// CountForUser counts live keys for one user by cursor scan.
func (r *Registry) CountForUser(ctx context.Context, userID string) (int, error) {
	keys, err := r.scanKeys(ctx, r.userPattern(userID))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Get fetches a record when both owner and session id are known.
//
//	Performance: 1 GET.
func (r *Registry) Get(ctx context.Context, userID, sessionID string) (*Record, error) {
	return r.getKey(ctx, r.key(userID, sessionID), sessionID)
}

// GetBySessionID resolves a record from the session id alone by scanning
// {prefix}:*:{sessionID}. More than one match means the uniqueness invariant
// is broken and the call fails with [ErrAmbiguous]. A payload that exists
// but will not decode fails with [ErrRecordCorrupt], never a silent miss.
func (r *Registry) GetBySessionID(ctx context.Context, sessionID string) (*Record, error) {
	key, err := r.resolveKey(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return r.getKey(ctx, key, sessionID)
}

func (r *Registry) resolveKey(ctx context.Context, sessionID string) (string, error) {
	keys, err := r.scanKeys(ctx, r.sessionPattern(sessionID))
	if err != nil {
		return "", err
	}

	switch {
	case len(keys) == 0:
		return "", ErrNotFound
	case len(keys) > 1:
		return "", fmt.Errorf("%w: %d keys match", ErrAmbiguous, len(keys))
	}

	return keys[0], nil
}

func (r *Registry) getKey(ctx context.Context, key, sessionID string) (*Record, error) {
	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	rec.SessionID = sessionID

	// Scans can surface keys whose TTL lapsed between scan and read. Treat
	// decayed entries as gone and reap them on the way out.
	if rec.ExpiresAt <= time.Now().UnixMilli() {
		_ = r.redis.Del(ctx, key).Err()
		return nil, ErrNotFound
	}

	return rec, nil
}

// Touch rewrites LastActivity and re-persists the record with its original
// remaining TTL. Activity never slides expiry.
//
//	Performance: 1 SCAN loop + GET + PTTL + SET.
func (r *Registry) Touch(ctx context.Context, sessionID string, at time.Time) error {
	key, err := r.resolveKey(ctx, sessionID)
	if err != nil {
		return err
	}

	rec, err := r.getKey(ctx, key, sessionID)
	if err != nil {
		return err
	}

	pttl, err := r.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		return ErrNotFound
	}

	rec.LastActivity = at.UnixMilli()
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	if err := r.redis.Set(ctx, key, data, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ListForUser returns the user's live records sorted by LastActivity
// descending. Entries that vanished, decayed, or fail to decode are skipped
// so one bad record never hides the rest.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*Record, error) {
	keys, err := r.scanKeys(ctx, r.userPattern(userID))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*Record{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowMs := time.Now().UnixMilli()
	records := make([]*Record, 0, len(keys))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			continue
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			continue
		}
		if rec.ExpiresAt <= nowMs {
			continue
		}

		if _, sid, ok := r.splitKey(keys[i]); ok {
			rec.SessionID = sid
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActivity > records[j].LastActivity
	})

	return records, nil
}

// Delete removes one record. Reports whether a key was actually deleted.
//
//	Performance: 1 DEL.
func (r *Registry) Delete(ctx context.Context, userID, sessionID string) (bool, error) {
	n, err := r.redis.Del(ctx, r.key(userID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// DeleteBySessionID resolves the owning key by scan and deletes it without
// decoding the payload, so even a corrupt record can be revoked. A missing
// record reports false with no error.
func (r *Registry) DeleteBySessionID(ctx context.Context, sessionID string) (bool, error) {
	key, err := r.resolveKey(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	n, err := r.redis.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}

// DeleteAllForUser removes every record for a user, best effort: a single
// key's failure does not abort the batch. Returns the count actually
// removed.
func (r *Registry) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	keys, err := r.scanKeys(ctx, r.userPattern(userID))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Del(ctx, key)
	}
	_, execErr := pipe.Exec(ctx)

	removed := 0
	for _, cmd := range cmds {
		n, cmdErr := cmd.Result()
		if cmdErr != nil {
			continue
		}
		removed += int(n)
	}

	if removed == 0 && execErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, execErr)
	}

	return removed, nil
}

// Redeem atomically consumes the record for a refresh exchange: the stored
// hash is compared against providedHash and the key deleted in one script,
// so the same token can never be redeemed twice. The deleted record is
// returned for snapshot reuse. An expired record is deleted and reported as
// [ErrRecordExpired]; a bad secret leaves the record in place.
//
//	Performance: 1 SCAN loop + 1 EVALSHA.
func (r *Registry) Redeem(ctx context.Context, sessionID string, providedHash [32]byte, now time.Time) (*Record, error) {
	key, err := r.resolveKey(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := redeemLua.Run(ctx, r.redis, []string{key}, providedHash[:], now.UnixMilli()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid redeem script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid redeem script status", ErrRedisUnavailable)
	}

	switch code {
	case redeemStatusNotFound:
		return nil, errors.Join(redis.Nil, ErrNotFound)
	case redeemStatusExpired:
		return nil, ErrRecordExpired
	case redeemStatusMismatch:
		return nil, ErrHashMismatch
	case redeemStatusCorrupt:
		return nil, ErrRecordCorrupt
	case redeemStatusConsumed:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing consumed payload", ErrRedisUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid consumed payload", ErrRedisUnavailable)
		}

		rec, decErr := Decode(blob)
		if decErr != nil {
			return nil, decErr
		}
		rec.SessionID = sessionID
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown redeem script status %d", ErrRedisUnavailable, code)
	}
}

// SweepExpired reaps keys the scan still returns but whose store TTL reports
// absent or missing. Redis normally evicts these itself; the sweep exists
// for entries that decayed between eviction cycles or lost their TTL.
// Per-key failures are skipped.
func (r *Registry) SweepExpired(ctx context.Context) (int, error) {
	keys, err := r.scanKeys(ctx, r.allPattern())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		pttl, pttlErr := r.redis.PTTL(ctx, key).Result()
		if pttlErr != nil {
			continue
		}
		if pttl > 0 {
			continue
		}
		if delErr := r.redis.Del(ctx, key).Err(); delErr != nil {
			continue
		}
		removed++
	}

	return removed, nil
}

// SweepInactive deletes records whose LastActivity predates now minus
// threshold, regardless of remaining TTL. Records that fail to decode are
// skipped here; TTL decay or SweepExpired will catch them.
func (r *Registry) SweepInactive(ctx context.Context, threshold time.Duration, now time.Time) (int, error) {
	keys, err := r.scanKeys(ctx, r.allPattern())
	if err != nil {
		return 0, err
	}

	cutoff := now.UnixMilli() - threshold.Milliseconds()
	removed := 0
	for _, key := range keys {
		data, getErr := r.redis.Get(ctx, key).Bytes()
		if getErr != nil {
			continue
		}

		rec, decErr := Decode(data)
		if decErr != nil {
			continue
		}
		if rec.LastActivity >= cutoff {
			continue
		}

		if delErr := r.redis.Del(ctx, key).Err(); delErr != nil {
			continue
		}
		removed++
	}

	return removed, nil
}

// Ping reports point-in-time Redis availability and latency.
func (r *Registry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
