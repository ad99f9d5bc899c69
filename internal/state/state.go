package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"dealfeed/internal/domain"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const keyPrefix = "dealfeed:"

// PreferenceStore keeps per-user category selections and visit streaks.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (domain.Preferences, error)
	// GetSelection returns the stored category ids, empty when nothing usable is stored.
	GetSelection(ctx context.Context, userID string) ([]string, error)
	SetCategories(ctx context.Context, userID string, ids []string) error
	CompleteOnboarding(ctx context.Context, userID string) error
	UpdateStreak(ctx context.Context, userID string, now time.Time) (int, error)
	Reset(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]string, error)
}

type redisPreferenceStore struct {
	redisClient *redis.Client
	keyPrefix   string
}

func NewRedisPreferenceStore(redisClient *redis.Client) PreferenceStore {
	return &redisPreferenceStore{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
	}
}

func (s *redisPreferenceStore) userKey(userID, field string) string {
	return s.keyPrefix + "user:" + userID + ":" + field
}

func (s *redisPreferenceStore) usersKey() string {
	return s.keyPrefix + "users"
}

func (s *redisPreferenceStore) GetPreferences(ctx context.Context, userID string) (domain.Preferences, error) {
	vals, err := s.redisClient.MGet(ctx,
		s.userKey(userID, "categories"),
		s.userKey(userID, "has_onboarded"),
		s.userKey(userID, "streak"),
		s.userKey(userID, "last_visit"),
	).Result()
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("failed to get preferences for user %s: %w", userID, err)
	}

	prefs := domain.Preferences{
		Categories: decodeCategories(userID, stringValue(vals[0])),
	}
	prefs.HasOnboarded = stringValue(vals[1]) == "1"

	if raw := stringValue(vals[2]); raw != "" {
		streak, err := strconv.Atoi(raw)
		if err != nil {
			log.Warnf("⚠️ Ignoring corrupt streak %q for user %s", raw, userID)
		} else {
			prefs.Streak = streak
		}
	}

	if raw := stringValue(vals[3]); raw != "" {
		lastVisit, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			log.Warnf("⚠️ Ignoring corrupt last visit %q for user %s", raw, userID)
		} else {
			prefs.LastVisit = &lastVisit
		}
	}

	return prefs, nil
}

func (s *redisPreferenceStore) GetSelection(ctx context.Context, userID string) ([]string, error) {
	val, err := s.redisClient.Get(ctx, s.userKey(userID, "categories")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get categories for user %s: %w", userID, err)
	}
	return decodeCategories(userID, val), nil
}

func (s *redisPreferenceStore) SetCategories(ctx context.Context, userID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, s.userKey(userID, "categories"), string(data), 0)
	pipe.SAdd(ctx, s.usersKey(), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set categories for user %s: %w", userID, err)
	}
	return nil
}

func (s *redisPreferenceStore) CompleteOnboarding(ctx context.Context, userID string) error {
	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, s.userKey(userID, "has_onboarded"), "1", 0)
	pipe.SAdd(ctx, s.usersKey(), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete onboarding for user %s: %w", userID, err)
	}
	return nil
}

// UpdateStreak records a visit at now. Visits are counted per UTC day: a second
// visit on the same day keeps the streak, a visit on the following day extends
// it and anything later starts over at 1.
func (s *redisPreferenceStore) UpdateStreak(ctx context.Context, userID string, now time.Time) (int, error) {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return 0, err
	}

	// Nothing to record for a second visit on the same day.
	if prefs.LastVisit != nil && prefs.Streak > 0 && utcDay(now).Equal(utcDay(*prefs.LastVisit)) {
		return prefs.Streak, nil
	}

	streak := NextStreak(prefs.Streak, prefs.LastVisit, now)

	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, s.userKey(userID, "streak"), streak, 0)
	pipe.Set(ctx, s.userKey(userID, "last_visit"), now.UTC().Format(time.RFC3339), 0)
	pipe.SAdd(ctx, s.usersKey(), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to update streak for user %s: %w", userID, err)
	}

	if streak > prefs.Streak {
		log.Debugf("🔥 User %s streak is now %d", userID, streak)
	}
	return streak, nil
}

// Reset clears the selection and onboarding flag. The streak survives.
func (s *redisPreferenceStore) Reset(ctx context.Context, userID string) error {
	err := s.redisClient.Del(ctx,
		s.userKey(userID, "categories"),
		s.userKey(userID, "has_onboarded"),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to reset preferences for user %s: %w", userID, err)
	}
	return nil
}

func (s *redisPreferenceStore) ListUsers(ctx context.Context) ([]string, error) {
	users, err := s.redisClient.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	slices.Sort(users)
	return users, nil
}

// NextStreak computes the streak after a visit at now.
func NextStreak(current int, lastVisit *time.Time, now time.Time) int {
	if lastVisit == nil || current <= 0 {
		return 1
	}

	today := utcDay(now)
	last := utcDay(*lastVisit)

	switch {
	case today.Equal(last):
		return current
	case today.Equal(last.AddDate(0, 0, 1)):
		return current + 1
	default:
		return 1
	}
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func decodeCategories(userID, raw string) []string {
	if raw == "" {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		log.Warnf("⚠️ Stored categories for user %s are corrupt, treating as empty: %v", userID, err)
		return []string{}
	}
	if ids == nil {
		return []string{}
	}
	return ids
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
