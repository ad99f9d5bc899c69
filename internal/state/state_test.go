package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (PreferenceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPreferenceStore(client), mr
}

func TestGetPreferences_Empty(t *testing.T) {
	store, _ := newTestStore(t)

	prefs, err := store.GetPreferences(context.Background(), "u1")
	require.NoError(t, err)

	assert.Empty(t, prefs.Categories)
	assert.NotNil(t, prefs.Categories)
	assert.False(t, prefs.HasOnboarded)
	assert.Zero(t, prefs.Streak)
	assert.Nil(t, prefs.LastVisit)
}

func TestSetCategories_RoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCategories(ctx, "u1", []string{"aa-1", "el-2"}))

	selection, err := store.GetSelection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"aa-1", "el-2"}, selection)

	raw, err := mr.Get("dealfeed:user:u1:categories")
	require.NoError(t, err)
	assert.JSONEq(t, `["aa-1","el-2"]`, raw)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestGetSelection_CorruptJSON(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("dealfeed:user:u1:categories", "{not json"))

	selection, err := store.GetSelection(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, selection)

	prefs, err := store.GetPreferences(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, prefs.Categories)
}

func TestCompleteOnboardingAndReset(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.SetCategories(ctx, "u1", []string{"aa-1"}))
	require.NoError(t, store.CompleteOnboarding(ctx, "u1"))
	_, err := store.UpdateStreak(ctx, "u1", day)
	require.NoError(t, err)
	_, err = store.UpdateStreak(ctx, "u1", day.AddDate(0, 0, 1))
	require.NoError(t, err)

	prefs, err := store.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, prefs.HasOnboarded)
	assert.Equal(t, 2, prefs.Streak)

	require.NoError(t, store.Reset(ctx, "u1"))

	prefs, err = store.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, prefs.HasOnboarded)
	assert.Empty(t, prefs.Categories)
	assert.Equal(t, 2, prefs.Streak)
	require.NotNil(t, prefs.LastVisit)
	assert.True(t, prefs.LastVisit.Equal(day.AddDate(0, 0, 1)))
}

func TestUpdateStreak(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	steps := []struct {
		name string
		at   time.Time
		want int
	}{
		{name: "first visit", at: start, want: 1},
		{name: "same day", at: start.Add(20 * time.Minute).Add(-time.Hour), want: 1},
		{name: "next day", at: start.Add(time.Hour), want: 2},
		{name: "next day again", at: start.AddDate(0, 0, 2), want: 3},
		{name: "skipped a day", at: start.AddDate(0, 0, 4), want: 1},
	}

	for _, step := range steps {
		got, err := store.UpdateStreak(ctx, "u1", step.at)
		require.NoError(t, err, step.name)
		assert.Equal(t, step.want, got, step.name)
	}
}

func TestUpdateStreak_SameDayLeavesStoreUntouched(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	morning := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	_, err := store.UpdateStreak(ctx, "u1", morning)
	require.NoError(t, err)
	before, err := mr.Get("dealfeed:user:u1:last_visit")
	require.NoError(t, err)

	streak, err := store.UpdateStreak(ctx, "u1", morning.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, streak)

	after, err := mr.Get("dealfeed:user:u1:last_visit")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, morning.Format(time.RFC3339), after)
}

func TestNextStreak(t *testing.T) {
	last := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	offset := time.FixedZone("UTC+3", 3*60*60)

	tests := []struct {
		name    string
		current int
		last    *time.Time
		now     time.Time
		want    int
	}{
		{name: "no previous visit", current: 0, last: nil, now: last, want: 1},
		{name: "same utc day", current: 4, last: &last, now: last.Add(6 * time.Hour), want: 4},
		{name: "month boundary", current: 4, last: &last, now: time.Date(2026, 2, 1, 0, 5, 0, 0, time.UTC), want: 5},
		{name: "local time same utc day", current: 4, last: &last, now: time.Date(2026, 2, 1, 2, 0, 0, 0, offset), want: 4},
		{name: "gap", current: 9, last: &last, now: last.AddDate(0, 0, 3), want: 1},
		{name: "clock went back", current: 3, last: &last, now: last.AddDate(0, 0, -2), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStreak(tt.current, tt.last, tt.now))
		})
	}
}

func TestListUsers_Sorted(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CompleteOnboarding(ctx, "zoe"))
	require.NoError(t, store.SetCategories(ctx, "adam", nil))
	_, err := store.UpdateStreak(ctx, "mia", time.Now())
	require.NoError(t, err)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"adam", "mia", "zoe"}, users)
}
