package seeder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hayzedd/internal/events"
	"hayzedd/internal/seeder"
	"hayzedd/internal/sessions"
	"hayzedd/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	se := seeder.NewSeeder(dbManager, logger, 60)
	se.Days = 7

	stats, err := se.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.PageViews, 60)
	assert.Positive(t, stats.Sessions)

	var pageViews int64
	require.NoError(t, db.Model(&events.PageView{}).Count(&pageViews).Error)
	assert.Equal(t, int64(stats.PageViews), pageViews)

	var seeded []sessions.Session
	require.NoError(t, db.Find(&seeded).Error)
	require.Len(t, seeded, stats.Sessions)

	var totalViews int
	earliest := time.Now().UTC().Add(-8 * 24 * time.Hour)
	for _, s := range seeded {
		totalViews += s.PageViews
		assert.True(t, s.FirstVisit.After(earliest), "first visit %s outside the window", s.FirstVisit)
		assert.False(t, s.LastActivity.Before(s.FirstVisit))
		assert.Equal(t, "Unknown", s.Location.Country)
	}
	assert.Equal(t, stats.PageViews, totalViews, "session counters match stored page views")
}

func TestSeederHonorsCancellation(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	testsupport.CleanAllTables(dbManager.GetConnection())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seeder.NewSeeder(dbManager, logger, 100).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
