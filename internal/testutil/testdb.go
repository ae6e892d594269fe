// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"medication-reminder-backend/internal/db"
	"medication-reminder-backend/internal/model"
	"medication-reminder-backend/internal/recurrence"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with all migrations applied.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	return open(t, fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1)))
}

// NewLocalDB is NewDB on a host whose time.Local is loc. Timestamps are
// read back in that location, as pgx does with timestamptz columns.
func NewLocalDB(t testing.TB, loc *time.Location) *gorm.DB {
	t.Helper()

	prev := time.Local
	time.Local = loc
	t.Cleanup(func() { time.Local = prev })

	return open(t, fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_loc=auto", dbSeq.Add(1)))
}

func open(t testing.TB, dsn string) *gorm.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	// One connection serialises writers the way row locks would in Postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// CreateMedication inserts an active medication with one active slot per time.
func CreateMedication(t testing.TB, gormDB *gorm.DB, userID, name string, rule recurrence.Rule, createdAt time.Time, times ...string) *model.Medication {
	t.Helper()

	med := &model.Medication{
		UserID:    userID,
		Name:      name,
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, med.SetRule(rule))
	for _, tm := range times {
		med.Slots = append(med.Slots, model.IntakeSlot{
			Time:      tm,
			Label:     LabelFor(tm),
			IsActive:  true,
			CreatedAt: createdAt,
		})
	}
	require.NoError(t, gormDB.Create(med).Error)
	return med
}

// LabelFor picks a plausible slot label for a clock time.
func LabelFor(tm string) model.SlotLabel {
	ct, err := recurrence.ParseClockTime(tm)
	if err != nil {
		return model.SlotMorning
	}
	switch {
	case ct.Hour < 11:
		return model.SlotMorning
	case ct.Hour < 13:
		return model.SlotNoon
	case ct.Hour < 18:
		return model.SlotAfternoon
	case ct.Hour < 22:
		return model.SlotNight
	}
	return model.SlotBeforeSleep
}
