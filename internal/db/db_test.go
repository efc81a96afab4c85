package db

import (
	"testing"

	"github.com/Leganyst/detailer-scheduling/internal/config"
)

func TestNewGormDB_SQLite(t *testing.T) {
	gdb, err := NewGormDB(&config.DBConfig{
		Driver:       "sqlite",
		SQLitePath:   "file:dbtest?mode=memory&cache=shared",
		MaxOpenConns: 10,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	defer sqlDB.Close()

	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected sqlite pool capped at 1, got %d", got)
	}

	var one int
	if err := gdb.Raw("SELECT 1").Scan(&one).Error; err != nil {
		t.Fatalf("select: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected 1, got %d", one)
	}
}
