package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DoyleJ11/sketchroom/pkg/protocol"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Game is one finished game. Rooms are ephemeral, so the room code is only a
// label here and may repeat across games.
type Game struct {
	ID         uint        `gorm:"primaryKey"`
	RoomCode   string      `gorm:"size:12;index;not null"`
	Winner     string      `gorm:"size:64;not null"`
	Rounds     int         `gorm:"not null"`
	FinishedAt time.Time   `gorm:"index;not null"`
	Scores     []GameScore `gorm:"constraint:OnDelete:CASCADE"`
}

type GameScore struct {
	ID       uint   `gorm:"primaryKey"`
	GameID   uint   `gorm:"index;not null"`
	PlayerID string `gorm:"size:64;not null"`
	Name     string `gorm:"size:64;not null"`
	Score    int    `gorm:"not null"`
	Place    int    `gorm:"not null"`
}

type Store struct {
	db  *gorm.DB
	sql *sql.DB
	now func() time.Time
}

// Open connects through pgx, migrates the schema and returns a ready store.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	sqlDB := stdlib.OpenDB(*cfg)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&Game{}, &GameScore{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, sql: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error { return s.sql.Close() }

// RecordGame stores a finished game with its final standings.
func (s *Store) RecordGame(ctx context.Context, roomCode string, over protocol.GameOver) error {
	g := toGame(roomCode, over, s.now().UTC())
	if err := s.db.WithContext(ctx).Create(&g).Error; err != nil {
		return fmt.Errorf("record game: %w", err)
	}
	return nil
}

// RecentGames returns up to limit games played under roomCode, newest first.
func (s *Store) RecentGames(ctx context.Context, roomCode string, limit int) ([]protocol.GameRecord, error) {
	var games []Game
	err := s.db.WithContext(ctx).
		Preload("Scores", func(db *gorm.DB) *gorm.DB { return db.Order("place, id") }).
		Where("room_code = ?", roomCode).
		Order("finished_at desc, id desc").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("recent games: %w", err)
	}

	out := make([]protocol.GameRecord, 0, len(games))
	for _, g := range games {
		out = append(out, g.record())
	}
	return out, nil
}

func toGame(roomCode string, over protocol.GameOver, at time.Time) Game {
	g := Game{
		RoomCode:   roomCode,
		Winner:     over.Winner,
		Rounds:     over.Rounds,
		FinishedAt: at,
		Scores:     make([]GameScore, 0, len(over.FinalScores)),
	}
	for _, st := range over.FinalScores {
		g.Scores = append(g.Scores, GameScore{
			PlayerID: st.PlayerID,
			Name:     st.Name,
			Score:    st.Score,
			Place:    st.Rank,
		})
	}
	return g
}

func (g Game) record() protocol.GameRecord {
	rec := protocol.GameRecord{
		RoomCode:    g.RoomCode,
		Winner:      g.Winner,
		Rounds:      g.Rounds,
		FinishedAt:  g.FinishedAt,
		FinalScores: make([]protocol.Standing, 0, len(g.Scores)),
	}
	for _, sc := range g.Scores {
		rec.FinalScores = append(rec.FinalScores, protocol.Standing{
			PlayerID: sc.PlayerID,
			Name:     sc.Name,
			Score:    sc.Score,
			Rank:     sc.Place,
		})
	}
	return rec
}

// Nop is used when no database is configured. It keeps nothing.
type Nop struct{}

func (Nop) RecordGame(context.Context, string, protocol.GameOver) error { return nil }

func (Nop) RecentGames(context.Context, string, int) ([]protocol.GameRecord, error) {
	return nil, nil
}
