package database

import "time"

// Render kinds stored in RenderRecord.Kind.
const (
	RenderKindText   = "text"   // /render output
	RenderKindCard   = "card"   // locally drawn player card
	RenderKindRemote = "remote" // stats image fetched from a remote service
)

// RenderRecord logs one image sent by the bot.
type RenderRecord struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	ChatID     int64  `db:"chat_id"`
	UserID     int64  `db:"user_id"`
	Kind       string `db:"kind"`
	FontFamily string `db:"font_family"`
	TextLength int    `db:"text_length"` // runes
	Width      int    `db:"width"`
	Height     int    `db:"height"`
	Lines      int    `db:"lines"`
	Bytes      int64  `db:"bytes"`
	DurationMS int64  `db:"duration_ms"`
}

// RenderStats aggregates RenderRecords over a time window.
type RenderStats struct {
	Count         int64   `db:"count"`
	TotalBytes    int64   `db:"total_bytes"`
	AvgDurationMS float64 `db:"avg_duration_ms"`
}

// PlayerSnapshot caches the last API response for a player tag.
// Data holds the raw JSON body.
type PlayerSnapshot struct {
	Tag             string    `db:"tag"`
	Name            string    `db:"name"`
	Trophies        int       `db:"trophies"`
	HighestTrophies int       `db:"highest_trophies"`
	Data            string    `db:"data"`
	FetchedAt       time.Time `db:"fetched_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Fresh reports whether the snapshot was fetched less than ttl before now.
func (p *PlayerSnapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return p != nil && ttl > 0 && now.Sub(p.FetchedAt) < ttl
}
