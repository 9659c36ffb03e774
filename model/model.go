// Package model holds the shared data types exchanged between the file
// store, the chat pipeline, and the database layer.
package model

import "time"

// VideoLog is one VOD's metadata, parsed from the video filename convention
// {YYYYMMDD}_{category}_{video_id}.mp4. Rows are immutable once inserted.
type VideoLog struct {
	StreamerIdx int
	VideoID     int64
	Category    string
	CreatedAt   time.Time
	VideoURL    string
}

// ChatRecord is the canonical shape of a chat message that passed filtering.
// It is both the JSONL page format on disk and the chats table row shape.
type ChatRecord struct {
	VideoID     int64  `json:"video_id"`
	Content     string `json:"content"`
	TimestampMS int64  `json:"timestamp_ms"`
	UserIDHash  string `json:"user_id_hash"`
	PayAmount   int64  `json:"pay_amount"`
	OSType      string `json:"os_type"`
}
