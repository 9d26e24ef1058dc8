package model

import "time"

// Post はブログ記事を表す。
// IDとCreatedAtはデータストアが採番する。
type Post struct {
	ID        int64
	Title     string
	Content   string
	CreatedAt time.Time
}
