package cdc

import "time"

// VideoInput is the createVideo mutation input.
type VideoInput struct {
	ID           string `json:"id"`
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	TotalViews   int64  `json:"totalViews"`
	CreatedAt    string `json:"createdAt"`
	LastModified string `json:"lastModified"`
	Key          string `json:"key"`
	ETag         string `json:"etag"`
	UpdatedAt    string `json:"updatedAt"`
}

// NotificationInput is the createVideoNotification mutation input.
type NotificationInput struct {
	ID        string       `json:"id"`
	VideoID   string       `json:"videoId"`
	Action    MutationKind `json:"action"`
	Title     string       `json:"title"`
	Category  string       `json:"category"`
	ETag      string       `json:"etag"`
	UpdatedAt string       `json:"updatedAt"`
	CreatedAt string       `json:"createdAt"`
}

// BuildVideoInput maps extracted values to the entity. key mirrors videoId.
func BuildVideoInput(values Values, now time.Time) VideoInput {
	return VideoInput{
		ID:           values.Str("id"),
		VideoID:      values.Str("videoId"),
		Title:        values.Str("title"),
		Description:  values.Str("description"),
		Category:     values.Str("category"),
		TotalViews:   values.Int("totalViews"),
		CreatedAt:    values.Str("createdAt"),
		LastModified: values.Str("lastModified"),
		Key:          values.Str("videoId"),
		ETag:         values.Str("etag"),
		UpdatedAt:    FormatTimestamp(now),
	}
}

// BuildNotificationInput derives the notification for video.
func BuildNotificationInput(id string, video VideoInput, action MutationKind) NotificationInput {
	return NotificationInput{
		ID:        id,
		VideoID:   video.VideoID,
		Action:    action,
		Title:     video.Title,
		Category:  video.Category,
		ETag:      video.ETag,
		UpdatedAt: video.UpdatedAt,
		CreatedAt: video.CreatedAt,
	}
}
