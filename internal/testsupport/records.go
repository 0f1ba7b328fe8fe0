package testsupport

import (
	"encoding/json"
	"fmt"
	"testing"
)

// Record describes a change record for StreamBatch. Image values that are
// integers become {"N": ...} attributes; everything else becomes {"S": ...}.
type Record struct {
	EventID   string
	EventName string
	NewImage  map[string]any
	OldImage  map[string]any
}

// StreamBatch encodes records in the DynamoDB stream event shape.
func StreamBatch(t testing.TB, records ...Record) []byte {
	t.Helper()

	out := make([]map[string]any, 0, len(records))
	for i, rec := range records {
		id := rec.EventID
		if id == "" {
			id = fmt.Sprintf("evt-%d", i+1)
		}
		dynamo := map[string]any{}
		if rec.NewImage != nil {
			dynamo["NewImage"] = typedImage(rec.NewImage)
		}
		if rec.OldImage != nil {
			dynamo["OldImage"] = typedImage(rec.OldImage)
		}
		out = append(out, map[string]any{
			"eventID":   id,
			"eventName": rec.EventName,
			"dynamodb":  dynamo,
		})
	}
	data, err := json.Marshal(map[string]any{"Records": out})
	if err != nil {
		t.Fatalf("encode stream batch: %v", err)
	}
	return data
}

func typedImage(image map[string]any) map[string]map[string]string {
	typed := make(map[string]map[string]string, len(image))
	for key, value := range image {
		switch v := value.(type) {
		case int:
			typed[key] = map[string]string{"N": fmt.Sprint(v)}
		case int64:
			typed[key] = map[string]string{"N": fmt.Sprint(v)}
		default:
			typed[key] = map[string]string{"S": fmt.Sprint(v)}
		}
	}
	return typed
}

// VideoImage returns a fully populated video image.
func VideoImage(videoID string) map[string]any {
	return map[string]any{
		"id":           "row-" + videoID,
		"videoId":      videoID,
		"title":        "Title " + videoID,
		"description":  "Description " + videoID,
		"category":     "Music",
		"totalViews":   42,
		"createdAt":    "2024-01-02T03:04:05Z",
		"lastModified": "2024-01-03T03:04:05Z",
		"eTag":         "etag-" + videoID,
	}
}
