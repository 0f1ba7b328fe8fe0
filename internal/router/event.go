package router

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"vidflow/internal/services"
)

// DetailTypeObjectCreated is the EventBridge detail type for new objects.
const DetailTypeObjectCreated = "Object Created"

// Event is a normalized upload notification.
type Event struct {
	ID         string    `json:"id,omitempty"`
	Source     string    `json:"source,omitempty"`
	DetailType string    `json:"detail_type"`
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	ETag       string    `json:"etag,omitempty"`
	Size       *int64    `json:"size,omitempty"`
	Time       time.Time `json:"time,omitempty"`
}

type eventBridgeEnvelope struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Time       string          `json:"time"`
	Detail     json.RawMessage `json:"detail"`
	Records    json.RawMessage `json:"Records"`
}

type eventBridgeDetail struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key  string `json:"key"`
		Size *int64 `json:"size"`
		ETag string `json:"etag"`
	} `json:"object"`
}

type s3Record struct {
	EventSource string `json:"eventSource"`
	EventName   string `json:"eventName"`
	EventTime   string `json:"eventTime"`
	S3          struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key       string `json:"key"`
			Size      *int64 `json:"size"`
			ETag      string `json:"eTag"`
			Sequencer string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseEvent decodes an EventBridge event or an S3 notification into one or
// more Events.
func ParseEvent(data []byte) ([]Event, error) {
	var envelope eventBridgeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, services.Wrap(services.ErrValidation, "router", "parse event", "invalid JSON", err)
	}
	if len(envelope.Records) > 0 && string(envelope.Records) != "null" {
		return parseS3Records(envelope.Records)
	}
	if envelope.DetailType == "" && len(envelope.Detail) == 0 {
		return nil, services.Wrap(services.ErrValidation, "router", "parse event", "neither detail-type nor Records present", nil)
	}

	ev := Event{
		ID:         envelope.ID,
		Source:     envelope.Source,
		DetailType: envelope.DetailType,
		Time:       parseEventTime(envelope.Time),
	}
	if len(envelope.Detail) > 0 && string(envelope.Detail) != "null" {
		var detail eventBridgeDetail
		if err := json.Unmarshal(envelope.Detail, &detail); err != nil {
			return nil, services.Wrap(services.ErrValidation, "router", "parse event", "invalid detail", err)
		}
		ev.Bucket = detail.Bucket.Name
		ev.Key = detail.Object.Key
		ev.Size = detail.Object.Size
		ev.ETag = trimETag(detail.Object.ETag)
	}
	return []Event{ev}, nil
}

func parseS3Records(raw json.RawMessage) ([]Event, error) {
	var records []s3Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, services.Wrap(services.ErrValidation, "router", "parse event", "invalid Records", err)
	}
	if len(records) == 0 {
		return nil, services.Wrap(services.ErrValidation, "router", "parse event", "empty Records array", nil)
	}
	events := make([]Event, 0, len(records))
	for i, rec := range records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "router", "parse event", fmt.Sprintf("record %d key", i), err)
		}
		ev := Event{
			ID:         rec.S3.Object.Sequencer,
			DetailType: detailTypeForS3(rec.EventName),
			Bucket:     rec.S3.Bucket.Name,
			Key:        key,
			Size:       rec.S3.Object.Size,
			ETag:       trimETag(rec.S3.Object.ETag),
			Time:       parseEventTime(rec.EventTime),
		}
		if rec.EventSource == "aws:s3" {
			ev.Source = "aws.s3"
		} else {
			ev.Source = rec.EventSource
		}
		events = append(events, ev)
	}
	return events, nil
}

func detailTypeForS3(eventName string) string {
	if strings.HasPrefix(eventName, "ObjectCreated:") {
		return DetailTypeObjectCreated
	}
	return eventName
}

func trimETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), `"`)
}

func parseEventTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
