package cdc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"vidflow/internal/services"
)

// AttributeValue is a typed attribute from a change record image. Only the
// scalar forms the video table uses are decoded.
type AttributeValue struct {
	S    *string `json:"S,omitempty"`
	N    *string `json:"N,omitempty"`
	BOOL *bool   `json:"BOOL,omitempty"`
	NULL *bool   `json:"NULL,omitempty"`
}

// Image is a record image keyed by attribute name.
type Image map[string]AttributeValue

// String returns the string form of attribute name. N values are returned
// in their textual form.
func (img Image) String(name string) (string, bool) {
	attr, ok := img[name]
	if !ok {
		return "", false
	}
	switch {
	case attr.S != nil:
		return *attr.S, true
	case attr.N != nil:
		return *attr.N, true
	}
	return "", false
}

// Int returns attribute name parsed as an integer. Unparseable values
// report ok=false.
func (img Image) Int(name string) (int64, bool) {
	raw, ok := img.String(name)
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		// Decimal forms such as "12.5" truncate.
		f, ferr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if ferr != nil {
			return 0, false
		}
		return int64(f), true
	}
	return value, true
}

// Record is one change stream entry.
type Record struct {
	EventID        string
	EventName      string
	SequenceNumber string
	NewImage       Image
	OldImage       Image
}

// Image returns NewImage when present, otherwise OldImage.
func (r Record) Image() Image {
	if r.NewImage != nil {
		return r.NewImage
	}
	if r.OldImage != nil {
		return r.OldImage
	}
	return Image{}
}

type streamBatch struct {
	Records []streamRecord `json:"Records"`
}

type streamRecord struct {
	EventID   string `json:"eventID"`
	EventName string `json:"eventName"`
	DynamoDB  struct {
		SequenceNumber string `json:"SequenceNumber"`
		NewImage       Image  `json:"NewImage"`
		OldImage       Image  `json:"OldImage"`
	} `json:"dynamodb"`
}

// ParseStreamBatch decodes a DynamoDB stream event body.
func ParseStreamBatch(data []byte) ([]Record, error) {
	var batch streamBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, services.Wrap(services.ErrValidation, "cdc", "parse batch", "invalid change batch JSON", err)
	}
	if batch.Records == nil {
		return nil, services.Wrap(services.ErrValidation, "cdc", "parse batch", "missing Records", nil)
	}
	records := make([]Record, 0, len(batch.Records))
	for i, raw := range batch.Records {
		id := raw.EventID
		if id == "" {
			id = fmt.Sprintf("record-%d", i)
		}
		records = append(records, Record{
			EventID:        id,
			EventName:      raw.EventName,
			SequenceNumber: raw.DynamoDB.SequenceNumber,
			NewImage:       raw.DynamoDB.NewImage,
			OldImage:       raw.DynamoDB.OldImage,
		})
	}
	return records, nil
}
