package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vidflow/internal/services"
)

// ObjectPutter is the subset of the S3 client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes each dead letter as a JSON object under a key prefix,
// partitioned by UTC date.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Sink constructs an S3 dead-letter sink.
func NewS3Sink(client ObjectPutter, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: strings.TrimSpace(bucket), prefix: strings.Trim(strings.TrimSpace(prefix), "/")}
}

// Key returns the object key used for letter.
func (s *S3Sink) Key(letter Letter) string {
	return path.Join(s.prefix, letter.CreatedAt.UTC().Format("2006/01/02"), letter.ID+".json")
}

func (s *S3Sink) PutDeadLetter(ctx context.Context, letter Letter) error {
	if s.client == nil || s.bucket == "" {
		return services.Wrap(services.ErrConfiguration, "delivery", "s3 dead letter", "bucket not configured", nil)
	}
	body, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(letter)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "delivery", "s3 dead letter", "put object", err)
	}
	return nil
}
