package router

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vidflow/internal/services"
)

// HeadObjectAPI is the subset of the S3 client the inspector needs.
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Inspector reads etag and size with HeadObject.
type S3Inspector struct {
	client HeadObjectAPI
}

// NewS3Inspector constructs an inspector over client.
func NewS3Inspector(client HeadObjectAPI) *S3Inspector {
	return &S3Inspector{client: client}
}

func (i *S3Inspector) Inspect(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := i.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, services.Wrap(services.ErrExternalTool, "router", "head object", bucket+"/"+key, err)
	}
	info := ObjectInfo{Size: out.ContentLength}
	if out.ETag != nil {
		info.ETag = strings.Trim(*out.ETag, `"`)
	}
	return info, nil
}
