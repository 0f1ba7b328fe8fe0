// Package router turns object storage upload events into pipeline executions.
//
// ParseEvent accepts both the EventBridge "Object Created" envelope and the
// S3 bucket notification Records shape. A Rule decides whether an event
// starts a pipeline: the detail type must be "Object Created", the source
// aws.s3 when one is present, the bucket must equal the configured bucket,
// and the key must end in one of the allowed suffixes. All comparisons are
// exact and case-sensitive. Matching events start exactly one execution each;
// there is no deduplication and no per-key serialization.
package router
