package cdc_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vidflow/internal/cdc"
	"vidflow/internal/delivery"
	"vidflow/internal/services"
	"vidflow/internal/testsupport"
)

type fakeDownstream struct {
	mu            sync.Mutex
	videos        []cdc.VideoInput
	notifications []cdc.NotificationInput
	videoErr      error
	notifyErr     error
}

func (f *fakeDownstream) CreateVideo(_ context.Context, input cdc.VideoInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videos = append(f.videos, input)
	if f.videoErr != nil {
		return "", f.videoErr
	}
	return "video-" + input.ID, nil
}

func (f *fakeDownstream) CreateVideoNotification(_ context.Context, input cdc.NotificationInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, input)
	if f.notifyErr != nil {
		return "", f.notifyErr
	}
	return "note-" + input.ID, nil
}

var fixedNow = time.Date(2026, 10, 14, 12, 30, 0, 0, time.UTC)

func newNotifier(t *testing.T, downstream cdc.Downstream, opts ...cdc.Option) *cdc.Notifier {
	t.Helper()
	counter := 0
	base := []cdc.Option{
		cdc.WithClock(func() time.Time { return fixedNow }),
		cdc.WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("uuid-%d", counter)
		}),
	}
	return cdc.New(downstream, append(base, opts...)...)
}

func TestClassifyIsTotal(t *testing.T) {
	cases := map[string]cdc.MutationKind{
		"INSERT": cdc.MutationCreate,
		"MODIFY": cdc.MutationUpdate,
		"REMOVE": cdc.MutationDelete,
		"":       cdc.MutationUnknown,
		"insert": cdc.MutationUnknown,
		"TTL":    cdc.MutationUnknown,
	}
	for name, want := range cases {
		if got := cdc.Classify(name); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestDefaultPolicySuppressesUpdateOnly(t *testing.T) {
	policy := cdc.DefaultPolicy()
	for _, kind := range cdc.MutationKinds {
		want := kind != cdc.MutationUpdate
		if policy.Notifies(kind) != want {
			t.Fatalf("Notifies(%s) = %v, want %v", kind, !want, want)
		}
	}
}

func TestPolicyFromActionsRejectsUnknown(t *testing.T) {
	if _, err := cdc.PolicyFromActions([]string{"CREATE", "UPSERT"}); err == nil {
		t.Fatal("expected error for unknown action")
	}
	policy, err := cdc.PolicyFromActions([]string{"update"})
	if err != nil {
		t.Fatalf("PolicyFromActions returned error: %v", err)
	}
	if !policy.Notifies(cdc.MutationUpdate) || policy.Notifies(cdc.MutationCreate) {
		t.Fatalf("unexpected policy kinds %v", policy.Kinds())
	}
}

func TestFieldTableDefaults(t *testing.T) {
	values := cdc.VideoFields.Extract(cdc.Image{}, cdc.Env{Now: fixedNow, NewID: func() string { return "generated" }})
	video := cdc.BuildVideoInput(values, fixedNow)

	if video.ID != "generated" {
		t.Fatalf("expected generated id, got %q", video.ID)
	}
	if video.Category != "Unknown" {
		t.Fatalf("expected Unknown category, got %q", video.Category)
	}
	if video.TotalViews != 0 {
		t.Fatalf("expected zero views, got %d", video.TotalViews)
	}
	if video.VideoID != "" || video.Title != "" || video.Description != "" || video.Key != "" || video.ETag != "" {
		t.Fatalf("expected empty strings, got %+v", video)
	}
	want := "2026-10-14T12:30:00.000Z"
	if video.CreatedAt != want || video.LastModified != want || video.UpdatedAt != want {
		t.Fatalf("expected timestamps %q, got %+v", want, video)
	}
}

func TestFieldTableUnparseableNumberDefaultsToZero(t *testing.T) {
	bad := "lots"
	img := cdc.Image{"totalViews": {N: &bad}}
	values := cdc.VideoFields.Extract(img, cdc.Env{Now: fixedNow})
	if values.Int("totalViews") != 0 {
		t.Fatalf("expected 0, got %d", values.Int("totalViews"))
	}
}

func TestInsertSendsVideoAndNotification(t *testing.T) {
	downstream := &fakeDownstream{}
	n := newNotifier(t, downstream)

	records, err := cdc.ParseStreamBatch(testsupport.StreamBatch(t, testsupport.Record{
		EventName: "INSERT",
		NewImage:  testsupport.VideoImage("v1"),
	}))
	if err != nil {
		t.Fatalf("ParseStreamBatch returned error: %v", err)
	}
	result := n.HandleBatch(context.Background(), records)
	if result.Failures != 0 {
		t.Fatalf("expected no failures, got %+v", result)
	}
	if len(downstream.videos) != 1 || len(downstream.notifications) != 1 {
		t.Fatalf("expected one of each call, got %d videos %d notifications", len(downstream.videos), len(downstream.notifications))
	}
	video := downstream.videos[0]
	if video.ID != "row-v1" || video.VideoID != "v1" || video.Key != "v1" || video.ETag != "etag-v1" || video.TotalViews != 42 {
		t.Fatalf("unexpected video input %+v", video)
	}
	if video.CreatedAt != "2024-01-02T03:04:05Z" {
		t.Fatalf("expected stored createdAt, got %q", video.CreatedAt)
	}
	note := downstream.notifications[0]
	if note.Action != cdc.MutationCreate || note.VideoID != "v1" || note.ID == video.ID {
		t.Fatalf("unexpected notification %+v", note)
	}
	if note.UpdatedAt != video.UpdatedAt || note.CreatedAt != video.CreatedAt {
		t.Fatalf("expected notification timestamps to mirror video, got %+v", note)
	}
	if result.Records[0].Notification == nil || result.Records[0].Notification.ID == "" {
		t.Fatalf("expected notification id in outcome, got %+v", result.Records[0])
	}
}

func TestModifyIsSuppressed(t *testing.T) {
	downstream := &fakeDownstream{}
	n := newNotifier(t, downstream)

	records, err := cdc.ParseStreamBatch(testsupport.StreamBatch(t, testsupport.Record{
		EventName: "MODIFY",
		NewImage:  testsupport.VideoImage("v2"),
		OldImage:  testsupport.VideoImage("old"),
	}))
	if err != nil {
		t.Fatalf("ParseStreamBatch returned error: %v", err)
	}
	outcome := n.HandleRecord(context.Background(), records[0])
	if outcome.Notification != nil {
		t.Fatalf("expected no notification for UPDATE, got %+v", outcome.Notification)
	}
	if len(downstream.videos) != 1 || downstream.videos[0].VideoID != "v2" {
		t.Fatalf("expected video from NewImage, got %+v", downstream.videos)
	}
	if len(downstream.notifications) != 0 {
		t.Fatalf("expected no notification calls, got %d", len(downstream.notifications))
	}
}

func TestRemoveUsesOldImage(t *testing.T) {
	downstream := &fakeDownstream{}
	n := newNotifier(t, downstream)

	records, err := cdc.ParseStreamBatch(testsupport.StreamBatch(t, testsupport.Record{
		EventName: "REMOVE",
		OldImage:  testsupport.VideoImage("gone"),
	}))
	if err != nil {
		t.Fatalf("ParseStreamBatch returned error: %v", err)
	}
	outcome := n.HandleRecord(context.Background(), records[0])
	if outcome.Action != cdc.MutationDelete || outcome.VideoID != "gone" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(downstream.notifications) != 1 || downstream.notifications[0].Action != cdc.MutationDelete {
		t.Fatalf("expected DELETE notification, got %+v", downstream.notifications)
	}
	if downstream.notifications[0].Title != "Title gone" {
		t.Fatalf("expected notification title from OldImage, got %q", downstream.notifications[0].Title)
	}
}

func TestEmptyNewImageIsNotReplacedByOldImage(t *testing.T) {
	records, err := cdc.ParseStreamBatch([]byte(`{"Records":[{"eventID":"e1","eventName":"MODIFY",` +
		`"dynamodb":{"NewImage":{},"OldImage":{"videoId":{"S":"old"}}}}]}`))
	if err != nil {
		t.Fatalf("ParseStreamBatch returned error: %v", err)
	}
	image := records[0].Image()
	if image == nil || len(image) != 0 {
		t.Fatalf("expected the empty NewImage, got %+v", image)
	}

	old := "old"
	onlyOld := cdc.Record{OldImage: cdc.Image{"videoId": {S: &old}}}
	if id, _ := onlyOld.Image().String("videoId"); id != "old" {
		t.Fatalf("expected OldImage when NewImage is absent, got %q", id)
	}
}

func TestCallsAreIndependent(t *testing.T) {
	downstream := &fakeDownstream{videoErr: services.Wrap(services.ErrExternalTool, "appsync", "createVideo", "boom", nil)}
	n := newNotifier(t, downstream)

	outcome := n.HandleRecord(context.Background(), cdc.Record{EventID: "e1", EventName: "INSERT"})
	if outcome.Video.Succeeded() {
		t.Fatal("expected createVideo failure")
	}
	if outcome.Notification == nil || !outcome.Notification.Succeeded() {
		t.Fatalf("expected notification to proceed, got %+v", outcome.Notification)
	}
	if !outcome.Failed() {
		t.Fatal("expected outcome to be marked failed")
	}
}

func TestBatchContinuesPastFailures(t *testing.T) {
	downstream := &fakeDownstream{notifyErr: errors.New("unavailable")}
	var (
		mu    sync.Mutex
		calls = map[string]int{}
	)
	n := newNotifier(t, downstream, cdc.WithCallObserver(func(op string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			calls[op+":error"]++
		} else {
			calls[op+":ok"]++
		}
	}))

	result, err := n.HandleRaw(context.Background(), testsupport.StreamBatch(t,
		testsupport.Record{EventName: "INSERT", NewImage: testsupport.VideoImage("a")},
		testsupport.Record{EventName: "MODIFY", NewImage: testsupport.VideoImage("b")},
		testsupport.Record{EventName: "REMOVE", OldImage: testsupport.VideoImage("c")},
	))
	if err != nil {
		t.Fatalf("HandleRaw returned error: %v", err)
	}
	if len(result.Records) != 3 {
		t.Fatalf("expected every record consumed, got %d", len(result.Records))
	}
	if result.Failures != 2 {
		t.Fatalf("expected two failing records, got %d", result.Failures)
	}
	if calls["createVideo:ok"] != 3 || calls["createVideoNotification:error"] != 2 {
		t.Fatalf("unexpected call counts %v", calls)
	}
}

type countingStrategy struct {
	ops []string
}

func (c *countingStrategy) Deliver(ctx context.Context, attempt delivery.Attempt) error {
	c.ops = append(c.ops, attempt.Operation+"/"+attempt.RecordID)
	return attempt.Call(ctx)
}

func TestStrategyWrapsEveryCall(t *testing.T) {
	strategy := &countingStrategy{}
	n := newNotifier(t, &fakeDownstream{}, cdc.WithStrategy(strategy))

	n.HandleRecord(context.Background(), cdc.Record{EventID: "e9", EventName: "INSERT"})
	if len(strategy.ops) != 2 || strategy.ops[0] != "createVideo/e9" || strategy.ops[1] != "createVideoNotification/e9" {
		t.Fatalf("unexpected deliveries %v", strategy.ops)
	}
}

func TestParseStreamBatchRejectsInvalid(t *testing.T) {
	for _, body := range []string{"nope", "{}"} {
		if _, err := cdc.ParseStreamBatch([]byte(body)); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", body, err)
		}
	}
}
