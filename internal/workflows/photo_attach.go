package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// DefaultTaskQueue is the queue the uploader worker polls.
const DefaultTaskQueue = "photo-attach-queue"

// PhotoAttachInput is the input for PhotoAttachWorkflow.
type PhotoAttachInput struct {
	MarkerID string
	PhotoRef string
}

// PhotoAttachWorkflow makes sure the marker is known to the worker, then
// uploads the photo and appends it to the marker. The upload activity is
// never retried automatically: running the workflow again is the retry.
func PhotoAttachWorkflow(ctx workflow.Context, input PhotoAttachInput) (domain.UploadTask, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting photo attach workflow", "markerID", input.MarkerID, "photoRef", input.PhotoRef)

	lookupCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeMarkerNotFound},
		},
	})
	if err := workflow.ExecuteActivity(lookupCtx, "EnsureMarker", input.MarkerID).Get(ctx, nil); err != nil {
		return domain.UploadTask{}, err
	}

	uploadCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	var task domain.UploadTask
	if err := workflow.ExecuteActivity(uploadCtx, "AttachPhoto", input.MarkerID, input.PhotoRef).Get(ctx, &task); err != nil {
		logger.Warn("photo attach failed", "markerID", input.MarkerID, "error", err)
		return domain.UploadTask{}, err
	}

	logger.Info("Photo attached", "markerID", input.MarkerID, "url", task.RemoteURL, "attempt", task.Attempt)
	return task, nil
}
