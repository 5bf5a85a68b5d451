package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/fieldpins/internal/core/domain"
	"github.com/samirrijal/fieldpins/internal/core/usecases"
)

// Application error types returned by the activities.
const (
	ErrTypeMarkerNotFound = "MarkerNotFound"
	ErrTypeUploadFailed   = "UploadFailed"
)

// PhotoActivities holds the activity implementations for PhotoAttachWorkflow.
type PhotoActivities struct {
	Markers *usecases.MarkerSyncEngine
	Uploads *usecases.PhotoUploadPipeline
	Log     *slog.Logger
}

func (a *PhotoActivities) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

// EnsureMarker reloads the marker collection when the marker is not in the
// worker's session view yet.
func (a *PhotoActivities) EnsureMarker(ctx context.Context, markerID string) error {
	if _, err := a.Markers.Marker(markerID); err == nil {
		return nil
	}
	if err := a.Markers.LoadAll(ctx); err != nil {
		return fmt.Errorf("load markers: %w", err)
	}
	if _, err := a.Markers.Marker(markerID); err != nil {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeMarkerNotFound, err)
	}
	return nil
}

// AttachPhoto enqueues the upload and waits for it to finish, heartbeating
// the task progress while it runs.
func (a *PhotoActivities) AttachPhoto(ctx context.Context, markerID, photoRef string) (domain.UploadTask, error) {
	task, started := a.Uploads.Enqueue(ctx, markerID, photoRef)
	a.logger().Info("photo attach activity", "marker_id", markerID, "photo_ref", photoRef,
		"attempt", task.Attempt, "coalesced", !started)

	done := make(chan struct{})
	defer close(done)
	go a.heartbeat(ctx, markerID, photoRef, done)

	task, err := a.Uploads.Wait(ctx, markerID, photoRef)
	if err != nil {
		return domain.UploadTask{}, err
	}
	if task.Status == domain.UploadFailed {
		return task, temporal.NewNonRetryableApplicationError(task.Error, ErrTypeUploadFailed, taskErr(task))
	}
	return task, nil
}

func (a *PhotoActivities) heartbeat(ctx context.Context, markerID, photoRef string, done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if t, ok := a.Uploads.Task(markerID, photoRef); ok {
				activity.RecordHeartbeat(ctx, t.Status, t.Progress)
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func taskErr(t domain.UploadTask) error {
	if t.Err != nil {
		return t.Err
	}
	return errors.New(t.Error)
}
