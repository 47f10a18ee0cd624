package chat

import (
	"context"
	"time"

	"github.com/visionchat/visionchat/imaging"
)

// uploadTick is the interval between synthesized progress events. The
// encode is local, so progress is cosmetic until the real result lands.
const uploadTick = 100 * time.Millisecond

// uploadTask encodes one image in the background, reporting progress and
// a terminal result on the events channel. Cancelling ctx stops the work;
// nothing is emitted after cancellation reaches the task.
type uploadTask struct {
	attachmentID string
	path         string
	encoder      *imaging.Encoder
	events       chan<- Event
	cancel       context.CancelFunc
}

func startUpload(ctx context.Context, id, path string, encoder *imaging.Encoder, events chan<- Event) *uploadTask {
	ctx, cancel := context.WithCancel(ctx)
	task := &uploadTask{
		attachmentID: id,
		path:         path,
		encoder:      encoder,
		events:       events,
		cancel:       cancel,
	}
	go task.run(ctx)
	return task
}

func (t *uploadTask) run(ctx context.Context) {
	type result struct {
		payload string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		payload, err := t.encoder.Encode(t.path)
		done <- result{payload: payload, err: err}
	}()

	ticker := time.NewTicker(uploadTick)
	defer ticker.Stop()

	// Tick progress up to 90% while the encode runs; the terminal
	// transition is always driven by the real encode result.
	progress := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if progress < 90 {
				progress += 10
				if !t.emit(ctx, Event{Type: EventUploadProgress, AttachmentID: t.attachmentID, Percent: progress}) {
					return
				}
			}
		case res := <-done:
			if res.err != nil {
				t.emit(ctx, Event{Type: EventUploadFailed, AttachmentID: t.attachmentID, Err: res.err.Error()})
				return
			}
			if !t.emit(ctx, Event{Type: EventUploadProgress, AttachmentID: t.attachmentID, Percent: 100}) {
				return
			}
			t.emit(ctx, Event{Type: EventUploadReady, AttachmentID: t.attachmentID, Percent: 100, Payload: res.payload})
			return
		}
	}
}

// emit delivers ev unless the task has been cancelled. Returns false when
// cancelled.
func (t *uploadTask) emit(ctx context.Context, ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
