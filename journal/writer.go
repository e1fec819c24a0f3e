package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"investflow/workflow"
)

// ErrBufferFull is returned by Writer.Record when the queue is full.
var ErrBufferFull = errors.New("journal: buffer full")

const drainTimeout = 5 * time.Second

// Writer decouples the workflow event loop from database latency: Record only
// enqueues, Run delivers to the underlying sink in order.
type Writer struct {
	sink   workflow.Sink
	queue  chan workflow.Event
	logger *slog.Logger
}

// NewWriter buffers up to buffer events in front of sink.
func NewWriter(sink workflow.Sink, buffer int, logger *slog.Logger) *Writer {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		sink:   sink,
		queue:  make(chan workflow.Event, buffer),
		logger: logger.With("component", "journal"),
	}
}

// Record enqueues ev without blocking.
func (w *Writer) Record(_ context.Context, ev workflow.Event) error {
	select {
	case w.queue <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run delivers queued events until ctx is done, then drains what is already
// buffered within a short grace period.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-w.queue:
			w.deliver(ctx, ev)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			for {
				select {
				case ev := <-w.queue:
					w.deliver(drainCtx, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (w *Writer) deliver(ctx context.Context, ev workflow.Event) {
	if err := w.sink.Record(ctx, ev); err != nil {
		w.logger.Warn("journal event", "workflow_id", ev.WorkflowID, "type", ev.Type, "event_id", ev.ID, "error", err)
	}
}
