package workflow

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"investflow/stage"
)

const meterName = "investflow/workflow"

type metrics struct {
	stagesCompleted   metric.Int64Counter
	guardRejections   metric.Int64Counter
	sessionsCancelled metric.Int64Counter
	sessionsFailed    metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m   metrics
		err error
	)
	m.stagesCompleted, err = meter.Int64Counter("investflow.stages.completed",
		metric.WithDescription("Onboarding stages completed"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, err
	}
	m.guardRejections, err = meter.Int64Counter("investflow.guard.rejections",
		metric.WithDescription("Actions rejected because the stage was not eligible"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}
	m.sessionsCancelled, err = meter.Int64Counter("investflow.sessions.cancelled",
		metric.WithDescription("Sub-workflow sessions cancelled by the investor"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}
	m.sessionsFailed, err = meter.Int64Counter("investflow.sessions.failed",
		metric.WithDescription("Sub-workflow sessions ended by a terminal failure"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func stageAttr(id stage.ID) metric.AddOption {
	return metric.WithAttributes(attribute.String("investflow.stage", string(id)))
}

func (m *metrics) stageCompleted(ctx context.Context, id stage.ID) {
	m.stagesCompleted.Add(ctx, 1, stageAttr(id))
}

func (m *metrics) guardRejected(ctx context.Context, id stage.ID) {
	m.guardRejections.Add(ctx, 1, stageAttr(id))
}

func (m *metrics) sessionCancelled(ctx context.Context, id stage.ID) {
	m.sessionsCancelled.Add(ctx, 1, stageAttr(id))
}

func (m *metrics) sessionFailed(ctx context.Context, id stage.ID) {
	m.sessionsFailed.Add(ctx, 1, stageAttr(id))
}
