package receiver

import "context"

// Observer is notified of run progress from the receive goroutine. Calls must
// return quickly, they are on the streaming path.
type Observer interface {
	OnRunStart(ctx context.Context, info RunInfo)
	OnMeasurementStart(ctx context.Context, info MeasurementInfo)
	OnChunk(ctx context.Context, info ChunkInfo)
	OnMeasurementEnd(ctx context.Context, m *MeasurementResult)
	OnRunEnd(ctx context.Context, r *RunResult)
}

// BaseObserver implements Observer with no-ops, embed it to handle a subset of events
type BaseObserver struct{}

func (BaseObserver) OnRunStart(context.Context, RunInfo) {}
func (BaseObserver) OnMeasurementStart(context.Context, MeasurementInfo) {}
func (BaseObserver) OnChunk(context.Context, ChunkInfo) {}
func (BaseObserver) OnMeasurementEnd(context.Context, *MeasurementResult) {}
func (BaseObserver) OnRunEnd(context.Context, *RunResult) {}

type observers []Observer

func (o observers) runStart(ctx context.Context, info RunInfo) {
	for _, obs := range o {
		obs.OnRunStart(ctx, info)
	}
}

func (o observers) measurementStart(ctx context.Context, info MeasurementInfo) {
	for _, obs := range o {
		obs.OnMeasurementStart(ctx, info)
	}
}

func (o observers) chunk(ctx context.Context, info ChunkInfo) {
	for _, obs := range o {
		obs.OnChunk(ctx, info)
	}
}

func (o observers) measurementEnd(ctx context.Context, m *MeasurementResult) {
	for _, obs := range o {
		obs.OnMeasurementEnd(ctx, m)
	}
}

func (o observers) runEnd(ctx context.Context, r *RunResult) {
	for _, obs := range o {
		obs.OnRunEnd(ctx, r)
	}
}
