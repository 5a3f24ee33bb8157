package fastview

import (
	"context"
	"errors"

	channerics "github.com/niceyeti/channerics/channels"
)

var (
	ErrNoViews = errors.New("no views to build: WithView must be called")
	ErrNoModel = errors.New("no model specified: WithModel must be called")
)

// ViewBuilderFunc builds one view from the shared view-model stream. done closes
// when the builder's context ends.
type ViewBuilderFunc[ViewModel any] func(done <-chan struct{}, models <-chan ViewModel) ViewComponent

// ViewBuilder wires a stream of data models, e.g. training snapshots, through a
// single conversion into a view-model that every view then receives a copy of.
// The conversion runs once per item no matter how many views there are.
type ViewBuilder[DataModel any, ViewModel any] struct {
	source  <-chan DataModel
	convert func(DataModel) ViewModel
	views   []ViewBuilderFunc[ViewModel]
	done    <-chan struct{} // nil never closes
}

func NewViewBuilder[DataModel any, ViewModel any]() *ViewBuilder[DataModel, ViewModel] {
	return &ViewBuilder[DataModel, ViewModel]{}
}

// WithModel sets the data source and its conversion to the view-model.
func (vb *ViewBuilder[DataModel, ViewModel]) WithModel(
	source <-chan DataModel,
	convert func(DataModel) ViewModel,
) *ViewBuilder[DataModel, ViewModel] {
	vb.source, vb.convert = source, convert
	return vb
}

// WithView appends a view. Build returns views in the order they were added.
func (vb *ViewBuilder[DataModel, ViewModel]) WithView(
	build ViewBuilderFunc[ViewModel],
) *ViewBuilder[DataModel, ViewModel] {
	vb.views = append(vb.views, build)
	return vb
}

// WithContext tears the pipeline down when ctx ends.
func (vb *ViewBuilder[DataModel, ViewModel]) WithContext(
	ctx context.Context,
) *ViewBuilder[DataModel, ViewModel] {
	vb.done = ctx.Done()
	return vb
}

// Build starts the conversion and fan-out goroutines and builds each view on its
// own branch. A slow view holds up the others, so views must keep draining.
func (vb *ViewBuilder[DataModel, ViewModel]) Build() ([]ViewComponent, error) {
	if len(vb.views) == 0 {
		return nil, ErrNoViews
	}
	if vb.convert == nil || vb.source == nil {
		return nil, ErrNoModel
	}

	models := channerics.Convert(vb.done, vb.source, vb.convert)
	branches := channerics.Broadcast(vb.done, models, len(vb.views))

	built := make([]ViewComponent, len(vb.views))
	for i, build := range vb.views {
		built[i] = build(vb.done, branches[i])
	}
	return built, nil
}
