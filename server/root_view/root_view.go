package root_view

import (
	"context"
	"html/template"

	"qmaze/maze"
	"qmaze/qtable"
	"qmaze/server/cell_views"
	"qmaze/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// RootView is the main page, the container for all of the view components and
// the wiring for their channels.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains. Every state
// received on stateUpdates refreshes all views.
func NewRootView(
	ctx context.Context,
	layout maze.Layout,
	stateUpdates <-chan qtable.State,
) (*RootView, error) {
	views, err := fastview.NewViewBuilder[qtable.State, [][]cell_views.Cell]().
		WithContext(ctx).
		WithModel(stateUpdates, cell_views.Converter(layout)).
		WithView(func(
			done <-chan struct{},
			cellUpdates <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValuesGrid(done, cellUpdates)
		}).
		WithView(func(
			done <-chan struct{},
			cellUpdates <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValueFunction(done, cellUpdates)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		updates: fanIn(ctx.Done(), views),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map that the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
			"max": func(i, j int) int {
				if i > j {
					return i
				}
				return j
			},
		})

	var body string
	for _, vc := range rv.views {
		var tname string
		if tname, err = vc.Parse(rt); err != nil {
			return
		}
		body += `{{ template "` + tname + `" . }}`
	}

	// The page opens a socket back to whatever host served it and applies each
	// pushed batch of element updates.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<title>qmaze</title>
			<link rel="icon" href="data:,">
			<style>
				body { font-family: sans-serif; }
				.legend span { display: inline-block; padding: 2px 8px; margin-right: 4px; }
			</style>
			<script>
				const scheme = window.location.protocol === "https:" ? "wss://" : "ws://";
				const ws = new WebSocket(scheme + window.location.host + "/ws");
				ws.onclose = (event) => {
					document.getElementById("status").textContent = "disconnected (" + event.code + ")";
				};
				ws.onopen = () => {
					document.getElementById("status").textContent = "live";
				};

				function applyUpdate(update) {
					const ele = document.getElementById(update.EleId);
					if (ele === null) {
						return;
					}
					for (const op of update.Ops) {
						if (op.Key === "textContent") {
							ele.textContent = op.Value;
						} else {
							ele.setAttribute(op.Key, op.Value);
						}
					}
				}

				ws.onmessage = (event) => JSON.parse(event.data).forEach(applyUpdate);
			</script>
		</head>
		<body>
			<h3>qmaze <small id="status">connecting</small></h3>
			<div class="legend">
				<span style="background: lightblue">start</span>
				<span style="background: lightyellow">goal</span>
				<span style="background: lightgreen">wall</span>
				<span style="background: lightgray">open</span>
			</div>
			` + body + `
		</body>
	</html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}

// fanIn merges the views' update channels. Batching happens per client, where
// updates that arrive faster than the page is refreshed are coalesced.
func fanIn(
	done <-chan struct{},
	views []fastview.ViewComponent,
) <-chan []fastview.EleUpdate {
	inputs := make([]<-chan []fastview.EleUpdate, 0, len(views))
	for _, view := range views {
		inputs = append(inputs, view.Updates())
	}
	return channerics.Merge(done, inputs...)
}
