package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/cdpcontrol"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewport"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
)

func registerInteractionHandlers(api huma.API, svc Service) {
	type rangeOutput struct {
		Body viewport.RangeResult
	}

	type panInput struct {
		ID   string `path:"id"`
		Body struct {
			Bars float64 `json:"bars" doc:"Bars to shift by; positive moves towards newer bars"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "pan-viewport", Method: http.MethodPost, Path: "/api/v1/viewports/{id}/pan", Summary: "Pan a viewport and sync the others", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *panInput) (*rangeOutput, error) {
			res, err := svc.Pan(input.ID, input.Body.Bars)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &rangeOutput{}
			out.Body = res
			return out, nil
		})

	type zoomInput struct {
		ID   string `path:"id"`
		Body struct {
			X         float64 `json:"x" doc:"Cursor pixel the zoom is anchored at"`
			Direction string  `json:"direction" enum:"in,out"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "zoom-viewport", Method: http.MethodPost, Path: "/api/v1/viewports/{id}/zoom", Summary: "Zoom one step anchored at a pixel", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *zoomInput) (*rangeOutput, error) {
			res, err := svc.Zoom(input.ID, input.Body.X, input.Body.Direction)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &rangeOutput{}
			out.Body = res
			return out, nil
		})

	type wheelInput struct {
		ID   string `path:"id"`
		Body struct {
			X         float64 `json:"x" doc:"Cursor pixel"`
			DeltaX    float64 `json:"delta_x,omitempty"`
			DeltaY    float64 `json:"delta_y,omitempty" doc:"Positive scrolls down (zoom out)"`
			DeltaMode int     `json:"delta_mode,omitempty" doc:"0 pixels, 1 lines, 2 pages"`
		}
	}
	type wheelOutput struct {
		Body struct {
			Handled bool                  `json:"handled" doc:"False for horizontal scrolls, which pan natively"`
			Result  *viewport.RangeResult `json:"result,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "wheel-viewport", Method: http.MethodPost, Path: "/api/v1/viewports/{id}/wheel", Summary: "Feed a wheel event to a viewport", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *wheelInput) (*wheelOutput, error) {
			res, handled, err := svc.Wheel(input.ID, input.Body.X, input.Body.DeltaX, input.Body.DeltaY, input.Body.DeltaMode)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &wheelOutput{}
			out.Body.Handled = handled
			if handled {
				out.Body.Result = &res
			}
			return out, nil
		})

	type rangeInput struct {
		ID   string `path:"id"`
		Body viewsync.ViewRange
	}
	huma.Register(api, huma.Operation{OperationID: "scroll-viewport", Method: http.MethodPost, Path: "/api/v1/viewports/{id}/range", Summary: "Show an exact logical range", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *rangeInput) (*rangeOutput, error) {
			res, err := svc.ScrollTo(input.ID, input.Body.From, input.Body.To)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &rangeOutput{}
			out.Body = res
			return out, nil
		})

	type crosshairInput struct {
		ID   string `path:"id"`
		Body struct {
			X     *float64   `json:"x,omitempty" doc:"Cursor pixel; the crosshair snaps to the bar under it"`
			Price float64    `json:"price,omitempty" doc:"Cursor price, used with x"`
			Time  *time.Time `json:"time,omitempty" doc:"Explicit crosshair time; takes precedence over x"`
			Value float64    `json:"value,omitempty" doc:"Crosshair value, used with time"`
		}
	}
	type crosshairOutput struct {
		Body struct {
			Crosshair *viewsync.CrosshairPosition `json:"crosshair"`
			Seq       uint64                      `json:"seq"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "move-crosshair", Method: http.MethodPost, Path: "/api/v1/viewports/{id}/crosshair", Summary: "Move the crosshair and sync the others", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *crosshairInput) (*crosshairOutput, error) {
			var (
				pos *viewsync.CrosshairPosition
				seq uint64
				err error
			)
			switch {
			case input.Body.Time != nil:
				pos, seq, err = svc.SetCrosshair(input.ID, *input.Body.Time, input.Body.Value)
			case input.Body.X != nil:
				pos, seq, err = svc.Hover(input.ID, *input.Body.X, input.Body.Price)
			default:
				err = &cdpcontrol.CodedError{Code: cdpcontrol.CodeValidation, Message: "x or time is required"}
			}
			if err != nil {
				return nil, mapErr(err)
			}
			out := &crosshairOutput{}
			out.Body.Crosshair = pos
			out.Body.Seq = seq
			return out, nil
		})

	type seqOutput struct {
		Body struct {
			Seq uint64 `json:"seq"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "clear-crosshair", Method: http.MethodDelete, Path: "/api/v1/viewports/{id}/crosshair", Summary: "Clear the crosshair everywhere", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *viewportIDInput) (*seqOutput, error) {
			seq, err := svc.Leave(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &seqOutput{}
			out.Body.Seq = seq
			return out, nil
		})

	type leaderOutput struct {
		Body struct {
			ViewportID string `json:"viewport_id"`
			Leader     bool   `json:"leader"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "begin-interaction", Method: http.MethodPost, Path: "/api/v1/viewports/{id}/leader", Summary: "Take the leader token", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *viewportIDInput) (*leaderOutput, error) {
			if err := svc.BeginInteraction(input.ID); err != nil {
				return nil, mapErr(err)
			}
			out := &leaderOutput{}
			out.Body.ViewportID = input.ID
			out.Body.Leader = true
			return out, nil
		})

	type releaseOutput struct {
		Body struct {
			Released bool `json:"released"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "end-interaction", Method: http.MethodDelete, Path: "/api/v1/viewports/{id}/leader", Summary: "Release the leader token", Tags: []string{"Interaction"}},
		func(ctx context.Context, input *viewportIDInput) (*releaseOutput, error) {
			released, err := svc.EndInteraction(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &releaseOutput{}
			out.Body.Released = released
			return out, nil
		})
}
