package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/workspace"
)

func registerViewportHandlers(api huma.API, svc Service) {
	type viewportOutput struct {
		Body workspace.ViewportInfo
	}
	type listOutput struct {
		Body struct {
			Viewports []workspace.ViewportInfo `json:"viewports"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-viewports", Method: http.MethodGet, Path: "/api/v1/viewports", Summary: "List mounted viewports", Tags: []string{"Viewports"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			out := &listOutput{}
			out.Body.Viewports = svc.List()
			return out, nil
		})

	type mountInput struct {
		Body workspace.MountSpec
	}
	huma.Register(api, huma.Operation{
		OperationID:   "mount-viewport",
		Method:        http.MethodPost,
		Path:          "/api/v1/viewports",
		Summary:       "Mount a viewport and catch it up from the last published state",
		Tags:          []string{"Viewports"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *mountInput) (*viewportOutput, error) {
		info, err := svc.Mount(ctx, input.Body)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &viewportOutput{}
		out.Body = info
		return out, nil
	})

	huma.Register(api, huma.Operation{OperationID: "get-viewport", Method: http.MethodGet, Path: "/api/v1/viewports/{id}", Summary: "Get a viewport", Tags: []string{"Viewports"}},
		func(ctx context.Context, input *viewportIDInput) (*viewportOutput, error) {
			info, err := svc.Get(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &viewportOutput{}
			out.Body = info
			return out, nil
		})

	huma.Register(api, huma.Operation{
		OperationID:   "unmount-viewport",
		Method:        http.MethodDelete,
		Path:          "/api/v1/viewports/{id}",
		Summary:       "Unmount a viewport",
		Tags:          []string{"Viewports"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *viewportIDInput) (*struct{}, error) {
		if err := svc.Unmount(input.ID); err != nil {
			return nil, mapErr(err)
		}
		return &struct{}{}, nil
	})
}
