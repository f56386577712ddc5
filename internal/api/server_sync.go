package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/workspace"
)

func registerSyncHandlers(api huma.API, svc Service) {
	type syncOutput struct {
		Body workspace.SyncState
	}
	huma.Register(api, huma.Operation{OperationID: "get-sync-state", Method: http.MethodGet, Path: "/api/v1/sync", Summary: "Last published range and crosshair, leader and registered viewports", Tags: []string{"Sync"}},
		func(ctx context.Context, input *struct{}) (*syncOutput, error) {
			out := &syncOutput{}
			out.Body = svc.SyncState()
			return out, nil
		})
}
