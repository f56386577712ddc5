package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/cdpcontrol"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/relay"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewport"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/viewsync"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/workspace"
)

type Service interface {
	Mount(ctx context.Context, spec workspace.MountSpec) (workspace.ViewportInfo, error)
	Unmount(id string) error
	List() []workspace.ViewportInfo
	Get(id string) (workspace.ViewportInfo, error)
	Pan(id string, bars float64) (viewport.RangeResult, error)
	Zoom(id string, x float64, direction string) (viewport.RangeResult, error)
	Wheel(id string, x, deltaX, deltaY float64, deltaMode int) (viewport.RangeResult, bool, error)
	ScrollTo(id string, from, to float64) (viewport.RangeResult, error)
	Hover(id string, x, price float64) (*viewsync.CrosshairPosition, uint64, error)
	SetCrosshair(id string, t time.Time, value float64) (*viewsync.CrosshairPosition, uint64, error)
	Leave(id string) (uint64, error)
	BeginInteraction(id string) error
	EndInteraction(id string) (bool, error)
	SyncState() workspace.SyncState
}

// Options adds the non-JSON endpoints. Nil fields leave them unrouted.
type Options struct {
	Broker   *relay.Broker
	Gatherer prometheus.Gatherer
}

type viewportIDInput struct {
	ID string `path:"id" doc:"Viewport id"`
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("viewsyncd API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/sync", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(syncDocsHTML)); err != nil {
			slog.Debug("sync docs response write failed", "error", err)
		}
	})
	if opts.Broker != nil {
		router.Get("/api/v1/sync/events", relay.SSEHandler(opts.Broker))
	}
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	registerHealthHandlers(api)
	registerViewportHandlers(api, svc)
	registerInteractionHandlers(api, svc)
	registerSyncHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeChartNotFound, cdpcontrol.CodeViewportNotFound:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeViewportExists:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeAPIUnavailable, cdpcontrol.CodeCDPUnavailable, cdpcontrol.CodeWidgetUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
