package sync

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// minReportYear is the first season with online orders.
const minReportYear = 2017

// requireAuth wraps a handler function to require authentication
func requireAuth(handler func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if e.Auth == nil {
			return apis.NewUnauthorizedError("Authentication required", nil)
		}
		return handler(e)
	}
}

// RegisterRoutes mounts the report API and the scheduling webhooks.
func RegisterRoutes(e *core.ServeEvent, svc *Services) {
	// POST /api/custom/reports/run?source=all|squarespace|stripe|nonrenewed&year=2024
	e.Router.POST("/api/custom/reports/run", requireAuth(func(e *core.RequestEvent) error {
		return handleRun(e, svc.Scheduler)
	}))

	e.Router.GET("/api/custom/reports/status", requireAuth(func(e *core.RequestEvent) error {
		return handleStatus(e, svc.Scheduler)
	}))

	e.Router.GET("/api/custom/reports/workbooks", requireAuth(func(e *core.RequestEvent) error {
		return handleWorkbooks(e, svc.Workbooks)
	}))

	e.Router.GET("/api/custom/metrics", requireAuth(apis.WrapStdHandler(svc.Metrics.Handler())))

	// Webhooks authenticate by signature, not by PocketBase auth.
	e.Router.Any("/hooks/{path...}", apis.WrapStdHandler(http.StripPrefix("/hooks", svc.Webhooks.Routes())))
}

// parseRunRequest reads the source and year of a manual run. The year
// defaults to the current one.
func parseRunRequest(q url.Values, currentYear int) (string, int, error) {
	source := strings.ToLower(strings.TrimSpace(q.Get("source")))
	if source == "" {
		source = SourceAll
	}
	if !ValidSource(source) {
		return "", 0, fmt.Errorf("unknown source %q", source)
	}

	year := currentYear
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < minReportYear || y > currentYear+1 {
			return "", 0, fmt.Errorf("invalid year %q. Must be between %d and %d", v, minReportYear, currentYear+1)
		}
		year = y
	}
	return source, year, nil
}

func disabled(e *core.RequestEvent) error {
	return e.JSON(http.StatusServiceUnavailable, map[string]interface{}{
		"error": "Google Sheets publishing is disabled",
	})
}

func handleRun(e *core.RequestEvent, scheduler *Scheduler) error {
	if scheduler == nil {
		return disabled(e)
	}
	source, year, err := parseRunRequest(e.Request.URL.Query(), time.Now().Year())
	if err != nil {
		return e.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := scheduler.Trigger(source, year); err != nil {
		if errors.Is(err, ErrBusy) {
			return e.JSON(http.StatusConflict, map[string]interface{}{
				"error": err.Error(),
			})
		}
		return e.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	return e.JSON(http.StatusAccepted, map[string]interface{}{
		"status": "started",
		"source": source,
		"year":   year,
	})
}

func handleStatus(e *core.RequestEvent, scheduler *Scheduler) error {
	if scheduler == nil {
		return disabled(e)
	}
	status := map[string]interface{}{
		"running": scheduler.IsRunning(),
	}
	if last := scheduler.LastSummary(); last != nil {
		status["last"] = last
		status["exit_code"] = last.ExitCode()
	}
	return e.JSON(http.StatusOK, status)
}

func handleWorkbooks(e *core.RequestEvent, workbooks *WorkbookRegistry) error {
	list, err := workbooks.ListWorkbooks()
	if err != nil {
		return e.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to list workbooks",
		})
	}
	return e.JSON(http.StatusOK, map[string]interface{}{
		"workbooks": list,
	})
}
