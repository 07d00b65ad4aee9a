package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"certline/internal/compliance"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/engine/auth"
	"certline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid status transition: pending -> completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"task_id\":\"task-p1-cert-1-30\"}"`
}

type bodyBytesKey struct{}

// apiError models the error envelope shared by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Certline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine.Config == nil {
		return nil, errors.New("engine has no tenant config")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Auth))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(data))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyBytesKey{}, data)))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Certline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	router.Handle("/metrics", cfg.Engine.Metrics.Handler())
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerCompliance(group, cfg.Engine)
	registerCertifications(group, cfg.Engine)
	registerOverrides(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	if cfg.Auth.AllowDevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			cfg.logger().Debug("http request", "method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "duration", time.Since(start))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	msg := err.Error()
	code := engine.ErrorCode(err)
	switch code {
	case "invalid_transition":
		return newAPIError(http.StatusConflict, code, msg, nil)
	case "stale_reference", "not_found":
		return newAPIError(http.StatusNotFound, code, msg, nil)
	case "invalid_date":
		return newAPIError(http.StatusBadRequest, code, msg, nil)
	case "unauthorized":
		return newAPIError(http.StatusUnauthorized, code, msg, nil)
	case "forbidden":
		var fe auth.ForbiddenError
		errors.As(err, &fe)
		return newAPIError(http.StatusForbidden, code, msg, map[string]any{"permission": fe.Permission})
	}
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "unknown role") || strings.Contains(lowered, "invalid") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// requirePermission admits the request when the token carries perm or the
// actor holds it through a stored role.
func requirePermission(ctx context.Context, e engine.Engine, perm string) (Principal, error) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return Principal{}, authErr
	}
	if hasPermission(principal.Permissions, perm) {
		return principal, nil
	}
	if err := e.Auth.Require(ctx, nil, e.TenantID(), principal.ActorID, perm); err != nil {
		return Principal{}, err
	}
	return principal, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Certline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List renewal tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" doc:"pending, in_progress or completed"`
		Priority   string `query:"priority" doc:"low, medium, high or critical"`
		Type       string `query:"type" doc:"reminder_90, reminder_60, reminder_30 or expired"`
		Department string `query:"department"`
	}) (*struct {
		Body engine.TaskList `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermTasksRead); err != nil {
			return nil, handleError(err)
		}
		filter := compliance.TaskFilter{
			Status:     domain.TaskStatus(input.Status),
			Priority:   domain.Priority(input.Priority),
			Type:       domain.TaskType(input.Type),
			Department: input.Department,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status filter", map[string]any{"status": input.Status})
		}
		list, err := e.Tasks(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		list.Tasks = nonNilSlice(list.Tasks)
		list.Departments = nonNilSlice(list.Departments)
		return &struct {
			Body engine.TaskList `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get one task",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermTasksRead); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Task(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Change a task status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		Body   SetTaskStatusRequest
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTaskStatus(ctx, input.TaskID, input.Body.Status, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/status",
		Summary:     "Change the status of several tasks",
		Description: "Each task is applied independently; failures are reported per item.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body BulkTaskStatusRequest
	}) (*struct {
		Body BulkTaskStatusResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		results, err := e.BulkSetTaskStatus(ctx, input.Body.TaskIDs, input.Body.Status, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BulkTaskStatusResponse `json:"body"`
		}{Body: bulkResponse(results)}, nil
	})
}

func registerCompliance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-compliance",
		Method:      http.MethodGet,
		Path:        "/compliance",
		Summary:     "Compliance records and fleet statistics",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Department string `query:"department"`
	}) (*struct {
		Body engine.ComplianceReport `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermComplianceRead); err != nil {
			return nil, handleError(err)
		}
		report, err := e.Compliance(ctx, input.Department)
		if err != nil {
			return nil, handleError(err)
		}
		report.Records = nonNilSlice(report.Records)
		report.Departments = nonNilSlice(report.Departments)
		return &struct {
			Body engine.ComplianceReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-person-compliance",
		Method:      http.MethodGet,
		Path:        "/compliance/{person_id}",
		Summary:     "Compliance record of one person",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PersonID string `path:"person_id"`
	}) (*struct {
		Body domain.ComplianceRecord `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermComplianceRead); err != nil {
			return nil, handleError(err)
		}
		rec, err := e.PersonCompliance(ctx, input.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ComplianceRecord `json:"body"`
		}{Body: rec}, nil
	})
}

func registerCertifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-certifications",
		Method:      http.MethodGet,
		Path:        "/certifications",
		Summary:     "List certifications with their current status",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		PersonID string `query:"person_id"`
	}) (*struct {
		Body CertificationsResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermComplianceRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Certifications(ctx, input.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CertificationsResponse `json:"body"`
		}{Body: CertificationsResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-certification-verification",
		Method:      http.MethodPut,
		Path:        "/certifications/{certification_id}/verification",
		Summary:     "Mark a certification as verified or unverified",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CertificationID string `path:"certification_id"`
		Body            VerificationRequest
	}) (*struct {
		Body domain.Certification `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SetCertificationVerified(ctx, input.CertificationID, input.Body.Verified, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Certification `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-certifications",
		Method:      http.MethodPost,
		Path:        "/certifications/import",
		Summary:     "Validate and import certification records",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ImportRequest
	}) (*struct {
		Body engine.ImportReport `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.ImportCertifications(ctx, input.Body.Records, input.Body.DryRun, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		report.Rows = nonNilSlice(report.Rows)
		return &struct {
			Body engine.ImportReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerOverrides(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "collect-overrides",
		Method:      http.MethodPost,
		Path:        "/overrides/collect",
		Summary:     "Drop overrides whose task is no longer derived",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CollectResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		removed, err := e.CollectStaleOverrides(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CollectResponse `json:"body"`
		}{Body: CollectResponse{Removed: nonNilSlice(removed)}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermEventsRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilter{
			TenantID:   e.TenantID(),
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-role-assignments",
		Method:      http.MethodGet,
		Path:        "/rbac/roles",
		Summary:     "List role assignments of the tenant",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []repo.RoleAssignment `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, auth.PermRolesManage); err != nil {
			return nil, handleError(err)
		}
		items, err := e.RoleAssignments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []repo.RoleAssignment `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/rbac/roles",
		Summary:     "Grant a role to an actor",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body repo.RoleAssignment
	}) (*struct {
		Body repo.RoleAssignment `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, input.Body.ActorID, input.Body.Role, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body repo.RoleAssignment `json:"body"`
		}{Body: input.Body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-role",
		Method:        http.MethodDelete,
		Path:          "/rbac/roles/{actor_id}/{role}",
		Summary:       "Revoke a role from an actor",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
		Role    string `path:"role"`
	}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.ActorID, input.Role, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles := principal.Roles
		perms := principal.Permissions
		if len(roles) == 0 {
			stored, err := e.Repo.ActorRoles(ctx, nil, e.TenantID(), principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			roles = stored
		}
		if len(perms) == 0 {
			stored, err := e.Auth.Permissions(ctx, nil, e.TenantID(), principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			perms = stored
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			TenantID:    e.TenantID(),
			Source:      principal.Source,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		ttl := time.Duration(input.Body.TTLMinutes) * time.Minute
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles, input.Body.Permissions, ttl)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
