package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procwise/procwise/pkg/models"
	"github.com/procwise/procwise/pkg/performers"
	"github.com/procwise/procwise/pkg/persistence/memory"
	"github.com/procwise/procwise/pkg/services"
	"github.com/procwise/procwise/pkg/validation"
	"github.com/procwise/procwise/pkg/web"
	"github.com/procwise/procwise/pkg/workflow"
)

type testEnv struct {
	app       *fiber.App
	templates *services.TemplateService
	workflows *services.WorkflowService
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persist := memory.NewPersistence()

	directory := performers.NewMemoryDirectory()
	directory.PutUser(performers.User{ID: "alice", Email: "alice@example.com", IsActive: true})
	directory.PutUser(performers.User{ID: "bob", Email: "bob@example.com", IsActive: true})

	snapshotChecker, err := validation.NewValidator()
	require.NoError(t, err)

	executor := workflow.NewExecutor(workflow.Dependencies{
		Persistence: persist,
		Directory:   directory,
		Logger:      logger,
	})

	templates := services.NewTemplateService(persist, snapshotChecker, nil, logger)
	workflows := services.NewWorkflowService(persist, executor, nil, nil, logger)
	versions := services.NewVersionService(persist, executor, nil, nil, logger)

	handlers := web.NewAPIHandlers(templates, workflows, versions, executor, persist, snapshotChecker)

	app := fiber.New()
	handlers.Register(app)

	return &testEnv{app: app, templates: templates, workflows: workflows}
}

func onboardingTemplate() *models.Template {
	return &models.Template{
		Name: "Onboarding",
		Kickoff: models.KickoffTemplate{
			Fields: []*models.FieldTemplate{
				{APIName: "employee", Name: "Employee", Type: models.FieldTypeString, IsRequired: true},
			},
		},
		Tasks: []*models.TaskTemplate{
			{
				APIName: "prepare", Number: 1, Name: "Prepare",
				RawPerformers: []*models.RawPerformer{{Type: models.PerformerTypeUser, SourceID: "alice"}},
			},
			{
				APIName: "equip", Number: 2, Name: "Equip",
				RawPerformers: []*models.RawPerformer{{Type: models.PerformerTypeUser, SourceID: "bob"}},
			},
		},
	}
}

func (env *testEnv) request(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()

	var body bytes.Buffer

	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.app.Test(req)
	require.NoError(t, err)

	return resp
}

func (env *testEnv) savedTemplate(t *testing.T) *models.Template {
	t.Helper()

	saved, err := env.templates.Save(context.Background(), onboardingTemplate())
	require.NoError(t, err)

	return saved
}

func (env *testEnv) runWorkflow(t *testing.T, templateID string) *models.Workflow {
	t.Helper()

	resp := env.request(t, http.MethodPost, "/v1/workflows", web.RunWorkflowRequest{
		TemplateID: templateID,
		KickoffValues: map[string]models.FieldValue{
			"employee": models.TextValue(models.FieldTypeString, "Dana"),
		},
	})

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var wf models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&wf))

	return &wf
}

func TestRunWorkflowEndpoint(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)

	wf := env.runWorkflow(t, saved.ID)

	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, models.WorkflowStatusRunning, wf.Status)
	assert.Equal(t, 1, wf.CurrentTask)
	assert.Len(t, wf.Tasks, 2)
}

func TestRunWorkflowValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		payload        any
		expectedStatus int
	}{
		{
			name:           "missing template id",
			payload:        web.RunWorkflowRequest{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown template",
			payload:        web.RunWorkflowRequest{TemplateID: "nope"},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid JSON",
			payload:        "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			resp := env.request(t, http.MethodPost, "/v1/workflows", tt.payload)

			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestRunWorkflowMissingKickoffValue(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)

	resp := env.request(t, http.MethodPost, "/v1/workflows", web.RunWorkflowRequest{
		TemplateID: saved.ID,
	})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompleteTaskEndpoint(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)
	wf := env.runWorkflow(t, saved.ID)

	resp := env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/tasks/prepare/complete",
		web.CompleteTaskRequest{UserID: "alice"})

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, 2, updated.CurrentTask)
}

func TestCompleteTaskByStranger(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)
	wf := env.runWorkflow(t, saved.ID)

	resp := env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/tasks/prepare/complete",
		web.CompleteTaskRequest{UserID: "mallory"})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestForceDelayAndResumeEndpoints(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)
	wf := env.runWorkflow(t, saved.ID)

	resp := env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/force-delay",
		web.ForceDelayRequest{Duration: "72h"})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/force-resume", nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Resuming a running workflow conflicts.
	resp = env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/force-resume", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestForceDelayRejectsBadDuration(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)
	wf := env.runWorkflow(t, saved.ID)

	resp := env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/force-delay",
		web.ForceDelayRequest{Duration: "-5m"})

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReturnToTaskEndpoint(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)
	wf := env.runWorkflow(t, saved.ID)

	resp := env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/tasks/prepare/complete",
		web.CompleteTaskRequest{UserID: "alice"})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/return/prepare", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, 1, updated.CurrentTask)

	// Returning forward is invalid.
	resp = env.request(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/return/equip", nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTerminateWorkflowEndpoint(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)
	wf := env.runWorkflow(t, saved.ID)

	resp := env.request(t, http.MethodDelete, "/v1/workflows/"+wf.ID, nil)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/v1/workflows/"+wf.ID, nil)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveTemplateEndpoint(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodPost, "/v1/templates", onboardingTemplate())

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var saved models.Template
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 1, saved.Version)

	resp = env.request(t, http.MethodPut, "/v1/templates/"+saved.ID, &saved)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var again models.Template
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&again))
	assert.Equal(t, 2, again.Version)
}

func TestSaveTemplateRejectsBrokenSnapshot(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	template := onboardingTemplate()
	template.Tasks[1].APIName = "prepare"

	resp := env.request(t, http.MethodPost, "/v1/templates", template)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconcileTemplateEndpoint(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	saved := env.savedTemplate(t)
	wf := env.runWorkflow(t, saved.ID)

	saved.Tasks = append(saved.Tasks, &models.TaskTemplate{
		APIName: "welcome", Number: 3, Name: "Welcome",
		RawPerformers: []*models.RawPerformer{{Type: models.PerformerTypeUser, SourceID: "bob"}},
	})

	resp := env.request(t, http.MethodPut, "/v1/templates/"+saved.ID, saved)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/v1/templates/"+saved.ID+"/reconcile", nil)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Reconciled int `json:"reconciled"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Reconciled)

	getResp := env.request(t, http.MethodGet, "/v1/workflows/"+wf.ID, nil)

	defer func() { _ = getResp.Body.Close() }()

	var updated models.Workflow
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&updated))
	assert.Equal(t, 2, updated.TemplateVersion)
	assert.Equal(t, 3, updated.TasksCount)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/health", nil)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
