//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"replicator/internal/api"
	"replicator/internal/dispatcher"
	"replicator/internal/health"
	"replicator/internal/job"
	dockerprov "replicator/internal/provisioner/docker"
	"replicator/internal/reconciler"
	"replicator/internal/store/dynamo"
)

// getTestURL returns the base URL for e2e tests.
// If E2E_API_URL is set, tests run against that instance. Otherwise a test
// server is wired against the configured AWS endpoint (AWS_ENDPOINT_URL
// pointing at moto or LocalStack, JOBS_TABLE pre-created) and the local
// Docker daemon as the provisioner backend.
func getTestURL(t *testing.T) (string, func()) {
	if url := os.Getenv("E2E_API_URL"); url != "" {
		t.Logf("Using external API: %s", url)
		return url, func() {}
	}

	if os.Getenv("AWS_ENDPOINT_URL") == "" {
		t.Skip("Set E2E_API_URL or AWS_ENDPOINT_URL to run e2e tests")
	}

	server, cleanup := createTestServer(t)
	return server.URL, cleanup
}

func createTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	ctx := context.Background()

	store, err := dynamo.New(ctx)
	if err != nil {
		t.Fatalf("Failed to create job store: %v", err)
	}

	provisioner, err := dockerprov.New(dockerprov.WorkerConfig{
		Image: envOr("WORKER_IMAGE", "alpine:latest"),
	})
	if err != nil {
		t.Fatalf("Failed to create docker provisioner: %v", err)
	}

	eventDispatcher := dispatcher.NewMemory(dispatcher.MemoryConfig{
		BufferSize: 100,
		Workers:    2,
	}, nil)

	svc := job.NewService(store, provisioner, nil, eventDispatcher)
	sweeper := reconciler.New(store, provisioner, nil, eventDispatcher, reconciler.Config{})

	router := api.NewRouter(api.RouterConfig{
		JobService: svc,
		HealthChecker: health.NewChecker(map[string]health.ReadinessChecker{
			"store":       store,
			"provisioner": provisioner,
		}),
		Sweeper: sweeper,
	})

	server := httptest.NewServer(router)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eventDispatcher.Close(ctx)
		server.Close()
	}

	return server, cleanup
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestAPI_Livez(t *testing.T) {
	baseURL, cleanup := getTestURL(t)
	defer cleanup()

	resp, err := http.Get(baseURL + "/livez")
	if err != nil {
		t.Fatalf("Liveness check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestAPI_Readyz(t *testing.T) {
	baseURL, cleanup := getTestURL(t)
	defer cleanup()

	resp, err := http.Get(baseURL + "/readyz")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var result health.Response
	json.NewDecoder(resp.Body).Decode(&result)

	if result.Status != health.StatusHealthy {
		t.Errorf("Expected healthy status, got %s", result.Status)
	}
}

func TestAPI_SubmitAndGetJob(t *testing.T) {
	baseURL, cleanup := getTestURL(t)
	defer cleanup()

	reqBody := map[string]any{
		"command":    "replicate",
		"source_url": "s3://e2e-src/data",
		"target_url": "s3://e2e-dst/data",
		"options":    map[string]any{"bandwidth_mbps": 10},
	}
	body, _ := json.Marshal(reqBody)

	resp, err := http.Post(baseURL+"/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}

	var sub job.Submission
	json.NewDecoder(resp.Body).Decode(&sub)
	if sub.JobID == "" {
		t.Fatal("Expected a job_id")
	}
	if sub.Status != job.StateProvisioning {
		t.Errorf("Expected provisioning, got %q", sub.Status)
	}

	// The record must be immediately queryable.
	getResp, err := http.Get(baseURL + "/v1/jobs/" + sub.JobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer getResp.Body.Close()

	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", getResp.StatusCode)
	}

	var view job.StatusView
	json.NewDecoder(getResp.Body).Decode(&view)
	if view.JobID != sub.JobID {
		t.Errorf("Expected job %s, got %s", sub.JobID, view.JobID)
	}
	if view.CreatedAt.IsZero() {
		t.Error("Expected created_at in status")
	}
}

func TestAPI_GetUnknownJob(t *testing.T) {
	baseURL, cleanup := getTestURL(t)
	defer cleanup()

	resp, err := http.Get(baseURL + "/v1/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestAPI_SubmitValidationError(t *testing.T) {
	baseURL, cleanup := getTestURL(t)
	defer cleanup()

	body := []byte(`{"command": "replicate"}`)
	resp, err := http.Post(baseURL+"/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestAPI_Sweep(t *testing.T) {
	baseURL, cleanup := getTestURL(t)
	defer cleanup()

	resp, err := http.Post(baseURL+"/internal/sweep", "application/json", nil)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var result reconciler.Result
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Scanned < 0 || result.Cleaned < 0 {
		t.Errorf("Unexpected sweep result: %+v", result)
	}
}
