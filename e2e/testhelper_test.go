package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/whisperplaud/api/internal/bus"
	"github.com/whisperplaud/api/internal/handler"
	"github.com/whisperplaud/api/internal/middleware"
	"github.com/whisperplaud/api/internal/service"
	"github.com/whisperplaud/api/internal/storage"
	"github.com/whisperplaud/api/internal/store"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testAdminUser = "admin"
	testPassword  = "correct horse battery staple"
)

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	store   *store.Memory
	bus     *bus.MemoryBus
	objects *storage.MemoryStore
}

// setupApp builds a Fiber app wired like cmd/server but with in-memory
// collaborators, so tests need no Redis, Postgres or MinIO.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := store.NewMemory()
	mb := bus.NewMemoryBus()
	objects := storage.NewMemoryStore("test-bucket")

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test password: %v", err)
	}

	jobService := service.NewJobService(db, mb, 5*time.Minute)
	uploadService := service.NewUploadService(db, objects, jobService, 500*1024*1024, 15*time.Minute)
	transcriptService := service.NewTranscriptService(objects)
	authService := service.NewAuthService(testAdminUser, string(hash), testJWTSecret, 24)
	streamServer := service.NewStreamServer(db, 20*time.Millisecond, time.Minute)

	validate := validator.New()

	authHandler := handler.NewAuthHandler(authService, validate)
	fileHandler := handler.NewFileHandler(uploadService, validate)
	jobHandler := handler.NewJobHandler(jobService, streamServer)
	transcriptHandler := handler.NewTranscriptHandler(transcriptService)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/api/auth/login", authHandler.Login)

	api := app.Group("/api", authMiddleware.Authenticate())

	files := api.Group("/files")
	files.Post("/upload", fileHandler.PrepareUpload)
	files.Patch("/upload", fileHandler.CompleteUpload)
	files.Get("/", fileHandler.List)
	files.Delete("/:id", fileHandler.Delete)

	jobs := api.Group("/jobs")
	jobs.Get("/", jobHandler.List)
	jobs.Get("/:id", jobHandler.Get)
	jobs.Get("/:id/events", jobHandler.Events)

	api.Get("/transcripts/:fileId", transcriptHandler.Get)

	return &testApp{app: app, store: db, bus: mb, objects: objects}
}

// generateToken creates a JWT for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"userId": testAdminUser,
		"iss":    "whisperplaud-api",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest performs an HTTP request against the test app.
func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", body, err)
	}
	return result
}
