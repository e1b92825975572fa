package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleet-history-backend/config"
	"fleet-history-backend/internal/db"
	"fleet-history-backend/internal/fleet"
	"fleet-history-backend/internal/mw"
	"fleet-history-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	db        *gorm.DB
	responses *mw.ResponseCache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	responses := mw.NewResponseCache(time.Minute)
	svc := fleet.NewService(
		store.NewGormStore(gdb, store.Options{}),
		store.NewCatalog(gdb, "en"),
		fleet.Options{EventCapacity: 100, Language: "en", OnChange: InvalidateMachine(responses)},
	)
	h := NewHandler(svc, gdb, &webpush.Options{VAPIDPublicKey: "public-key"})
	cfg := config.ServerConfig{UserIDHeader: "X-User-ID", RateLimitPerSec: 1000}
	return &testServer{router: NewRouter(cfg, h, responses, nil), db: gdb, responses: responses}
}

// do sends body as JSON on behalf of user; an empty user sends no header.
func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) registerMachine(t *testing.T, serial string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/machines", "owner-1", map[string]any{
		"serialNumber": serial,
		"brand":        "Volvo",
		"model":        "EC220",
		"specs":        map[string]any{"operatingHours": 0},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[machineResponse](t, w).ID
}
