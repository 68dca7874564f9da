package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFieldsAccumulates(t *testing.T) {
	ctx := context.Background()
	ctx = WithFields(ctx, Field{"a", 1})
	ctx = WithFields(ctx, Field{"b", "two"})

	fields := getObservabilityFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Key)
	assert.Equal(t, "b", fields[1].Key)
}

func TestWithFieldsEmptyContext(t *testing.T) {
	assert.Nil(t, getObservabilityFields(context.Background()))
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := NewLogger()

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMiddlewarePreservesExistingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := NewLogger()

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-fixed", w.Header().Get("X-Request-ID"))
}

func TestMiddlewareRecoversFromPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := NewLogger()

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/boom", func(c *gin.Context) {
		panic("unexpected")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
