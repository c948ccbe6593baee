package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDefaultConfigs(t *testing.T) {
	t.Run("query config", func(t *testing.T) {
		cfg := DefaultQueryConfig()
		assert.Equal(t, float64(20), cfg.Rate)
		assert.Equal(t, 50, cfg.Burst)
		assert.Equal(t, time.Minute, cfg.CleanupInterval)
		assert.Equal(t, 5*time.Minute, cfg.MaxAge)
	})

	t.Run("trigger config is tighter than query config", func(t *testing.T) {
		trigger := DefaultTriggerConfig()
		query := DefaultQueryConfig()
		assert.Less(t, trigger.Rate, query.Rate)
		assert.Less(t, trigger.Burst, query.Burst)
	})
}

func TestNewAppliesDefaults(t *testing.T) {
	rl := New(Config{Rate: 10, Burst: 20})
	defer rl.Stop()

	assert.Equal(t, time.Minute, rl.config.CleanupInterval)
	assert.Equal(t, 5*time.Minute, rl.config.MaxAge)
}

func TestAllow(t *testing.T) {
	t.Run("allows requests within burst limit", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 5, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow("192.168.1.1"), "request %d should be allowed", i)
		}
		assert.False(t, rl.Allow("192.168.1.1"))
	})

	t.Run("different IPs have separate limits", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		rl.Allow("192.168.1.1")
		rl.Allow("192.168.1.1")
		assert.False(t, rl.Allow("192.168.1.1"))

		assert.True(t, rl.Allow("192.168.1.2"))
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		assert.True(t, rl.Allow("192.168.1.1"))
		assert.False(t, rl.Allow("192.168.1.1"))

		// 10 req/s means a token roughly every 100ms
		time.Sleep(150 * time.Millisecond)
		assert.True(t, rl.Allow("192.168.1.1"))
	})

	t.Run("tracks number of IPs", func(t *testing.T) {
		rl := New(Config{Rate: 10, Burst: 10, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		assert.Equal(t, 0, rl.Len())
		rl.Allow("192.168.1.1")
		rl.Allow("192.168.1.2")
		rl.Allow("192.168.1.1")
		assert.Equal(t, 2, rl.Len())
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("returns 429 when rate limited", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		router := gin.New()
		router.Use(rl.Middleware())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i)
		}

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "Rate limit exceeded")
	})
}

func TestCleanup(t *testing.T) {
	t.Run("removes stale entries", func(t *testing.T) {
		rl := New(Config{
			Rate:            10,
			Burst:           10,
			CleanupInterval: 50 * time.Millisecond,
			MaxAge:          100 * time.Millisecond,
		})
		defer rl.Stop()

		rl.Allow("192.168.1.1")
		rl.Allow("192.168.1.2")
		assert.Equal(t, 2, rl.Len())

		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, 0, rl.Len())
	})

	t.Run("keeps recently accessed entries", func(t *testing.T) {
		rl := New(Config{
			Rate:            10,
			Burst:           10,
			CleanupInterval: 50 * time.Millisecond,
			MaxAge:          200 * time.Millisecond,
		})
		defer rl.Stop()

		rl.Allow("192.168.1.1")
		for i := 0; i < 5; i++ {
			time.Sleep(50 * time.Millisecond)
			rl.Allow("192.168.1.1")
		}
		assert.Equal(t, 1, rl.Len())
	})
}

func TestConcurrency(t *testing.T) {
	rl := New(Config{Rate: 1000, Burst: 1000, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.Allow("192.168.1.1")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rl.Len())
}
