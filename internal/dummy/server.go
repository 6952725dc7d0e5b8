// Package dummy is an in-memory REST document store speaking the protocol of
// the rest backend. It exists so that runs can be tried without a database.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docstress/internal/store"
)

type ServerConfig struct {
	Port int
	// Latency is the mean delay added to every write, with +/-50% jitter.
	Latency time.Duration
	// FailRate is the fraction of writes answered with a 500.
	FailRate float64
	// Accounts enables basic auth on the /db routes.
	Accounts gin.Accounts
	Logger   *slog.Logger
}

type Server struct {
	cfg ServerConfig

	mu          sync.RWMutex
	collections map[string][]store.Doc
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:         cfg,
		collections: make(map[string][]store.Doc),
	}
}

// Handler builds the router:
//
//	GET    /ping
//	POST   /db/:db/:collection        insert one document, answers its _id
//	DELETE /db/:db/:collection        drop the collection
//	GET    /db/:db/:collection        NDJSON stream of every document
//	GET    /db/:db/:collection/count
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.cfg.Logger.Debug("dummy.request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)),
		)
	})

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	db := r.Group("/db")
	if len(s.cfg.Accounts) > 0 {
		db.Use(gin.BasicAuth(s.cfg.Accounts))
	}
	{
		db.POST("/:db/:collection", s.insert)
		db.DELETE("/:db/:collection", s.drop)
		db.GET("/:db/:collection", s.find)
		db.GET("/:db/:collection/count", s.count)
	}

	return r
}

func key(c *gin.Context) string {
	return c.Param("db") + "." + c.Param("collection")
}

func (s *Server) insert(c *gin.Context) {
	s.delay()

	if s.cfg.FailRate > 0 && rand.Float64() < s.cfg.FailRate {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var doc store.Doc
	if err := json.Unmarshal(body, &doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	doc = append(store.Doc{{Key: "_id", Value: id}}, doc...)

	s.mu.Lock()
	s.collections[key(c)] = append(s.collections[key(c)], doc)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"_id": id})
}

func (s *Server) drop(c *gin.Context) {
	s.mu.Lock()
	delete(s.collections, key(c))
	s.mu.Unlock()

	c.Status(http.StatusNoContent)
}

func (s *Server) find(c *gin.Context) {
	s.mu.RLock()
	docs := append([]store.Doc(nil), s.collections[key(c)]...)
	s.mu.RUnlock()

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			s.cfg.Logger.Warn("dummy.stream", slog.String("error", err.Error()))
			return
		}
	}
}

func (s *Server) count(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": s.Count(c.Param("db"), c.Param("collection"))})
}

// Count returns the number of documents in db.collection.
func (s *Server) Count(db, collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[db+"."+collection])
}

func (s *Server) delay() {
	if s.cfg.Latency <= 0 {
		return
	}
	half := int64(s.cfg.Latency / 2)
	jitter := time.Duration(half + rand.Int63n(2*half+1))
	time.Sleep(jitter)
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.cfg.Logger.Info("dummy.listen", slog.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
