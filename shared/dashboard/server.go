package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"seo-agent/internal/models"
	"seo-agent/shared/storage"
	"seo-agent/shared/update"
)

// Updater applies the metadata updates for one audit run. Satisfied by the
// agent; an interface so the server never depends on the YouTube client.
type Updater interface {
	ApplyAuditUpdates(ctx context.Context, runID int64, mode update.Mode, protectMain bool) (*models.UpdateResult, error)
}

// Server exposes the audit history over HTTP: a JSON API plus a small HTML
// overview page.
type Server struct {
	store   *storage.Store
	updater Updater
	port    string
	engine  *gin.Engine
}

func NewServer(store *storage.Store, updater Updater, port string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:   store,
		updater: updater,
		port:    port,
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/", s.index)
	r.GET("/favicon.ico", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group("/api")
	{
		api.GET("/runs", s.listRuns)
		api.GET("/runs/:id", s.getRun)
		api.POST("/runs/:id/update", s.applyUpdates)
		api.GET("/targets", s.listTargets)
	}

	s.engine = r
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	latest, err := s.store.LatestAuditRun()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	resp := gin.H{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)}
	if latest != nil {
		resp["latest_run_id"] = latest.ID
		resp["latest_run_at"] = latest.CreatedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := s.store.ListAuditRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := s.store.GetAuditRun(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("audit run %d not found", id)})
		return
	}
	items, err := s.store.ListAuditItems(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logs, err := s.store.ListUpdateLogs(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run, "items": items, "logs": logs})
}

func (s *Server) listTargets(c *gin.Context) {
	targets, err := s.store.ListMetadataTargets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

// applyUpdates triggers the update step for one run. Form posts from the HTML
// page set redirect=1 and land back on the overview with a flash message;
// API clients get the result as JSON.
func (s *Server) applyUpdates(c *gin.Context) {
	redirect := c.PostForm("redirect") == "1"

	fail := func(status int, msg string) {
		if redirect {
			c.Redirect(http.StatusSeeOther, "/?flash="+url.QueryEscape(msg))
			return
		}
		c.JSON(status, gin.H{"error": msg})
	}

	if s.updater == nil {
		fail(http.StatusServiceUnavailable, "updates are not available on this server")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(http.StatusBadRequest, "invalid run id")
		return
	}

	modeStr := c.DefaultPostForm("mode", string(update.ModeTargetAndHeuristic))
	mode, ok := update.ParseMode(modeStr)
	if !ok {
		fail(http.StatusBadRequest, fmt.Sprintf("invalid update mode %q", modeStr))
		return
	}
	protect := c.DefaultPostForm("protect_main", "1") != "0"

	result, err := s.updater.ApplyAuditUpdates(c.Request.Context(), id, mode, protect)
	if err != nil {
		fail(http.StatusInternalServerError, err.Error())
		return
	}

	if redirect {
		msg := fmt.Sprintf("run %d: %d updated, %d skipped, %d failed", id, result.Updated, result.Skipped, result.Failed)
		c.Redirect(http.StatusSeeOther, "/?flash="+url.QueryEscape(msg))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) index(c *gin.Context) {
	runs, err := s.store.ListAuditRuns(20)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to list runs: %v", err)
		return
	}
	targets, err := s.store.ListMetadataTargets()
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to list targets: %v", err)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	err = indexTemplate.Execute(c.Writer, gin.H{
		"Flash":   c.Query("flash"),
		"Runs":    runs,
		"Targets": len(targets),
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to render page: %v", err)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>SEO Agent</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 6px 12px; text-align: left; }
.flash { background: #fff3cd; border: 1px solid #ffe69c; padding: 8px 12px; margin-bottom: 1em; }
</style>
</head>
<body>
<h1>SEO Agent</h1>
{{if .Flash}}<div class="flash">{{.Flash}}</div>{{end}}
<p>{{.Targets}} metadata targets stored.</p>
<h2>Audit runs</h2>
<table>
<tr><th>ID</th><th>Channel</th><th>Created</th><th>Inspected</th><th>Needing fix</th><th></th></tr>
{{range .Runs}}
<tr>
<td><a href="/api/runs/{{.ID}}">{{.ID}}</a></td>
<td>{{.ChannelTitle}}</td>
<td>{{.CreatedAt.Format "2006-01-02 15:04"}}</td>
<td>{{.VideosInspected}}</td>
<td>{{.VideosNeedingFix}}</td>
<td>
<form method="post" action="/api/runs/{{.ID}}/update">
<input type="hidden" name="redirect" value="1">
<button type="submit">Apply updates</button>
</form>
</td>
</tr>
{{end}}
</table>
</body>
</html>
`))
