package livehttp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"faillog/internal/classifier"
	"faillog/internal/dispatch"
	"faillog/internal/host"
	"faillog/internal/logger"
	"faillog/internal/monitor"
	"faillog/internal/store/journal"
)

const (
	maxIngestBody  = 256 * 1024
	maxLogLineSize = 1024 * 1024
	defaultLimit   = 50
	maxLimit       = 500
)

// Router 暴露监控状态、故障记录、插件变量与宿主事件入口。
type Router struct {
	Monitor MonitorAPI
	Ingest  EventIngest
	Journal JournalReader
	Vars    VarsReader
	Queue   QueueReader
	Version VersionReader
	Hub     *Hub
	LogPath string

	limiter    *ingestLimiter
	authSecret string
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/events", r.handleEvents)
	group.GET("/vars", r.handleVars)
	auth := bearerAuth(r.authSecret)
	group.GET("/settings", auth, r.handleSettings)
	group.POST("/settings", auth, r.handleUpdateSetting)
	group.GET("/logs", r.handleLogs)
	if r.Ingest != nil {
		group.POST("/host/events", r.limiter.middleware(), auth, r.handleHostEvent)
	}
	if r.Hub != nil {
		group.GET("/ws", r.Hub.serve)
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := StatusResponse{Monitor: r.Monitor.Status()}
	if r.Queue != nil {
		stats := r.Queue.Stats()
		resp.Queue = &stats
	}
	if r.Version != nil {
		st := r.Version.Status()
		resp.Version = &st
	}
	if r.Hub != nil {
		resp.Clients = r.Hub.Clients()
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if proc, err := collectProcessStats(ctx); err == nil {
		resp.Process = proc
	} else {
		logger.Tracef(5, "[http] process stats unavailable: %v", err)
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleEvents(c *gin.Context) {
	limit := parseLimit(c.DefaultQuery("limit", ""), defaultLimit)
	kind := classifier.Kind(strings.TrimSpace(c.Query("kind")))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if r.Journal != nil {
		entries, err := r.Journal.Recent(ctx, journal.Query{Kind: kind, Limit: limit})
		if err != nil {
			logger.Errorf("[api] events list failed ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		counts, err := r.Journal.Count(ctx)
		if err != nil {
			logger.Warnf("[api] events count failed: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"source": "journal", "events": entries, "counts": counts})
		return
	}

	records, err := r.Monitor.Recent(ctx, maxLimit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	out := make([]dispatch.Record, 0, min(limit, len(records)))
	for _, rec := range records {
		if kind != "" && rec.Kind() != kind {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"source": "memory", "events": out})
}

func (r *Router) handleVars(c *gin.Context) {
	if r.Vars == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "变量表未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vars": r.Vars.All()})
}

func (r *Router) handleSettings(c *gin.Context) {
	vars, err := r.Monitor.Variables(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": vars})
}

func (r *Router) handleUpdateSetting(c *gin.Context) {
	var req SettingUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	vars, err := r.Monitor.UpdateSetting(c.Request.Context(), req.Name, req.Value)
	switch {
	case errors.Is(err, monitor.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "settings": vars})
		return
	}
	logger.Infof("[api] setting updated ip=%s name=%s", c.ClientIP(), req.Name)
	c.JSON(http.StatusOK, gin.H{"settings": vars})
}

func (r *Router) handleHostEvent(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
		return
	}
	name, err := r.Ingest.Handle(raw)
	switch {
	case errors.Is(err, host.ErrUnknownEvent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "event": name})
		return
	case err != nil:
		logger.Tracef(3, "[api] host event rejected ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "event": name})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event": name})
}

func (r *Router) handleLogs(c *gin.Context) {
	path := strings.TrimSpace(r.LogPath)
	if path == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置日志文件"})
		return
	}
	limit := parseLimit(c.DefaultQuery("limit", "200"), 200)
	lines, err := readLastLines(path, limit)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusOK, gin.H{"path": path, "lines": []string{}})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "path": path})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "lines": lines})
}

func parseLimit(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		n = def
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n
}

func readLastLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLogLineSize)
	lines := make([]string, 0, limit)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
