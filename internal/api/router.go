package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/LJTian/TransitAlerts/internal/pipeline"
	"github.com/LJTian/TransitAlerts/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Trigger 手动触发与查询采集任务，nil 时相关接口不注册
type Trigger interface {
	RunOnce() (pipeline.Result, bool, error)
	Last() *pipeline.Result
}

type Server struct {
	store   storage.PostStore
	trigger Trigger
}

func NewServer(store storage.PostStore, trigger Trigger) *Server {
	return &Server{store: store, trigger: trigger}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/posts", s.listPosts)
		if s.trigger != nil {
			v1.GET("/runs/last", s.lastRun)
			v1.POST("/runs", s.triggerRun)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listPosts(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.store.Recent(c.Request.Context(), limit)
	if err != nil {
		zap.L().Error("list posts failed", zap.Error(err))
		internalError(c)
		return
	}
	if items == nil {
		items = []storage.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) lastRun(c *gin.Context) {
	last := s.trigger.Last()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "no completed run yet",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    last,
	})
}

func (s *Server) triggerRun(c *gin.Context) {
	res, ran, err := s.trigger.RunOnce()
	if !ran {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "busy",
			"message": "a collect job is already running",
		})
		return
	}
	if err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    res,
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

// BasicAuth 为整个站点增加一个简单的 Basic Auth 访问密码。
// /health 不做认证，便于健康检查。
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
