package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/auth"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/annel0/chunk-engine/internal/world"
	"github.com/gin-gonic/gin"
)

// commandTimeout сколько ждать ближайшего тика владельца
const commandTimeout = 5 * time.Second

// WorldCommander мир, принимающий команды для цикла-владельца.
// Методы с токеном вызываются только внутри команды.
type WorldCommander interface {
	Do(ctx context.Context, cmd world.Command) error
	SaveAll(o *access.Owner) int
	SetInteractive(o *access.Owner, interactive bool)
	SetBlock(o *access.Owner, p vec.Vec3, id uint32) error
}

// InteractiveRequest тело POST /api/admin/interactive
type InteractiveRequest struct {
	Enabled bool `json:"enabled"`
}

// BlockRequest тело POST /api/admin/blocks
type BlockRequest struct {
	X  int    `json:"x"`
	Y  int    `json:"y"`
	Z  int    `json:"z"`
	ID uint32 `json:"id"`
}

func (rs *RestServer) setupAdminRoutes() {
	if rs.signer == nil || rs.commander == nil {
		return
	}
	admin := rs.router.Group("/api/admin", rs.requireAdmin)
	{
		admin.POST("/save", rs.handleSave)
		admin.POST("/interactive", rs.handleInteractive)
		admin.POST("/blocks", rs.handleSetBlock)
	}
}

// requireAdmin пропускает запросы с токеном администратора в заголовке Authorization
func (rs *RestServer) requireAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header {
		c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
			Success: false,
			Message: "Требуется заголовок Authorization: Bearer <token>",
		})
		return
	}

	claims, err := rs.signer.RequireAdmin(token)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrNotAdmin) {
			status = http.StatusForbidden
		}
		c.AbortWithStatusJSON(status, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}
	c.Set("operator", claims.Operator)
	c.Next()
}

// command выполняет cmd на цикле-владельце и отвечает 503, если мир не успел
func (rs *RestServer) command(c *gin.Context, cmd world.Command) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	if err := rs.commander.Do(ctx, cmd); err != nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return false
	}
	return true
}

// handleSave запрашивает сохранение всех изменённых чанков
func (rs *RestServer) handleSave(c *gin.Context) {
	var requested int
	if !rs.command(c, func(o *access.Owner) { requested = rs.commander.SaveAll(o) }) {
		return
	}
	rs.logger.Info("Оператор %s запросил сохранение: %d чанков", c.GetString("operator"), requested)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Сохранение запрошено",
		Data:    gin.H{"requested": requested},
	})
}

// handleInteractive переключает интерактивный режим
func (rs *RestServer) handleInteractive(c *gin.Context) {
	var req InteractiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}
	if !rs.command(c, func(o *access.Owner) { rs.commander.SetInteractive(o, req.Enabled) }) {
		return
	}
	rs.logger.Info("Оператор %s: интерактивный режим=%v", c.GetString("operator"), req.Enabled)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Режим изменён",
		Data:    req,
	})
}

// handleSetBlock меняет блок в активном чанке
func (rs *RestServer) handleSetBlock(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	var setErr error
	pos := vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}
	if !rs.command(c, func(o *access.Owner) { setErr = rs.commander.SetBlock(o, pos, req.ID) }) {
		return
	}
	if setErr != nil {
		status := http.StatusInternalServerError
		if errors.Is(setErr, world.ErrChunkNotActive) {
			status = http.StatusConflict
		}
		c.JSON(status, GenericResponse{
			Success: false,
			Message: setErr.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блок изменён",
		Data:    req,
	})
}
