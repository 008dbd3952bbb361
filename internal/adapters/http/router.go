package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/webconf/multicam/internal/app"
	"github.com/webconf/multicam/internal/config"
	"github.com/webconf/multicam/internal/domain"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type addCameraRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	Label    string `json:"label"`
}

// SetupRouter builds the local control API over the conference session.
func SetupRouter(cfg *config.Config, conf *app.Conference) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MulticamSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "conference": conf.ID(), "user": conf.UserName()})
	})

	api := r.Group("/api")

	api.GET("/sources", func(c *gin.Context) {
		c.JSON(http.StatusOK, conf.Sources())
	})

	api.POST("/cameras", func(c *gin.Context) {
		var req addCameraRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := conf.Cameras.Publish(c.Request.Context(), domain.DeviceID(req.DeviceID), req.Label)
		switch {
		case errors.Is(err, app.ErrDeviceInUse):
			c.JSON(http.StatusConflict, gin.H{"error": "device already published"})
		case errors.Is(err, app.ErrNotJoined):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "conference not joined"})
		case err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusCreated, gin.H{"deviceId": req.DeviceID})
		}
	})

	api.DELETE("/cameras/:deviceId", func(c *gin.Context) {
		device := domain.DeviceID(c.Param("deviceId"))
		if !conf.Cameras.Unpublish(device) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/screen/toggle", func(c *gin.Context) {
		active, err := conf.Screen.Toggle(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"active": active})
	})

	api.GET("/technical-users", func(c *gin.Context) {
		entries := conf.Registry.Snapshot()
		out := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			out = append(out, gin.H{
				"name":    e.Name,
				"trackId": e.TrackID,
				"device":  e.Device,
				"label":   e.Label,
				"order":   e.Order,
				"state":   e.Session.State().String(),
			})
		}
		c.JSON(http.StatusOK, out)
	})

	api.GET("/roster", func(c *gin.Context) {
		owners := conf.Roster.Owners()
		out := make([]gin.H, 0, len(owners))
		for _, owner := range owners {
			out = append(out, gin.H{"owner": owner, "count": conf.Roster.Count(owner)})
		}
		c.JSON(http.StatusOK, out)
	})

	api.GET("/stage", func(c *gin.Context) {
		regions := conf.Stage.Regions()
		out := make([]gin.H, 0, len(regions))
		for _, region := range regions {
			tiles := region.Tiles()
			tl := make([]gin.H, 0, len(tiles))
			for _, t := range tiles {
				tl = append(tl, gin.H{"trackId": t.TrackID(), "ordinal": t.Ordinal(), "label": t.Label()})
			}
			grid := conf.Orders.GridFor(region.Owner())
			out = append(out, gin.H{
				"owner":       region.Owner(),
				"placeholder": region.ShowingPlaceholder(),
				"rows":        grid.Rows,
				"cols":        grid.Cols,
				"tiles":       tl,
			})
		}
		c.JSON(http.StatusOK, out)
	})

	return r
}
