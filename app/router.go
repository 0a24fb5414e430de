package app

import (
	"net/http"
	"time"

	"banana/storage-api/app/admin"
	"banana/storage-api/app/favorite"
	"banana/storage-api/app/file"
	"banana/storage-api/app/root"
	"banana/storage-api/app/user"
	"banana/storage-api/config"
	"banana/storage-api/internal"
	"banana/storage-api/pkg/middleware"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"

	// JSON routes other than uploads and favorites
	smallBodyLimit = 1 << 20
)

func NewRouter(cfg *config.Config, d *internal.Deps) *gin.Engine {
	router := gin.New()
	store := persist.NewMemoryStore(time.Minute)

	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORS,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS) == 0 {
		// Same origin only
		corsCfg.AllowOriginFunc = func(string) bool { return false }
	}

	router.Use(
		cors.New(corsCfg),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == http.MethodHead
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("username"); v != "" {
					fields = append(fields, zap.String("username", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	auth := middleware.NewAuthMiddleware(d.Secret)
	adminOnly := middleware.NewAdminMiddleware(d.Users.IsAdmin)
	rateLimiter := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.RateLimit * 2,
	})

	// Data URLs grow by a third over the raw bytes, a thumbnail rides along
	uploadLimit := middleware.BodySizeLimiter(cfg.MaxUploadSize*2 + smallBodyLimit)
	smallBody := middleware.BodySizeLimiter(smallBodyLimit)

	m := router.Group("/api", rateLimiter)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", root.Heartbeat)

		// GET /api/validate		-> Validates an auth token
		m.GET("/validate", auth, root.Validate)

		// GET /api/usage		-> Usage and quota, ?recompute=1 rebuilds the counters
		m.GET("/usage", auth, func(c *gin.Context) { user.UserUsage(c, d) })
	}

	u := m.Group("/auth", smallBody)
	{
		// POST /api/auth/register 	-> Registers a new user
		u.POST("/register", func(c *gin.Context) { user.UserRegister(c, d) })

		// POST /api/auth/login 	-> Logs in a user and sets the token cookie
		u.POST("/login", func(c *gin.Context) { user.UserLogin(c, d) })

		// POST /api/auth/logout 	-> Clears the token cookie
		u.POST("/logout", func(c *gin.Context) { user.UserLogout(c, d) })

		// GET /api/auth/me		-> Returns the logged in user with usage and quota
		u.GET("/me", auth, func(c *gin.Context) { user.UserFetch(c, d) })
	}

	a := m.Group("/admin", smallBody, auth, adminOnly)
	{
		// GET /api/admin/users		-> Lists every user
		a.GET("/users", func(c *gin.Context) { admin.AdminUsers(c, d) })

		// POST /api/admin/promote	-> Makes a user an admin
		a.POST("/promote", func(c *gin.Context) { admin.AdminPromote(c, d) })

		// PUT /api/admin/quota		-> Sets or clears a user's quota override
		a.PUT("/quota", func(c *gin.Context) { admin.AdminSetQuota(c, d) })
	}

	i := m.Group("/images", auth)
	{
		// GET /api/images/:kind		-> Lists uploaded or generated images
		i.GET("/:kind", func(c *gin.Context) { file.FileFetchBulk(c, d) })

		// POST /api/images/:kind		-> Stores an image sent as a data URL
		i.POST("/:kind", uploadLimit, func(c *gin.Context) { file.FileUpload(c, d) })

		// DELETE /api/images/:kind		-> Deletes every image of a kind
		i.DELETE("/:kind", func(c *gin.Context) { file.FileClear(c, d) })

		// DELETE /api/images/:kind/:name	-> Deletes a single image
		i.DELETE("/:kind/:name", func(c *gin.Context) { file.FileDelete(c, d) })
	}

	f := m.Group("/favorites", auth)
	{
		// GET /api/favorites/:type		-> Lists presets, chats or collections
		f.GET("/:type", func(c *gin.Context) { favorite.FavoriteList(c, d) })

		// POST /api/favorites/:type		-> Saves a favorite, storing its images
		f.POST("/:type", uploadLimit, func(c *gin.Context) { favorite.FavoriteSave(c, d) })

		// DELETE /api/favorites/:type/:id	-> Deletes a favorite and its images
		f.DELETE("/:type/:id", func(c *gin.Context) { favorite.FavoriteDelete(c, d) })
	}

	// GET /files/:username/*rel	-> Serves a stored file to its owner or an admin
	router.GET("/files/:username/*rel", func(c *gin.Context) { file.FileServe(c, d) })

	// Everything else is the front-end
	router.NoRoute(cacheFor(store, 60), func(c *gin.Context) { root.Static(c, d) })

	return router
}

// MakeLogger replaces the global zap logger
func MakeLogger(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(log)
	return nil
}

func cacheFor(store persist.CacheStore, sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}
