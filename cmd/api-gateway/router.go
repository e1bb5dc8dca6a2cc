package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sortify-api/api/swagger"
	"github.com/noah-isme/sortify-api/internal/middleware"
	"github.com/noah-isme/sortify-api/internal/models"
	"github.com/noah-isme/sortify-api/pkg/config"
	"github.com/noah-isme/sortify-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sortify-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sortify-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, logr *zap.Logger, app *application) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, accountField))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics, "/metrics", "/health", "/ready"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", app.metricsHandler.Health)
	r.GET("/ready", app.metricsHandler.Ready)
	r.GET("/metrics", app.metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authenticated := middleware.JWT(app.identity)
	admin := middleware.RequireAdmin()

	auth := api.Group("/auth")
	auth.POST("/nonce", app.authHandler.Nonce)
	auth.POST("/connect", app.authHandler.Connect)
	auth.POST("/disconnect", authenticated, app.authHandler.Disconnect)
	auth.GET("/me", authenticated, app.authHandler.Me)

	api.GET("/rates", app.rateHandler.List)
	api.PUT("/rates/:wasteType", authenticated, admin, app.rateHandler.Update)
	api.POST("/rewards/estimate", app.collectionHandler.Estimate)

	// Evidence links carry their own signature.
	api.GET("/evidence/:token", app.depositHandler.DownloadEvidence)

	api.POST("/bins/:id/claim-tokens", middleware.BinKey(app.bins), app.binHandler.IssueClaimToken)
	bins := api.Group("/bins", authenticated, admin)
	bins.GET("", app.binHandler.List)
	bins.POST("", middleware.Audit(app.audit, models.AuditActionBinRegister, "smart_bin"), app.binHandler.Register)

	collections := api.Group("/collection-requests", authenticated)
	collections.POST("", app.collectionHandler.Create)
	collections.GET("/available", app.collectionHandler.ListAvailable)
	collections.GET("/:id", app.collectionHandler.Get)
	collections.POST("/:id/accept", app.collectionHandler.Accept)
	collections.POST("/:id/complete", app.collectionHandler.Complete)
	collections.POST("/:id/verify", app.collectionHandler.Verify)
	collections.POST("/:id/cancel", app.collectionHandler.Cancel)

	deposits := api.Group("/deposits", authenticated)
	deposits.POST("", app.depositHandler.Submit)
	deposits.GET("/pending", app.depositHandler.ListPending)
	deposits.GET("/:id", app.depositHandler.Get)
	deposits.POST("/:id/verify", app.depositHandler.Verify)
	deposits.POST("/:id/claim", app.depositHandler.Claim)
	deposits.POST("/:id/image", app.depositHandler.UploadImage)
	deposits.GET("/:id/image", app.depositHandler.ImageURL)

	accounts := api.Group("/accounts/:address", authenticated)
	accounts.GET("/profile", app.accountHandler.Profile)
	accounts.GET("/requests", app.accountHandler.Requests)
	accounts.GET("/assignments", app.accountHandler.Assignments)
	accounts.GET("/deposits", app.accountHandler.Deposits)
	accounts.GET("/ledger", app.accountHandler.Ledger)
	accounts.GET("/ledger/export", app.accountHandler.ExportLedger)

	verifiers := api.Group("/verifiers/:address", authenticated)
	verifiers.GET("", app.verifierHandler.Get)
	verifiers.PUT("", admin, app.verifierHandler.Grant)
	verifiers.DELETE("", admin, app.verifierHandler.Revoke)

	return r
}

// accountField tags request logs with the authenticated wallet.
func accountField(c *gin.Context) []zap.Field {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil {
		return nil
	}
	return []zap.Field{zap.String("account", claims.Account)}
}
