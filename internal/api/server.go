package api

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/campus-loyalty/points-api/docs"
	v1 "github.com/campus-loyalty/points-api/internal/api/handler/v1"
	"github.com/campus-loyalty/points-api/internal/api/middleware"
	"github.com/campus-loyalty/points-api/internal/cache"
	"github.com/campus-loyalty/points-api/internal/config"
	"github.com/campus-loyalty/points-api/internal/domain"
	"github.com/campus-loyalty/points-api/internal/metrics"
	"github.com/campus-loyalty/points-api/internal/repository"
	"github.com/campus-loyalty/points-api/internal/repository/dao"
	"github.com/campus-loyalty/points-api/internal/service"
)

const userCacheTTL = 5 * time.Minute

type Server struct {
	Config *config.AppConfig
	Router *gin.Engine
	Hub    *v1.NotificationHub

	denylist *cache.Denylist
	users    *repository.UserRepository
}

type handlers struct {
	auth         *v1.AuthHandler
	user         *v1.UserHandler
	transaction  *v1.TransactionHandler
	event        *v1.EventHandler
	promotion    *v1.PromotionHandler
	raffle       *v1.RaffleHandler
	notification *v1.NotificationHub
}

// NewServer wires every layer on top of db. rdb may be nil, in which case
// caches and rate limits are kept in process.
func NewServer(conf *config.AppConfig, db *gorm.DB, rdb *redis.Client) *Server {
	gin.SetMode(conf.Gin.Mode)
	engine := gin.New()

	s := &Server{
		Config: conf,
		Router: engine,
		Hub:    v1.NewNotificationHub(conf.API.AllowedCORSDomains),
	}

	s.MountMiddlewares()

	h := s.initHandlers(db, rdb)
	s.MountHandlers(h)

	return s
}

func (s *Server) initHandlers(db *gorm.DB, rdb *redis.Client) handlers {
	userCache := cache.NewUserCache(rdb, userCacheTTL)
	s.denylist = cache.NewDenylist(rdb)
	limiter := cache.NewRateLimiter(rdb, s.Config.API.ResetRateLimit)

	s.users = repository.NewUserRepository(dao.NewUserDAO(db), userCache)
	txRepo := repository.NewTransactionRepository(dao.NewTransactionDAO(db), userCache)
	eventRepo := repository.NewEventRepository(dao.NewEventDAO(db), userCache)
	promoRepo := repository.NewPromotionRepository(dao.NewPromotionDAO(db))
	raffleRepo := repository.NewRaffleRepository(dao.NewRaffleDAO(db), userCache)

	return handlers{
		auth:         v1.NewAuthHandler(service.NewAuthService(s.Config.API, s.users, s.denylist, limiter)),
		user:         v1.NewUserHandler(service.NewUserService(s.users, promoRepo, s.Config.API.ResetTokenTTL)),
		transaction:  v1.NewTransactionHandler(service.NewTransactionService(txRepo, s.users, promoRepo, s.Hub)),
		event:        v1.NewEventHandler(service.NewEventService(eventRepo, s.users, s.Hub)),
		promotion:    v1.NewPromotionHandler(service.NewPromotionService(promoRepo, s.users)),
		raffle:       v1.NewRaffleHandler(service.NewRaffleService(raffleRepo, s.users, s.Hub)),
		notification: s.Hub,
	}
}

func (s *Server) MountMiddlewares() {
	s.Router.Use(gin.Recovery())
	s.Router.Use(requestid.New())
	s.Router.Use(middleware.Logger())
	s.Router.Use(middleware.Metrics())
	s.Router.Use(middleware.ConfigCORS(s.Config.API.AllowedCORSDomains))
}

func (s *Server) MountHandlers(h handlers) {
	const basePath = "/api/v1"

	authn := middleware.NewAuthenticator(s.Config.API.JWTSigningKey, s.denylist, s.users).VerifyJWT()
	cashier := middleware.RequireRole(domain.RoleCashier)
	manager := middleware.RequireRole(domain.RoleManager)

	public := s.Router.Group(basePath)
	{
		public.POST("/auth/tokens", h.auth.HandleLogin)
		public.POST("/auth/resets", h.auth.HandleRequestReset)
		public.POST("/auth/resets/:resetToken", h.auth.HandleResetPassword)
	}

	api := s.Router.Group(basePath, authn)
	{
		api.DELETE("/auth/tokens", h.auth.HandleLogout)
		api.GET("/ws", h.notification.HandleWebSocket)

		api.POST("/users", cashier, h.user.HandleCreateUser)
		api.GET("/users", manager, h.user.HandleListUsers)
		api.GET("/users/me", h.user.HandleGetMe)
		api.PATCH("/users/me", h.user.HandleUpdateMe)
		api.PATCH("/users/me/password", h.user.HandleChangePassword)
		api.POST("/users/me/transactions", h.transaction.HandleCreateRedemption)
		api.GET("/users/me/transactions", h.transaction.HandleListMyTransactions)
		api.GET("/users/resolve/:utorid", h.user.HandleResolveUser)
		api.GET("/users/:userId", cashier, h.user.HandleGetUser)
		api.PATCH("/users/:userId", manager, h.user.HandleUpdateUser)
		api.POST("/users/:userId/transactions", h.transaction.HandleCreateTransfer)

		api.POST("/transactions", cashier, h.transaction.HandleCreateTransaction)
		api.GET("/transactions", cashier, h.transaction.HandleListTransactions)
		api.GET("/transactions/export", manager, h.transaction.HandleExportTransactions)
		api.GET("/transactions/:transactionId", manager, h.transaction.HandleGetTransaction)
		api.PATCH("/transactions/:transactionId/processed", cashier, h.transaction.HandleProcessRedemption)
		api.PATCH("/transactions/:transactionId/suspicious", manager, h.transaction.HandleSetSuspicious)

		api.POST("/events", manager, h.event.HandleCreateEvent)
		api.GET("/events", h.event.HandleListEvents)
		api.GET("/events/:eventId", h.event.HandleGetEvent)
		api.PATCH("/events/:eventId", h.event.HandleUpdateEvent)
		api.DELETE("/events/:eventId", manager, h.event.HandleDeleteEvent)
		api.POST("/events/:eventId/organizers", manager, h.event.HandleAddOrganizer)
		api.DELETE("/events/:eventId/organizers/:userId", manager, h.event.HandleRemoveOrganizer)
		api.POST("/events/:eventId/guests", h.event.HandleAddGuest)
		api.POST("/events/:eventId/guests/me", h.event.HandleRSVP)
		api.DELETE("/events/:eventId/guests/me", h.event.HandleCancelRSVP)
		api.DELETE("/events/:eventId/guests/:userId", manager, h.event.HandleRemoveGuest)
		api.POST("/events/:eventId/transactions", h.event.HandleAwardPoints)

		api.POST("/promotions", manager, h.promotion.HandleCreatePromotion)
		api.GET("/promotions", h.promotion.HandleListPromotions)
		api.GET("/promotions/:promotionId", h.promotion.HandleGetPromotion)
		api.PATCH("/promotions/:promotionId", manager, h.promotion.HandleUpdatePromotion)
		api.DELETE("/promotions/:promotionId", manager, h.promotion.HandleDeletePromotion)

		api.POST("/raffles", manager, h.raffle.HandleCreateRaffle)
		api.GET("/raffles", h.raffle.HandleListRaffles)
		api.GET("/raffles/:raffleId", h.raffle.HandleGetRaffle)
		api.POST("/raffles/:raffleId/enter", h.raffle.HandleEnterRaffle)
		api.POST("/raffles/:raffleId/draw", manager, h.raffle.HandleDrawRaffle)
	}

	s.Router.GET("/healthz", v1.HandleHealthcheck)

	metrics.Register()
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Swagger UI.
	docs.SwaggerInfo.Host = s.Config.API.BaseURL
	docs.SwaggerInfo.BasePath = basePath
	docs.SwaggerInfo.Title = "Campus Loyalty Points API"
	docs.SwaggerInfo.Description = "Points ledger, events, promotions and raffles for the campus loyalty program."
	docs.SwaggerInfo.Version = "1.0"
	s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
}
