package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	attachapi "attach_server/server/attachments/api"
	"attach_server/server/attachments/permission"
	"attach_server/server/attachments/registry"
	"attach_server/server/attachments/repository"
	"attach_server/server/attachments/service"
	"attach_server/server/attachments/validate"
	commonauth "attach_server/server/common/auth"
	"attach_server/server/common/infra/cache"
	"attach_server/server/common/infra/db"
	"attach_server/server/common/infra/mq"
	"attach_server/server/common/infra/object"
	commonlog "attach_server/server/common/log"
)

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	Registry   *registry.Registry

	events *service.EventPublisher
}

// NewServer wires the service from config and the host application's model
// specs. BootstrapDDL runs before the attachment tables are created; the
// bundled binary uses it for its demo owner table.
func NewServer(cfg Config, specs []registry.ModelSpec, bootstrapDDL []string) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := registry.New(
		validate.MaxSize(cfg.MaxUploadMB),
		validate.ContentTypeWhitelist(cfg.ContentTypeWhitelist...),
	)
	for _, spec := range specs {
		if _, err := reg.Register(spec); err != nil {
			return nil, fmt.Errorf("register attachment model: %w", err)
		}
	}

	dbPool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}
	for _, ddl := range bootstrapDDL {
		if _, err := dbPool.Exec(ctx, ddl); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("bootstrap ddl: %w", err)
		}
	}
	if err := repository.EnsureSchema(ctx, dbPool, reg.Models()); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	minioClient, err := object.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("initialize minio: %w", err)
	}
	if err := object.EnsureBucket(ctx, minioClient, cfg.MinioBucket); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("ensure minio bucket: %w", err)
	}

	attachRepo := repository.NewAttachmentRepository(dbPool)
	principalRepo := repository.NewPrincipalRepository(dbPool)

	blobs := object.NewStore(minioClient, cfg.MinioBucket)
	attachSvc := service.NewAttachmentService(attachRepo, blobs, cfg.DeleteFromStorage)
	principalSvc := service.NewPrincipalService(principalRepo)

	if cfg.UseRedis {
		redisClient := cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, redisClient); err != nil {
			commonlog.Warnf("redis unavailable, counts served from postgres: %v", err)
		} else {
			attachSvc.UseCountCache(service.NewCountCache(redisClient))
		}
	}

	var events *service.EventPublisher
	if cfg.UseMQ {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			commonlog.Warnf("lavinmq unavailable, attachment events disabled: %v", err)
		} else {
			events, err = service.NewEventPublisher(conn)
			if err != nil {
				commonlog.Warnf("declare attachment events exchange: %v", err)
			} else {
				attachSvc.UseEventPublisher(events)
			}
		}
	}

	hub := service.NewHub()
	attachSvc.UseHub(hub)

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		adminPerms := []string{
			permission.ViewAttachment,
			permission.AddAttachment,
			permission.ChangeAttachment,
			permission.DeleteAttachment,
			permission.EditAnyAttachment,
		}
		if err := principalSvc.EnsurePrincipal(ctx, cfg.AdminUsername, cfg.AdminPassword, adminPerms); err != nil {
			dbPool.Close()
			return nil, fmt.Errorf("ensure admin principal: %w", err)
		}
	}

	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)
	h := attachapi.NewHandler(attachSvc, principalSvc, authSvc, reg, hub)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{HTTPServer: httpServer, DB: dbPool, Registry: reg, events: events}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.events != nil {
		s.events.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
