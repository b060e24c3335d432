package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carecircle/carecircle/internal/config"
	"github.com/carecircle/carecircle/internal/domain/access"
	"github.com/carecircle/carecircle/internal/domain/auditlog"
	"github.com/carecircle/carecircle/internal/domain/identity"
	"github.com/carecircle/carecircle/internal/platform/auth"
	"github.com/carecircle/carecircle/internal/platform/db"
	"github.com/carecircle/carecircle/internal/platform/middleware"
	"github.com/carecircle/carecircle/internal/platform/notification"
	"github.com/carecircle/carecircle/internal/platform/token"
)

// MembershipStoreAdapter adapts the identity service to the access
// package's IndexStore interface, avoiding circular imports between the
// access and identity packages.
type MembershipStoreAdapter struct {
	svc *identity.Service
}

func (a *MembershipStoreAdapter) GetMembership(ctx context.Context, id uuid.UUID) (*access.MembershipIndex, error) {
	m, err := a.svc.Membership(ctx, id)
	if err != nil {
		return nil, err
	}
	return &access.MembershipIndex{
		LinkedPatientIDs: m.LinkedPatientIDs,
		FamilyMemberIDs:  m.FamilyMemberIDs,
		PrimaryPatientID: m.PrimaryPatientID,
	}, nil
}

func (a *MembershipStoreAdapter) PutMembership(ctx context.Context, id uuid.UUID, idx *access.MembershipIndex) error {
	return a.svc.PutMembership(ctx, id, &identity.Membership{
		LinkedPatientIDs: idx.LinkedPatientIDs,
		FamilyMemberIDs:  idx.FamilyMemberIDs,
		PrimaryPatientID: idx.PrimaryPatientID,
	})
}

// DirectoryAdapter adapts the identity service to the access package's
// Directory interface.
type DirectoryAdapter struct {
	svc *identity.Service
}

func (a *DirectoryAdapter) Lookup(ctx context.Context, id uuid.UUID) (*access.Person, error) {
	ident, err := a.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &access.Person{ID: ident.ID, Email: ident.Email, Name: ident.Name}, nil
}

// AuditRecorderAdapter bridges the access package's audit entries into the
// auditlog domain.
type AuditRecorderAdapter struct {
	svc *auditlog.Service
}

func (a *AuditRecorderAdapter) Record(ctx context.Context, e access.AuditEntry) error {
	var recordID uuid.UUID
	if e.RecordID != nil {
		recordID = *e.RecordID
	}
	_, err := a.svc.Record(ctx, e.Action, e.PatientID, e.ActorID, recordID, e.Reason, e.Details)
	return err
}

// NotifierAdapter bridges the access package to the notification manager.
type NotifierAdapter struct {
	mgr *notification.Manager
}

func (a *NotifierAdapter) Notify(ctx context.Context, templateID string, data map[string]string, recipient string) error {
	_, err := a.mgr.SendFromTemplate(ctx, templateID, data, recipient)
	return err
}

// services is the wired object graph shared by serve and the maintenance
// subcommands.
type services struct {
	identity *identity.Service
	auditlog *auditlog.Service
	access   *access.Service
	resolver *access.Resolver
	sync     *access.Synchronizer
	gate     *access.Gate
}

func buildServices(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) *services {
	identitySvc := identity.NewService(identity.NewRepoPG(pool))
	auditSvc := auditlog.NewService(auditlog.NewRepoPG(pool))

	accessRepo := access.NewRepoPG(pool)
	indexStore := &MembershipStoreAdapter{svc: identitySvc}
	sync := access.NewSynchronizer(indexStore, accessRepo, logger)

	audit := &AuditRecorderAdapter{svc: auditSvc}
	notifier := &NotifierAdapter{mgr: notification.NewManager(
		&notification.LogSender{Logger: logger}, notification.NewTemplateEngine())}
	tokens := token.NewGenerator(time.Duration(cfg.InvitationTTLHrs) * time.Hour)

	accessSvc := access.NewService(accessRepo, sync, &DirectoryAdapter{svc: identitySvc},
		audit, notifier, tokens, time.Duration(cfg.EmergencyMaxHrs)*time.Hour, logger).
		WithTxRunner(func(ctx context.Context, fn func(context.Context) error) error {
			return db.RunInTx(ctx, pool, fn)
		})
	resolver := access.NewResolver(accessRepo, audit, logger)

	return &services{
		identity: identitySvc,
		auditlog: auditSvc,
		access:   accessSvc,
		resolver: resolver,
		sync:     sync,
		gate:     access.NewGate(resolver, accessSvc, indexStore, logger),
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "carecircle-server",
		Short: "Family access control API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(rebuildIndexCmd())
	rootCmd.AddCommand(checkConsistencyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := connect(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	svcs := buildServices(pool, cfg, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	switch cfg.ResolvedAuthMode() {
	case "development":
		e.Use(auth.DevAuthMiddleware())
	case "hmac":
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSigningKey),
		}))
	default:
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	identity.NewHandler(svcs.identity).RegisterRoutes(apiV1)
	access.NewHandler(svcs.access, svcs.resolver, svcs.sync).RegisterRoutes(apiV1)
	auditHandler := auditlog.NewHandler(svcs.auditlog)
	auditHandler.RegisterRoutes(apiV1)
	auditHandler.RegisterPatientRoutes(apiV1, svcs.gate.Require(access.CapView))

	// Periodic expiry sweep. Idempotent, so overlap with the CLI subcommand
	// or the admin endpoint is harmless.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.SweepIntervalMins) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := svcs.access.ExpireStale(sweepCtx); err != nil {
					logger.Error().Err(err).Msg("expiry sweep failed")
				}
			}
		}
	}()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	var dir string

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, _ *config.Config, logger zerolog.Logger) error {
				count, err := db.NewMigrator(pool, dir).Up(ctx)
				if err != nil {
					return err
				}
				logger.Info().Int("applied", count).Msg("migrations complete")
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, _ *config.Config, _ zerolog.Logger) error {
				statuses, err := db.NewMigrator(pool, dir).Status(ctx)
				if err != nil {
					return err
				}
				for _, st := range statuses {
					state := "pending"
					if st.Applied {
						state = "applied " + st.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%3d  %-40s %s\n", st.Version, st.Name, state)
				}
				return nil
			})
		},
	}

	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")
	cmd.AddCommand(upCmd)
	cmd.AddCommand(statusCmd)
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale invitations and lapsed emergency grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) error {
				res, err := buildServices(pool, cfg, logger).access.ExpireStale(ctx)
				if err != nil {
					return err
				}
				logger.Info().
					Int("expired_invitations", res.ExpiredInvitations).
					Int("cleared_emergency", res.ClearedEmergency).
					Msg("sweep complete")
				return nil
			})
		},
	}
}

func rebuildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index <identity-id>",
		Short: "Recompute an identity's membership index from the record store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid identity id %q", args[0])
			}
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) error {
				idx, err := buildServices(pool, cfg, logger).sync.Rebuild(ctx, id)
				if err != nil {
					return err
				}
				logger.Info().
					Int("linked_patients", len(idx.LinkedPatientIDs)).
					Int("family_members", len(idx.FamilyMemberIDs)).
					Msg("index rebuilt")
				return nil
			})
		},
	}
}

func checkConsistencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-consistency <identity-id>",
		Short: "Compare an identity's stored membership index against the record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one identity id")
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid identity id %q", args[0])
			}
			return withPool(func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) error {
				report, err := buildServices(pool, cfg, logger).sync.AuditConsistency(ctx, id)
				if err != nil {
					return err
				}
				if report.Consistent {
					logger.Info().Msg("index consistent")
					return nil
				}
				logger.Warn().
					Int("missing_patients", len(report.MissingPatients)).
					Int("stale_patients", len(report.StalePatients)).
					Int("missing_members", len(report.MissingMembers)).
					Int("stale_members", len(report.StaleMembers)).
					Bool("primary_matches", report.PrimaryMatches).
					Msg("index drift detected; run rebuild-index to repair")
				return nil
			})
		},
	}
}

// withPool loads config, opens the pool, and tears it down around fn.
func withPool(fn func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) error) error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool, cfg, logger)
}
