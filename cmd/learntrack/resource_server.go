package main

import (
	"github.com/spf13/cobra"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/database"
	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/middleware"
	"github.com/learntrack/learntrack/internal/queue"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/router"
	"github.com/learntrack/learntrack/internal/token"
)

func newResourceServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resource-server",
		Short: "Run the course, lesson and review API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadResourceServer()
			if err != nil {
				return err
			}
			cacheCfg, err := config.LoadCacheConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg.Common, "resource-server")

			db, err := database.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if cfg.DBMigrate {
				if err := database.Migrate(ctx, db, database.ResourceSchema); err != nil {
					return err
				}
			}

			ready := map[string]handler.Pinger{"mysql": db}
			rdb := config.NewRedisClient(ctx, cfg.Redis)
			if rdb != nil {
				defer rdb.Close()
				ready["redis"] = handler.RedisPinger{Client: rdb}
			} else {
				log.Warn().Str("addr", cfg.Redis.Address()).Msg("redis unavailable, response cache disabled")
			}

			var events queue.Publisher = queue.Nop{}
			if cfg.RabbitMQURL != "" {
				pub := queue.NewAMQPPublisher(cfg.RabbitMQURL, log)
				defer pub.Close()
				events = pub
			}

			policy, err := authz.NewPolicy(authz.PolicyOptions{
				AdminOverride:         cfg.AdminOverride,
				ReviewsAllowAnonymous: cfg.ReviewsAllowAnonymous,
				ReviewsRequireRole:    cfg.ReviewsRequireRole,
			})
			if err != nil {
				return err
			}

			var verifyOpts []token.VerifierOption
			if cfg.IssuerURL != "" {
				verifyOpts = append(verifyOpts, token.WithIssuer(cfg.IssuerURL))
			}
			keys := token.NewRemoteKeySet(cfg.JWKSURL, cfg.JWKSCacheTTL, token.WithLogger(log))
			if err := keys.Refresh(ctx); err != nil {
				// Keys are fetched again on the first token.
				log.Warn().Err(err).Str("url", cfg.JWKSURL).Msg("initial jwks fetch failed")
			}

			m := metrics.New()
			e := router.New(log, m)
			router.RegisterResourceServer(e, router.ResourceServer{
				Resources: &handler.ResourceHandler{
					Courses: repository.NewCourseRepo(db),
					Lessons: repository.NewLessonRepo(db),
					Reviews: repository.NewReviewRepo(db),
					Checker: authz.NewChecker(policy, log, m.AuthzDecisions),
					Events:  events,
					Log:     log,
				},
				Verifier:         token.NewVerifier(keys, verifyOpts...),
				Cache:            middleware.NewResponseCache(cacheCfg, rdb, log),
				AnonymousReviews: cfg.ReviewsAllowAnonymous,
				Ready:            ready,
				Metrics:          m,
				Log:              log,
			})
			return serve(ctx, e, cfg.Addr, log)
		},
	}
}
