package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/database"
	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/middleware"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/router"
	"github.com/learntrack/learntrack/internal/service"
	"github.com/learntrack/learntrack/internal/token"
)

func newAuthServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-server",
		Short: "Run the OAuth2 authorization server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadAuthServer()
			if err != nil {
				return err
			}
			rlCfg, err := config.LoadRateLimitConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg.Common, "auth-server")

			db, err := database.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if cfg.DBMigrate {
				if err := database.Migrate(ctx, db, database.AuthSchema); err != nil {
					return err
				}
			}

			rdb := config.NewRedisClient(ctx, cfg.Redis)
			if rdb == nil {
				return errors.New("redis unavailable: authorization codes need redis")
			}
			defer rdb.Close()

			keys, err := token.LoadOrGenerateKeyPair(cfg.SigningKeyPath)
			if err != nil {
				return err
			}
			log.Info().Str("kid", keys.KeyID).Msg("signing key loaded")

			m := metrics.New()
			users, roles, clients := repository.NewUserRepo(db), repository.NewRoleRepo(db), repository.NewClientRepo(db)
			accounts := service.NewAccounts(users, roles, cfg.BcryptCost, log)
			if err := accounts.Seed(ctx, cfg.SeedUsers || !cfg.Production()); err != nil {
				return err
			}
			if _, err := service.EnsureDefaultClient(ctx, clients, cfg.DefaultClient, cfg.BcryptCost, log); err != nil {
				return fmt.Errorf("default client: %w", err)
			}

			issuer := token.NewIssuer(keys, cfg.IssuerURL,
				token.WithCustomizer(token.UserClaimsCustomizer{Log: log}))
			tokens := service.NewTokenService(service.TokenDeps{
				Clients:  clients,
				Accounts: accounts,
				Refresh:  repository.NewTokenRepo(db),
				Codes:    repository.NewCodeStore(rdb),
				Issuer:   issuer,
				CodeTTL:  cfg.AuthCodeTTL,
				Log:      log,
				Issued:   m.TokensIssued,
			})

			policy, err := authz.NewPolicy(authz.PolicyOptions{})
			if err != nil {
				return err
			}
			checker := authz.NewChecker(policy, log, m.AuthzDecisions)

			e := router.New(log, m)
			router.RegisterAuthServer(e, router.AuthServer{
				OAuth:     &handler.OAuthHandler{Tokens: tokens, Issuer: issuer, Log: log},
				Auth:      handler.NewAuthHandler(accounts, tokens, cfg.ClientID),
				Accounts:  &handler.AccountHandler{Accounts: accounts, Tokens: tokens, Checker: checker},
				Verifier:  token.NewVerifier(keys, token.WithIssuer(cfg.IssuerURL)),
				Checker:   checker,
				RateLimit: middleware.NewTokenBucket(rlCfg, rdb, log),
				Ready:     map[string]handler.Pinger{"mysql": db, "redis": handler.RedisPinger{Client: rdb}},
				Metrics:   m,
				Log:       log,
			})
			return serve(ctx, e, cfg.Addr, log)
		},
	}
}
