package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/learntrack/learntrack/internal/client"
	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/router"
)

func newClientServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client-server",
		Short: "Run the browser client that signs in through the authorization server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadClientServer()
			if err != nil {
				return err
			}
			log := newLogger(cfg.Common, "client-server")

			rdb := config.NewRedisClient(ctx, cfg.Redis)
			if rdb == nil {
				return errors.New("redis unavailable: client sessions need redis")
			}
			defer rdb.Close()

			hc := &http.Client{Timeout: cfg.HTTPTimeout}
			m := metrics.New()
			e := router.New(log, m)
			router.RegisterClientServer(e, router.ClientServer{
				Pages: &handler.PagesHandler{
					Sessions: repository.NewSessionStore(rdb),
					Auth: client.NewAuthClient(client.AuthConfig{
						BaseURL:      cfg.AuthServerURL,
						ClientID:     cfg.ClientID,
						ClientSecret: cfg.ClientSecret,
						RedirectURI:  cfg.RedirectURI,
						Scopes:       cfg.Scopes,
					}, hc, log),
					API:          client.NewResourceClient(cfg.ResourceServerURL, hc, log),
					SessionTTL:   cfg.SessionTTL,
					SecureCookie: cfg.CookieSecure,
					Log:          log,
				},
				Ready:   map[string]handler.Pinger{"redis": handler.RedisPinger{Client: rdb}},
				Metrics: m,
			})
			return serve(ctx, e, cfg.Addr, log)
		},
	}
}
