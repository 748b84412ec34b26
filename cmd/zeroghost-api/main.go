package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeroghost-ph/zeroghost/backend/internal/audit"
	"github.com/zeroghost-ph/zeroghost/backend/internal/auth"
	"github.com/zeroghost-ph/zeroghost/backend/internal/config"
	"github.com/zeroghost-ph/zeroghost/backend/internal/database"
	"github.com/zeroghost-ph/zeroghost/backend/internal/logging"
	"github.com/zeroghost-ph/zeroghost/backend/internal/media"
	"github.com/zeroghost-ph/zeroghost/backend/internal/reports"
	"github.com/zeroghost-ph/zeroghost/backend/internal/server"
	"github.com/zeroghost-ph/zeroghost/backend/internal/social"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zeroghost-api",
		Short: "ZeroGhost citizen-reporting backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("media-dir", defaults.GetString("media.dir"), "Photo storage directory")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("audit-schedule", defaults.GetString("audit.schedule"), "Cron schedule for the integrity sweep")
	cmd.PersistentFlags().String("facebook-page-id", defaults.GetString("facebook.page_id"), "Facebook Page identifier")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")
	cmd.PersistentFlags().String("admin-password", "", "Admin login password (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "media.dir", "media-dir")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "audit.schedule", "audit-schedule")
	bindFlag(cmd, "facebook.page_id", "facebook-page-id")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "admin.password", "admin-password")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// A local .env is optional; its values feed viper's AutomaticEnv.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	photoStorage, err := media.NewStorage(media.StorageConfig{
		Dir:    appConfig.MediaDir,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	reportsService, err := reports.NewService(reports.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Photos:   photoStorage,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		AdminPassword: appConfig.AdminPassword,
		Issuer:        "zeroghost-auth",
		Audience:      "zeroghost-api",
	})

	publisher := social.NewPublisher(social.PublisherConfig{
		PageID:       appConfig.FacebookPageID,
		AccessToken:  appConfig.FacebookAccessToken,
		GraphBaseURL: appConfig.FacebookGraphURL,
		Photos:       photoStorage,
		Logger:       logger,
	})

	sweeper, err := audit.NewSweeper(audit.SweeperConfig{
		Schedule: appConfig.AuditSchedule,
		Verifier: reportsService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ReportsService: reportsService,
		TokenManager:   tokenManager,
		Publisher:      publisher,
		MediaDir:       photoStorage.Dir(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
