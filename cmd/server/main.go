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

	"auth-notify-service/internal/config"
	"auth-notify-service/internal/factory"
	"auth-notify-service/internal/handler"
	"auth-notify-service/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	router := setupRouter(f)

	// Determine server address based on TLS config
	serverAddr := cfg.GetServerAddress()
	if cfg.Server.EnableTLS {
		serverAddr = fmt.Sprintf(":%d", cfg.Server.TLSPort)
	}

	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if !cfg.Server.EnableTLS {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
		startServers(f, cfg, server, nil)
		return
	}

	tlsManager := f.TLSManager()
	server.TLSConfig = tlsManager.GetTLSConfig()

	// With autocert the plain port answers ACME challenges and redirects.
	var challengeServer *http.Server
	if challenge := tlsManager.ChallengeHandler(); challenge != nil {
		challengeServer = &http.Server{
			Addr:              cfg.GetServerAddress(),
			Handler:           challenge,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	util.Info("Starting HTTPS server",
		util.String("environment", cfg.Environment),
		util.Int("port", cfg.Server.TLSPort),
		util.Bool("auto_cert", cfg.Server.AutoCert),
	)
	startServers(f, cfg, server, challengeServer)
}

// setupRouter wires every handler onto the Chi router
func setupRouter(f *factory.Factory) http.Handler {
	logger := util.Get()
	services := f.ServiceFactory()

	handlers := handler.Handlers{
		Users:         handler.NewUserHandler(services.UserService(), logger),
		Notifications: handler.NewNotificationHandler(services.NotificationService(), logger),
		WhatsApp:      handler.NewWhatsAppHandler(services.WhatsAppService(), logger),
		Tasks:         handler.NewTaskHandler(services.TaskService(), logger),
		Health:        handler.NewHealthHandler(f, logger),
	}

	cfg := f.Config()
	return handler.NewRouter(handlers, services.UserService(), handler.RouterOptions{
		RequireHTTPS:   cfg.Server.EnableTLS && cfg.IsProduction(),
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, logger)
}

func startServers(f *factory.Factory, cfg *config.Config, server, challengeServer *http.Server) {
	if challengeServer != nil {
		go func() {
			util.Info("Starting ACME challenge server", util.String("address", challengeServer.Addr))
			if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				util.Error("ACME challenge server failed", util.ErrorField(err))
			}
		}()
	}

	go func() {
		var err error
		if cfg.Server.EnableTLS {
			// Certificates come from TLSConfig.GetCertificate.
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("address", server.Addr),
	)

	waitForShutdown(f, server, challengeServer)
}

func waitForShutdown(f *factory.Factory, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed", util.String("address", srv.Addr))
		}
	}
	f.Close()
}
