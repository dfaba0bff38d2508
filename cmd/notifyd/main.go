package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/auth"
	"github.com/KimADR/smt-finalV2-sub001/internal/logging"
	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/server"
	"github.com/KimADR/smt-finalV2-sub001/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := model.DefaultConfigPath()
	if p := os.Getenv("NOTIFY_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "token":
			return issueToken(cfg.Backend, os.Args[2:])
		default:
			return fmt.Errorf("unknown command %q (usage: notifyd [token USER_ID ROLE [TENANT_ID]])", os.Args[1])
		}
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if cfg.Backend.GinMode != "" {
		gin.SetMode(cfg.Backend.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := server.NewHub(log, publishers(ctx, cfg.Backend, log)...)
	defer hub.Close()

	signer := auth.NewSigner(cfg.Backend.JWTSecret, auth.DefaultTTL)
	srv := server.New(st, signer, hub, log)

	httpSrv := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("notification server listening",
			zap.String("addr", cfg.Backend.Addr),
			zap.String("driver", cfg.Backend.Driver),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// publishers connects the configured brokers. A broker that cannot be
// reached is skipped; websocket and polling clients keep working.
func publishers(ctx context.Context, cfg model.BackendConfig, log *zap.Logger) []server.Publisher {
	var pubs []server.Publisher

	if cfg.NATSURL != "" {
		p, err := server.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			log.Warn("nats publisher disabled", zap.Error(err))
		} else {
			pubs = append(pubs, p)
		}
	}
	if cfg.RedisAddr != "" {
		p, err := server.NewRedisPublisher(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis publisher disabled", zap.Error(err))
		} else {
			pubs = append(pubs, p)
		}
	}
	return pubs
}

// issueToken prints a development token for the given principal.
func issueToken(cfg model.BackendConfig, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: notifyd token USER_ID ROLE [TENANT_ID]")
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("parsing user id %q: %w", args[0], err)
	}
	p := model.Principal{UserID: userID, Role: model.Role(strings.ToUpper(args[1]))}
	switch p.Role {
	case model.RoleAdmin, model.RoleAgent, model.RoleEntreprise:
	default:
		return fmt.Errorf("unknown role %q", args[1])
	}
	if len(args) > 2 {
		tenant, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing tenant id %q: %w", args[2], err)
		}
		p.TenantID = &tenant
	}

	token, exp, err := auth.NewSigner(cfg.JWTSecret, auth.DefaultTTL).Issue(p)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}
