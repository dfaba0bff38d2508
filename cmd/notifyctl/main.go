package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/api"
	"github.com/KimADR/smt-finalV2-sub001/internal/app"
	"github.com/KimADR/smt-finalV2-sub001/internal/auth"
	"github.com/KimADR/smt-finalV2-sub001/internal/credential"
	"github.com/KimADR/smt-finalV2-sub001/internal/logging"
	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/notify"
	"github.com/KimADR/smt-finalV2-sub001/internal/push"
	appsync "github.com/KimADR/smt-finalV2-sub001/internal/sync"
	"github.com/KimADR/smt-finalV2-sub001/internal/ui/inbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const startupTimeout = 15 * time.Second

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

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "version", "-v":
			fmt.Println("notifyctl " + version)
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "init":
			return initConfig(cfgPath)
		case "login":
			if len(os.Args) < 3 {
				return errors.New("usage: notifyctl login <token>")
			}
			if err := credential.Set(credential.APITokenKey, os.Args[2]); err != nil {
				return err
			}
			fmt.Println("Token stored in the system keyring.")
			return nil
		case "logout":
			return credential.Delete(credential.APITokenKey)
		default:
			return fmt.Errorf("unknown command %q (try notifyctl help)", os.Args[1])
		}
	}

	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Log.File == "" {
		cfg.Log.File = logging.DefaultLogFile()
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	token, err := credential.APIToken(cfg.API.Token)
	if err != nil {
		return fmt.Errorf("%w: run notifyctl login <token> or set %s", err, credential.TokenEnv)
	}
	client := api.NewClient(cfg.API.BaseURL, token, cfg.API.Timeout())

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	principal, err := resolvePrincipal(ctx, client, token)
	if err != nil {
		return err
	}
	log.Info("starting notification client",
		zap.String("api", client.BaseURL()),
		zap.Int64("user_id", principal.UserID),
		zap.String("role", string(principal.Role)),
	)

	rec := notify.NewReconciler(client, principal, notify.OptionsFromConfig(cfg.Reconcile, log))
	bridge := appsync.New(rec, log)

	sub, err := push.NewSubscriptionFromConfig(push.Deps{
		BaseURL: client.BaseURL(),
		Token:   token,
		UserID:  principal.UserID,
		Events:  client,
		Config:  cfg.Push,
		Log:     log,
	}, push.WithStatus(bridge.OnStatus))
	if err != nil {
		return err
	}

	// A failed first load leaves the inbox empty; live events and the next
	// refresh fill it in.
	startErr := rec.Start(ctx)

	p := tea.NewProgram(app.New(rec, bridge, sub), tea.WithAltScreen())
	if startErr != nil {
		go p.Send(inbox.ActionFailedMsg{Action: "initial load", Err: startErr})
	}

	_, err = p.Run()
	bridge.Stop()
	if err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

// resolvePrincipal reads the scoping claims from the token, asking the API
// when the token is not a JWT.
func resolvePrincipal(ctx context.Context, client *api.Client, token string) (model.Principal, error) {
	if p, err := auth.ParsePrincipal(token); err == nil {
		return p, nil
	}

	p, err := client.Me(ctx)
	if err != nil {
		if api.IsAuthError(err) {
			return model.Principal{}, fmt.Errorf("token rejected by %s: %w", client.BaseURL(), err)
		}
		return model.Principal{}, fmt.Errorf("resolving current user: %w", err)
	}
	return p, nil
}

func initConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := model.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Println("Wrote " + path)
	return nil
}

func printHelp() {
	fmt.Print(`notifyctl - treasury alert inbox

Usage:
  notifyctl              open the inbox
  notifyctl init         write a default config file
  notifyctl login TOKEN  store the API token in the system keyring
  notifyctl logout       remove the stored API token
  notifyctl version      print the version

Environment:
  NOTIFY_CONFIG          config file (default ~/.config/treasury-notify/config.yaml)
  NOTIFY_API_TOKEN       API token, overrides the keyring
  NOTIFY_API_BASE_URL    API root URL
`)
}
