package commands

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/evidence-custody/internal/app"
	"github.com/bryanwahyu/evidence-custody/internal/config"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/logging"
)

var (
	configPath string
	username   string
	password   string
	tenantRef  string
)

var rootCmd = &cobra.Command{
	Use:   "evidencectl",
	Short: "Evidence custody operator cli",
	Long: `evidencectl works directly against the configured database and object
store: migrations, bootstrap, inspections, integrity checks and exports.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.Path(), "path to config.yaml")
	pf.StringVarP(&username, "user", "u", os.Getenv("EVIDENCE_USER"), "username (EVIDENCE_USER)")
	pf.StringVarP(&password, "password", "p", "", "password (EVIDENCE_PASSWORD)")
	pf.StringVarP(&tenantRef, "tenant", "t", os.Getenv("EVIDENCE_TENANT"), "tenant id or name (EVIDENCE_TENANT)")
}

func GetRootCmd() *cobra.Command {
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// openApp wires the services with a private metrics registry.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, nil, app.Options{Registry: prometheus.NewRegistry()})
}

func login(ctx context.Context, a *app.App) (tenancy.Actor, error) {
	pw := password
	if pw == "" {
		pw = os.Getenv("EVIDENCE_PASSWORD")
	}
	u, err := a.Tenancy.Authenticate(ctx, username, pw)
	if err != nil {
		return tenancy.Actor{}, err
	}
	return u.Actor(), nil
}

// session logs in and opens the --tenant session, defaulting to the
// user's own tenant.
func session(ctx context.Context, a *app.App) (tenancy.Session, error) {
	actor, err := login(ctx, a)
	if err != nil {
		return tenancy.Session{}, err
	}
	ref := tenantRef
	if ref == "" && actor.HomeTenant != 0 {
		return a.Tenancy.OpenSession(ctx, actor, itoa(actor.HomeTenant))
	}
	return a.Tenancy.OpenSession(ctx, actor, ref)
}

// withSession runs fn with an open app and session, closing the app after.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, sess tenancy.Session) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	sess, err := session(ctx, a)
	if err != nil {
		return err
	}
	return fn(ctx, a, sess)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
