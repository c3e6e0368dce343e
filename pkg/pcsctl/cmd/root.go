package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pcs-tools/pcsctl/pkg/pcsctl/auth"
	"github.com/pcs-tools/pcsctl/pkg/pcsctl/config"
)

type Config struct {
	ConfigPath     string
	ProfileDir     string
	OutputWriter   io.Writer
	DefaultProfile string
	// BaseContext carries process-level cancellation into every command.
	BaseContext context.Context
}

type runtimeState struct {
	configPath           string
	profileDir           string
	cfg                  *config.Config
	profileOverride      string
	tenantOverride       string
	outputFormat         string
	tokenStorageOverride string
	noBrowser            bool
	verbose              bool
	writer               io.Writer
	logger               *zap.SugaredLogger
	cache                *auth.SessionCache
	cleanups             []func()
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		ProfileDir:   config.DefaultProfileStoreDir(),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:      cfg.ConfigPath,
		profileDir:      cfg.ProfileDir,
		profileOverride: cfg.DefaultProfile,
		writer:          cfg.OutputWriter,
		cache:           auth.NewSessionCache(),
	}
	rt.cleanups = append(rt.cleanups, rt.cache.Clear)

	root := &cobra.Command{
		Use:   "pcsctl",
		Short: "Power Platform and Copilot Studio CLI",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.profileDir == "" {
				rt.profileDir = config.DefaultProfileStoreDir()
			}
			if rt.profileOverride == "" {
				rt.profileOverride = os.Getenv("PCSCTL_PROFILE")
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("PCSCTL_OUTPUT")
			}
			if rt.tokenStorageOverride == "" {
				rt.tokenStorageOverride = os.Getenv("PCSCTL_TOKEN_STORAGE")
			}
			if !rt.noBrowser {
				rt.noBrowser = strings.EqualFold(os.Getenv("PCSCTL_NO_BROWSER"), "true")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("PCSCTL_VERBOSE"), "true")
			}
			rt.logger = buildLogger(rt.verbose)

			// Skip config loading for commands that don't need it
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			loaded, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.profileOverride, "profile", "p", rt.profileOverride, "Profile name override")
	root.PersistentFlags().StringVar(&rt.tenantOverride, "tenant", "", "Tenant ID override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().StringVar(&rt.tokenStorageOverride, "token-storage", "", "Token storage backend: keychain or file")
	root.PersistentFlags().BoolVar(&rt.noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable verbose output")

	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	root.SetContext(context.WithValue(base, runtimeKey{}, rt))

	root.AddCommand(
		NewConfigCommand(),
		NewAuthCommand(),
		NewEnvCommand(),
		NewAPICommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

// Cleanup runs the runtime shutdown hooks registered on a root command.
// It is safe to call more than once.
func Cleanup(root *cobra.Command) {
	rt, ok := root.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return
	}
	for _, fn := range rt.cleanups {
		fn()
	}
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func buildLogger(verbose bool) *zap.SugaredLogger {
	if !verbose {
		return zap.NewNop().Sugar()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

func (rt *runtimeState) ResolveProfileName() string {
	if rt.profileOverride != "" {
		return rt.profileOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentProfileOrDefault()
	}
	return ""
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "table"
}

func (rt *runtimeState) TokenStorage() string {
	if rt.tokenStorageOverride != "" {
		return rt.tokenStorageOverride
	}
	if rt.cfg != nil && rt.cfg.Settings.TokenStorage != "" {
		return rt.cfg.Settings.TokenStorage
	}
	return auth.StorageFile
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	loaded, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = loaded
	return nil
}

func (rt *runtimeState) ResolveProfile() (*config.Profile, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveProfileName()
	if name == "" {
		return nil, errors.New("no profile configured: run 'pcsctl config init'")
	}
	return rt.cfg.FindProfile(name)
}

func (rt *runtimeState) providerConfig(profile *config.Profile) auth.ProviderConfig {
	tenant := profile.TenantID
	if rt.tenantOverride != "" {
		tenant = rt.tenantOverride
	}
	return auth.ProviderConfig{
		Authority:       profile.Authority,
		TenantID:        tenant,
		ClientID:        profile.ClientID,
		Scopes:          profile.Scopes,
		LoginHint:       profile.LoginHint,
		CAFile:          profile.CAFile,
		InsecureSkipTLS: profile.InsecureSkipTLS,
		NoBrowser:       rt.noBrowser,
		Logger:          rt.logger,
	}
}

func (rt *runtimeState) profileStore() *auth.Store {
	return &auth.Store{Dir: rt.profileDir, Backend: rt.TokenStorage()}
}

func (rt *runtimeState) broker(profile *config.Profile) (*auth.Broker, error) {
	return auth.NewBroker(rt.providerConfig(profile), profile.Name, rt.profileStore(), rt.cache,
		auth.WithCredentialSources(&auth.AzureCLISource{}))
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}
