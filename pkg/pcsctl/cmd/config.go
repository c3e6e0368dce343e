package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pcs-tools/pcsctl/pkg/pcsctl/config"
	"github.com/pcs-tools/pcsctl/pkg/pcsctl/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pcsctl configuration",
	}

	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigProfilesCommand(),
		newConfigCurrentProfileCommand(),
		newConfigUseProfileCommand(),
		newConfigSetProfileCommand(),
		newConfigDeleteProfileCommand(),
	)

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		profileName string
		tenantID    string
		clientID    string
		authority   string
		bapResource string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a pcsctl config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			if profileName == "" {
				profileName = "default"
			}
			cfg := config.DefaultConfig()
			cfg.CurrentProfile = profileName
			cfg.Profiles = append(cfg.Profiles, config.Profile{
				Name:        profileName,
				TenantID:    tenantID,
				ClientID:    clientID,
				Authority:   authority,
				BAPResource: bapResource,
			})
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "name", "default", "Profile name")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (defaults to the common endpoint)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Application (client) ID")
	cmd.Flags().StringVar(&authority, "authority", "", "Authority URL override")
	cmd.Flags().StringVar(&bapResource, "bap-resource", "", "Business Application Platform resource override")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")

	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			return output.WriteObject(rt.Writer(), output.FormatYAML, rt.cfg)
		},
	}
}

func newConfigProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, rt.cfg.Profiles)
			}
			current := rt.cfg.CurrentProfileOrDefault()
			table := output.NewTable("CURRENT", "NAME", "TENANT", "CLIENT ID")
			for _, p := range rt.cfg.Profiles {
				marker := ""
				if p.Name == current {
					marker = "*"
				}
				tenant := p.TenantID
				if tenant == "" {
					tenant = "common"
				}
				table.AddRow(marker, p.Name, tenant, p.ClientID)
			}
			return table.Write(rt.Writer())
		},
	}
}

func newConfigCurrentProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-profile",
		Short: "Print the active profile name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := rt.ResolveProfileName()
			if name == "" {
				return fmt.Errorf("no profile configured")
			}
			_, _ = fmt.Fprintln(rt.Writer(), name)
			return nil
		},
	}
}

func newConfigUseProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-profile NAME",
		Short: "Switch the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindProfile(name); err != nil {
				return err
			}
			rt.cfg.CurrentProfile = name
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Switched to profile %q\n", name)
			return nil
		},
	}
}

func newConfigSetProfileCommand() *cobra.Command {
	var (
		tenantID    string
		clientID    string
		authority   string
		bapResource string
		loginHint   string
		caFile      string
		insecure    bool
		useProfile  bool
	)

	cmd := &cobra.Command{
		Use:   "set-profile NAME",
		Short: "Add or update a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			profile := config.Profile{Name: name}
			if existing, err := rt.cfg.FindProfile(name); err == nil {
				profile = *existing
			}
			if cmd.Flags().Changed("tenant") {
				profile.TenantID = tenantID
			}
			if cmd.Flags().Changed("client-id") {
				profile.ClientID = clientID
			}
			if cmd.Flags().Changed("authority") {
				profile.Authority = authority
			}
			if cmd.Flags().Changed("bap-resource") {
				profile.BAPResource = bapResource
			}
			if cmd.Flags().Changed("login-hint") {
				profile.LoginHint = loginHint
			}
			if cmd.Flags().Changed("ca-file") {
				profile.CAFile = caFile
			}
			if cmd.Flags().Changed("insecure-skip-tls-verify") {
				profile.InsecureSkipTLS = insecure
			}
			rt.cfg.SetProfile(profile)
			if useProfile {
				rt.cfg.CurrentProfile = name
			}
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Saved profile %q\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Application (client) ID")
	cmd.Flags().StringVar(&authority, "authority", "", "Authority URL override")
	cmd.Flags().StringVar(&bapResource, "bap-resource", "", "Business Application Platform resource override")
	cmd.Flags().StringVar(&loginHint, "login-hint", "", "Username pre-filled on the sign-in page")
	cmd.Flags().StringVar(&caFile, "ca-file", "", "PEM bundle for the identity provider")
	cmd.Flags().BoolVar(&insecure, "insecure-skip-tls-verify", false, "Skip TLS verification")
	cmd.Flags().BoolVar(&useProfile, "use", false, "Make this the active profile")

	return cmd
}

func newConfigDeleteProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-profile NAME",
		Short: "Remove a profile and its stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindProfile(name); err != nil {
				return err
			}
			kept := rt.cfg.Profiles[:0]
			for _, p := range rt.cfg.Profiles {
				if p.Name != name {
					kept = append(kept, p)
				}
			}
			rt.cfg.Profiles = kept
			if rt.cfg.CurrentProfile == name {
				rt.cfg.CurrentProfile = ""
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			if err := rt.profileStore().Delete(name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Deleted profile %q\n", name)
			return nil
		},
	}
}
