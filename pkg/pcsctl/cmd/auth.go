package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pcs-tools/pcsctl/pkg/pcsctl/auth"
	"github.com/pcs-tools/pcsctl/pkg/pcsctl/output"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Microsoft Entra ID",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthStatusCommand(),
		newAuthTokenCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var (
		deviceCode bool
		resource   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store a refresh token for the active profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			if resource == "" {
				resource = profile.Resource()
			}
			providerCfg := rt.providerConfig(profile)
			result, err := auth.Login(cmd.Context(), providerCfg, auth.LoginOptions{
				UseDeviceCode: deviceCode,
				Resource:      resource,
				Output:        rt.Writer(),
			})
			if err != nil {
				return err
			}
			cred, err := auth.CompleteLogin(providerCfg, rt.profileStore(), rt.cache, profile.Name, resource, result)
			if err != nil {
				return err
			}
			who := cred.User
			if who == "" {
				who = profile.Name
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Signed in as %s (tenant %s)\n", who, cred.TenantID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&deviceCode, "device-code", false, "Use the device code flow instead of the browser")
	cmd.Flags().StringVar(&resource, "resource", "", "Resource to request the first access token for")

	return cmd
}

type authStatus struct {
	Profile    string    `json:"profile" yaml:"profile"`
	SignedIn   bool      `json:"signedIn" yaml:"signedIn"`
	User       string    `json:"user,omitempty" yaml:"user,omitempty"`
	TenantID   string    `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	AcquiredAt time.Time `json:"acquiredAt,omitempty" yaml:"acquiredAt,omitempty"`
	Storage    string    `json:"storage" yaml:"storage"`
}

func newAuthStatusCommand() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential for the active profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			store := rt.profileStore()
			cred, ok, err := store.Read(profile.Name)
			if err != nil {
				return err
			}
			signedIn := ok && cred.RefreshToken != ""
			if check {
				if !signedIn {
					return auth.ErrNotAuthenticated
				}
				return nil
			}
			status := authStatus{
				Profile:  profile.Name,
				SignedIn: signedIn,
				Storage:  rt.TokenStorage(),
			}
			if signedIn {
				status.User = cred.User
				status.TenantID = cred.TenantID
				status.AcquiredAt = cred.AcquiredAt
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				if !signedIn {
					_, _ = fmt.Fprintf(rt.Writer(), "Not signed in to profile %q\n", profile.Name)
					return nil
				}
				table := output.NewTable("PROFILE", "USER", "TENANT", "ACQUIRED", "STORAGE")
				table.AddRow(status.Profile, status.User, status.TenantID,
					status.AcquiredAt.UTC().Format(time.RFC3339), status.Storage)
				return table.Write(rt.Writer())
			}
			return output.WriteObject(rt.Writer(), format, status)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Exit non-zero when no credential is stored")

	return cmd
}

func newAuthTokenCommand() *cobra.Command {
	var (
		resource string
		decode   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token for a resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			if resource == "" {
				resource = profile.Resource()
			}
			broker, err := rt.broker(profile)
			if err != nil {
				return err
			}
			token, err := broker.GetAccessToken(cmd.Context(), resource)
			if err != nil {
				return err
			}
			if decode {
				claims, err := auth.DecodeClaims(token)
				if err != nil {
					return fmt.Errorf("decode token claims: %w", err)
				}
				format, err := output.ParseFormat(rt.OutputFormat())
				if err != nil {
					return err
				}
				if format == output.FormatTable {
					format = output.FormatJSON
				}
				return output.WriteObject(rt.Writer(), format, claims)
			}
			_, _ = fmt.Fprintln(rt.Writer(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "Resource the token is requested for")
	cmd.Flags().BoolVar(&decode, "decode", false, "Print the token claims instead of the raw token")

	return cmd
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential for the active profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			if err := rt.profileStore().Delete(profile.Name); err != nil {
				return err
			}
			rt.cache.Clear()
			_, _ = fmt.Fprintf(rt.Writer(), "Signed out of profile %q\n", profile.Name)
			return nil
		},
	}
}
