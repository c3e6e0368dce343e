package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pcs-tools/pcsctl/pkg/pcsctl/client"
	"github.com/pcs-tools/pcsctl/pkg/pcsctl/config"
	"github.com/pcs-tools/pcsctl/pkg/pcsctl/output"
)

func NewEnvCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect Power Platform environments",
	}
	cmd.AddCommand(
		newEnvListCommand(),
		newEnvGetCommand(),
	)
	return cmd
}

func (rt *runtimeState) bapClient(profile *config.Profile) (*client.Client, error) {
	broker, err := rt.broker(profile)
	if err != nil {
		return nil, err
	}
	resource := profile.Resource()
	tokens := func(ctx context.Context) (string, error) {
		return broker.GetAccessToken(ctx, resource)
	}
	return client.New(resource, tokens,
		client.WithTLSConfig(profile.CAFile, profile.InsecureSkipTLS))
}

func newEnvListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List environments visible to the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			c, err := rt.bapClient(profile)
			if err != nil {
				return err
			}
			environments, err := c.Environments().List(cmd.Context())
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, environments)
			}
			table := output.NewTable("NAME", "DISPLAY NAME", "LOCATION", "SKU", "STATE")
			for _, env := range environments {
				table.AddRow(env.Name, env.Properties.DisplayName, env.Location,
					env.Properties.EnvironmentSKU, env.Properties.ProvisioningState)
			}
			return table.Write(rt.Writer())
		},
	}
}

func newEnvGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show a single environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			c, err := rt.bapClient(profile)
			if err != nil {
				return err
			}
			env, err := c.Environments().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				format = output.FormatYAML
			}
			return output.WriteObject(rt.Writer(), format, env)
		},
	}
}
