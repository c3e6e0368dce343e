package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pcs-tools/pcsctl/pkg/pcsctl/client"
	"github.com/pcs-tools/pcsctl/pkg/pcsctl/output"
)

func NewAPICommand() *cobra.Command {
	var (
		method   string
		resource string
		body     string
	)

	cmd := &cobra.Command{
		Use:   "api URL",
		Short: "Issue an authenticated request against a Power Platform endpoint",
		Long: `Issue a raw request with a bearer token minted for the target resource.
The resource defaults to the scheme and host of the URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			target, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse url: %w", err)
			}
			if target.Scheme == "" || target.Host == "" {
				return fmt.Errorf("url must be absolute: %s", args[0])
			}
			if resource == "" {
				resource = target.Scheme + "://" + target.Host
			}
			broker, err := rt.broker(profile)
			if err != nil {
				return err
			}
			tokens := func(ctx context.Context) (string, error) {
				return broker.GetAccessToken(ctx, resource)
			}
			c, err := client.New(target.Scheme+"://"+target.Host, tokens,
				client.WithTLSConfig(profile.CAFile, profile.InsecureSkipTLS))
			if err != nil {
				return err
			}
			var payload any
			if body != "" {
				if err := json.Unmarshal([]byte(body), &payload); err != nil {
					return fmt.Errorf("parse request body: %w", err)
				}
			}
			path := target.Path
			if target.RawQuery != "" {
				path += "?" + target.RawQuery
			}
			var result any
			if err := c.Do(cmd.Context(), strings.ToUpper(method), path, payload, &result); err != nil {
				return err
			}
			if result == nil {
				return nil
			}
			format, err := output.ParseFormat(rt.OutputFormat())
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				format = output.FormatJSON
			}
			return output.WriteObject(rt.Writer(), format, result)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringVar(&resource, "resource", "", "Resource the token is requested for")
	cmd.Flags().StringVarP(&body, "body", "d", "", "JSON request body")

	return cmd
}
