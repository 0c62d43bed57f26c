package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pmorelli/braindump/internal/database"
)

// exportedConfig is the YAML document written by the export command
type exportedConfig struct {
	OIDCProviders []exportedOIDC `yaml:"oidc_providers"`
	Cors          *exportedCors  `yaml:"cors,omitempty"`
	RateLimit     string         `yaml:"rate_limit,omitempty"`
}

type exportedOIDC struct {
	Provider    string  `yaml:"provider"`
	Issuer      string  `yaml:"issuer"`
	Domain      *string `yaml:"domain,omitempty"`
	ClientID    string  `yaml:"client_id"`
	RedirectURI string  `yaml:"redirect_uri"`
	JWKSUrl     *string `yaml:"jwks_url,omitempty"`
}

type exportedCors struct {
	AllowedOrigins   string `yaml:"allowed_origins"`
	AllowCredentials bool   `yaml:"allow_credentials"`
	MaxAge           int    `yaml:"max_age"`
}

// NewExportCmd creates the export command, which dumps the stored
// configuration as YAML. Client secrets are never included.
func NewExportCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored configuration as YAML",
		Long:  "Export OIDC providers, CORS and rate limit configuration from the database as a YAML document. Secrets are omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			ctx := context.Background()
			doc := exportedConfig{}

			oidcConfigs, err := database.NewOIDCConfigRepository(db).GetAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to load OIDC configs: %w", err)
			}
			for _, c := range oidcConfigs {
				doc.OIDCProviders = append(doc.OIDCProviders, exportedOIDC{
					Provider:    c.Provider,
					Issuer:      c.Issuer,
					Domain:      c.Domain,
					ClientID:    c.ClientID,
					RedirectURI: c.RedirectURI,
					JWKSUrl:     c.JWKSUrl,
				})
			}

			if corsCfg, err := database.NewCorsConfigRepository(db).Get(ctx); err == nil && corsCfg != nil {
				doc.Cors = &exportedCors{
					AllowedOrigins:   corsCfg.AllowedOrigins,
					AllowCredentials: corsCfg.AllowCredentials,
					MaxAge:           corsCfg.MaxAge,
				}
			}

			if rlCfg, err := database.NewRatelimitConfigRepository(db).Get(ctx); err == nil && rlCfg != nil {
				doc.RateLimit = rlCfg.Rate
			}

			out, err := yaml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("failed to marshal configuration: %w", err)
			}

			if outputPath == "" {
				fmt.Print(string(out))
				return nil
			}
			if err := os.WriteFile(outputPath, out, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}
			fmt.Printf("Configuration exported to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputPath, "output", "", "Write YAML to this file instead of stdout")
	return cmd
}
