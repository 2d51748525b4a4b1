package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/farmmap/internal/config"
)

const redacted = "REDACTED"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderConfig(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// renderConfig writes c as YAML with secrets redacted.
func renderConfig(w io.Writer, c *config.Config) error {
	out := *c
	if out.Geocode.APIKey != "" {
		out.Geocode.APIKey = redacted
	}
	if out.Store.DatabaseURL != "" && out.Store.Driver == "postgres" {
		out.Store.DatabaseURL = redacted
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	return enc.Close()
}
