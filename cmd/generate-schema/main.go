// Command generate-schema writes the JSON schema of the assetfiles
// configuration file, for editor completion of config.yaml.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/assetfiles/pkg/config"
	"github.com/spf13/cobra"
)

// durationPattern matches the strings time.ParseDuration accepts, such as
// "30s" or "1h30m".
const durationPattern = `^-?([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$|^0$`

func main() {
	var output string

	cmd := &cobra.Command{
		Use:   "generate-schema",
		Short: "Write the JSON schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "-" {
				return writeSchema(cmd.OutOrStdout())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := writeSchema(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "JSON schema written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "config.schema.json", "output file, - for stdout")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func writeSchema(w io.Writer) error {
	schema := reflectConfig()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schema); err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return nil
}

func reflectConfig() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
		// Durations are written as strings by init and parsed by viper.
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "assetfiles Configuration"
	schema.Description = "Configuration file of the assetfiles file server (config.yaml)"
	return schema
}
