package cli

// cmd/cli/schema.go — CLI wrapper for the core schema subsystem.
// ----------------------------------------------------------------------------
// Layout
//   1. Globals & middleware (env-driven wiring of logger and schema file).
//   2. Controllers — one per CLI sub-command, thin and validated.
//   3. Cobra tree + consolidated export.
// ----------------------------------------------------------------------------

import (
	"fmt"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trisync/core"
	"trisync/pkg/utils"
)

// ---------------------------------------------------------------------------
// Globals & middleware
// ---------------------------------------------------------------------------

var (
	schemaLG    = logrus.New()
	schemaFlags struct {
		file string
	}
)

func schemaInit(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	if f, _ := cmd.Flags().GetString("schema"); f != "" {
		schemaFlags.file = f
	} else {
		schemaFlags.file = utils.EnvOrDefault("TRISYNC_SCHEMA", "")
	}
	if schemaFlags.file == "" {
		return fmt.Errorf("schema file must be provided via --schema or TRISYNC_SCHEMA")
	}
	return nil
}

func loadSchema() (*core.Schema, error) {
	return core.LoadSchemaFile(schemaFlags.file)
}

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func schemaCheck(cmd *cobra.Command, _ []string) error {
	s, err := loadSchema()
	if err != nil {
		return err
	}
	for name, def := range s.Entities() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d fields)\n", name, len(def))
	}
	schemaLG.Infof("schema %s is valid", schemaFlags.file)
	return nil
}

func schemaAttr(cmd *cobra.Command, args []string) error {
	id := core.AttributeID(args[0], args[1])
	fmt.Fprintln(cmd.OutOrStdout(), id.Hex())
	return nil
}

// ---------------------------------------------------------------------------
// Cobra tree (all schema-prefixed vars)
// ---------------------------------------------------------------------------

var schemaRootCmd = &cobra.Command{Use: "schema", Short: "Schema tools", PersistentPreRunE: schemaInit}

var schemaCheckCmd = &cobra.Command{Use: "check", Short: "Validate a schema file", Args: cobra.NoArgs, RunE: schemaCheck}
var schemaAttrCmd = &cobra.Command{Use: "attr <entity> <field>", Short: "Print an attribute id", Args: cobra.ExactArgs(2), RunE: schemaAttr}

func init() {
	schemaRootCmd.PersistentFlags().String("schema", "", "schema YAML file")
	schemaRootCmd.AddCommand(schemaCheckCmd, schemaAttrCmd)
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// SchemaCmd exposes the schema commands.
var SchemaCmd = schemaRootCmd

// RegisterSchema adds the schema commands to the root CLI.
func RegisterSchema(root *cobra.Command) { root.AddCommand(SchemaCmd) }
