package cli

// cmd/cli/db.go — CLI wrapper for the local store and entity façade. The
// store is ephemeral, so these commands seed it from a facts file before
// operating; useful for trying out schemas and queries offline.

import (
	"encoding/json"
	"fmt"
	"os"

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
	dbLG    = logrus.New()
	dbFlags struct {
		schemaFile string
		factsFile  string
	}
)

func dbInit(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	if f, _ := cmd.Flags().GetString("schema"); f != "" {
		dbFlags.schemaFile = f
	} else {
		dbFlags.schemaFile = utils.EnvOrDefault("TRISYNC_SCHEMA", "")
	}
	if dbFlags.schemaFile == "" {
		return fmt.Errorf("schema file must be provided via --schema or TRISYNC_SCHEMA")
	}
	dbFlags.factsFile, _ = cmd.Flags().GetString("facts")
	return nil
}

// newLocalDB builds a client and replays the facts file when one is given.
// The facts file is a JSON array of {entity, fields} records.
func newLocalDB(cmd *cobra.Command) (*core.Client, error) {
	schema, err := core.LoadSchemaFile(dbFlags.schemaFile)
	if err != nil {
		return nil, err
	}
	client := core.NewLocalClient(schema)
	if dbFlags.factsFile == "" {
		return client, nil
	}
	data, err := os.ReadFile(dbFlags.factsFile)
	if err != nil {
		return nil, utils.Wrap(err, "read facts file")
	}
	var records []struct {
		Entity string         `json:"entity"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, utils.Wrap(err, "parse facts file")
	}
	for _, r := range records {
		if _, err := client.DB().Create(cmd.Context(), r.Entity, r.Fields); err != nil {
			return nil, utils.Wrapf(err, "create %s", r.Entity)
		}
	}
	dbLG.Infof("seeded %d records from %s", len(records), dbFlags.factsFile)
	return client, nil
}

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func dbCreate(cmd *cobra.Command, args []string) error {
	client, err := newLocalDB(cmd)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(args[1]), &fields); err != nil {
		return utils.Wrap(err, "parse fields json")
	}
	rec, err := client.DB().Create(cmd.Context(), args[0], fields)
	if err != nil {
		return err
	}
	return printJSON(cmd, rec)
}

func dbQuery(cmd *cobra.Command, args []string) error {
	client, err := newLocalDB(cmd)
	if err != nil {
		return err
	}
	q := core.EntityQuery{}
	if spec, _ := cmd.Flags().GetString("query"); spec != "" {
		if err := json.Unmarshal([]byte(spec), &q); err != nil {
			return utils.Wrap(err, "parse query json")
		}
	}
	rows, err := client.DB().Query(cmd.Context(), args[0], q)
	if err != nil {
		return err
	}
	return printJSON(cmd, rows)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ---------------------------------------------------------------------------
// Cobra tree (all db-prefixed vars)
// ---------------------------------------------------------------------------

var dbRootCmd = &cobra.Command{Use: "db", Short: "Local entity database", PersistentPreRunE: dbInit}

var dbCreateCmd = &cobra.Command{Use: "create <entity> <fields-json>", Short: "Create an entity", Args: cobra.ExactArgs(2), RunE: dbCreate}
var dbQueryCmd = &cobra.Command{Use: "query <entity>", Short: "Query entities", Args: cobra.ExactArgs(1), RunE: dbQuery}

func init() {
	dbRootCmd.PersistentFlags().String("schema", "", "schema YAML file")
	dbRootCmd.PersistentFlags().String("facts", "", "JSON facts file to seed the store")
	dbQueryCmd.Flags().String("query", "", "entity query as JSON")
	dbRootCmd.AddCommand(dbCreateCmd, dbQueryCmd)
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// DBCmd exposes the local database commands.
var DBCmd = dbRootCmd

// RegisterDB adds the local database commands to the root CLI.
func RegisterDB(root *cobra.Command) { root.AddCommand(DBCmd) }
