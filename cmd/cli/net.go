package cli

// cmd/cli/net.go — CLI wrapper for the network store: connect to a sync
// server, create and query entities remotely, watch a subscription.

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trisync/core"
	"trisync/pkg/utils"
)

// ---------------------------------------------------------------------------
// Globals & middleware
// ---------------------------------------------------------------------------

var netFlags struct {
	url        string
	apiKey     string
	token      string
	schemaFile string
}

func netInit(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	if v, _ := cmd.Flags().GetString("url"); v != "" {
		netFlags.url = v
	} else {
		netFlags.url = utils.EnvOrDefault("TRISYNC_URL", "")
	}
	if v, _ := cmd.Flags().GetString("api-key"); v != "" {
		netFlags.apiKey = v
	} else {
		netFlags.apiKey = utils.EnvOrDefault("TRISYNC_API_KEY", "")
	}
	netFlags.token = utils.EnvOrDefault("TRISYNC_TOKEN", "")
	if v, _ := cmd.Flags().GetString("schema"); v != "" {
		netFlags.schemaFile = v
	} else {
		netFlags.schemaFile = utils.EnvOrDefault("TRISYNC_SCHEMA", "")
	}
	if netFlags.url == "" || netFlags.apiKey == "" {
		return fmt.Errorf("server url and api key must be provided via flags or TRISYNC_URL / TRISYNC_API_KEY")
	}
	return nil
}

func netClient(cmd *cobra.Command) (*core.Client, error) {
	if netFlags.schemaFile == "" {
		return nil, fmt.Errorf("schema file must be provided via --schema or TRISYNC_SCHEMA")
	}
	schema, err := core.LoadSchemaFile(netFlags.schemaFile)
	if err != nil {
		return nil, err
	}
	return core.NewNetworkClient(cmd.Context(), schema, core.ConnConfig{
		URL:    netFlags.url,
		APIKey: netFlags.apiKey,
		Token:  netFlags.token,
	})
}

// ---------------------------------------------------------------------------
// Controllers
// ---------------------------------------------------------------------------

func netPing(cmd *cobra.Command, _ []string) error {
	conn, err := core.NewConnection(core.ConnConfig{
		URL:    netFlags.url,
		APIKey: netFlags.apiKey,
		Token:  netFlags.token,
	})
	if err != nil {
		return err
	}
	if err := conn.Connect(cmd.Context()); err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", netFlags.url)
	return nil
}

func netCreate(cmd *cobra.Command, args []string) error {
	client, err := netClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()
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

func netQuery(cmd *cobra.Command, args []string) error {
	client, err := netClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()
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

func netWatch(cmd *cobra.Command, args []string) error {
	conn, err := core.NewConnection(core.ConnConfig{
		URL:    netFlags.url,
		APIKey: netFlags.apiKey,
		Token:  netFlags.token,
	})
	if err != nil {
		return err
	}
	if err := conn.Connect(cmd.Context()); err != nil {
		return err
	}
	defer conn.Close()

	subID, err := core.ParseID(args[0])
	if err != nil {
		return err
	}
	err = conn.Subscribe(cmd.Context(), subID, func(changes []core.Fact) {
		for _, f := range changes {
			if f.Tombstone() {
				fmt.Fprintf(cmd.OutOrStdout(), "retract %s %s\n", f.Entity.Hex(), f.Attr.Hex())
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assert %s %s %v\n", f.Entity.Hex(), f.Attr.Hex(), f.Value.Any())
		}
	})
	if err != nil {
		return err
	}
	logrus.Infof("watching subscription %s, ctrl-c to stop", args[0])
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return conn.Unsubscribe(cmd.Context(), subID)
}

// ---------------------------------------------------------------------------
// Cobra tree (all net-prefixed vars)
// ---------------------------------------------------------------------------

var netRootCmd = &cobra.Command{Use: "net", Short: "Sync server client", PersistentPreRunE: netInit}

var netPingCmd = &cobra.Command{Use: "ping", Short: "Check connectivity", Args: cobra.NoArgs, RunE: netPing}
var netCreateCmd = &cobra.Command{Use: "create <entity> <fields-json>", Short: "Create an entity remotely", Args: cobra.ExactArgs(2), RunE: netCreate}
var netQueryCmd = &cobra.Command{Use: "query <entity>", Short: "Query entities remotely", Args: cobra.ExactArgs(1), RunE: netQuery}
var netWatchCmd = &cobra.Command{Use: "watch <subscription-id>", Short: "Stream subscription updates", Args: cobra.ExactArgs(1), RunE: netWatch}

func init() {
	netRootCmd.PersistentFlags().String("url", "", "server url (ws:// or wss://)")
	netRootCmd.PersistentFlags().String("api-key", "", "api key")
	netRootCmd.PersistentFlags().String("schema", "", "schema YAML file")
	netQueryCmd.Flags().String("query", "", "entity query as JSON")
	netRootCmd.AddCommand(netPingCmd, netCreateCmd, netQueryCmd, netWatchCmd)
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// NetCmd exposes the network client commands.
var NetCmd = netRootCmd

// RegisterNet adds the network client commands to the root CLI.
func RegisterNet(root *cobra.Command) { root.AddCommand(NetCmd) }
