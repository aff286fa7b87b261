package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"queryrpc/client"
	"queryrpc/loadbalance"
	"queryrpc/registry"
)

var queryCmd = &cobra.Command{
	Use:     "query <statement>",
	Short:   "Run a query and print its rows",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			if err := c.Execute(args[0]); err != nil {
				return err
			}
			rows, err := c.FetchAll()
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Println(row)
			}
			return nil
		})
	},
}

var schemaCmd = &cobra.Command{
	Use:     "schema <statement>",
	Short:   "Run a query and print its result schema",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			if err := c.Execute(args[0]); err != nil {
				return err
			}
			schema, err := c.GetSchema()
			if err != nil {
				return err
			}
			fmt.Println(schema)
			return nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{queryCmd, schemaCmd} {
		cmd.Flags().String("addr", "", "server address to connect to directly")
		cmd.Flags().StringSlice("etcd-endpoints", nil, "etcd endpoints for discovery, used when --addr is not set")
		cmd.Flags().String("balancer", "roundrobin", "instance picker for discovery (roundrobin, weightedrandom, consistenthash)")
		cmd.Flags().String("session-key", "", "placement key for the consistenthash balancer; the same key lands on the same server")
	}
}

// withSession opens a session per the connection flags, runs fn against it
// and closes it.
func withSession(fn func(*client.Client) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := openSession(logger)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

func openSession(logger *zap.Logger) (*client.Client, error) {
	if addr := viper.GetString("addr"); addr != "" {
		return client.Dial(addr, client.WithLogger(logger))
	}

	endpoints := viper.GetStringSlice("etcd-endpoints")
	if len(endpoints) == 0 {
		return nil, errors.New("either --addr or --etcd-endpoints is required")
	}
	reg, err := registry.NewEtcdRegistry(endpoints, logger)
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}

	cache := registry.NewCache(reg)
	var bal loadbalance.Balancer
	switch name := viper.GetString("balancer"); name {
	case "roundrobin":
		bal = &loadbalance.RoundRobin{}
	case "weightedrandom":
		bal = &loadbalance.WeightedRandom{}
	case "consistenthash":
		key := viper.GetString("session-key")
		if key == "" {
			return nil, errors.New("--session-key is required with --balancer consistenthash")
		}
		return client.ConnectWithKey(cache, loadbalance.NewConsistentHash(), key, client.WithLogger(logger))
	default:
		return nil, errors.Errorf("unknown balancer %s", name)
	}

	return client.Connect(cache, bal, client.WithLogger(logger))
}
