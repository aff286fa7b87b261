package cmd

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// initConfig wires environment variables into viper. Every flag can also be
// set as QUERYRPC_<FLAG> with dashes replaced by underscores, e.g.
// QUERYRPC_ETCD_ENDPOINTS=localhost:2379.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("queryrpc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags binds a command's flags to viper so env vars can override them.
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// newLogger builds the process logger at the configured level.
func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}
	conf := zap.NewProductionConfig()
	conf.Level = level
	return conf.Build()
}
