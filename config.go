package propstat

import (
	"runtime"

	"github.com/spf13/viper"
)

func loadConfig() {
	viper.SetConfigName("propstatrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.propstat")

	setupDefaults()

	viper.ReadInConfig()

	viper.SetEnvPrefix("propstat")
	viper.AutomaticEnv()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"input_file":         "houses_new.txt", // Read by the shared-memory strategy
		"size_column":        DefaultSizeColumn,
		"price_column":       DefaultPriceColumn,
		"workers":            runtime.NumCPU(), // Distributed ranks
		"threads":            runtime.NumCPU(), // Shared-memory goroutines
		"max_concurrency":    500,              // Maximum number of concurrently running ranks
		"verbose":            false,
		"progress":           true,
		"function_name":      "propstat_function",
		"lambda_memory":      1500,
		"lambda_timeout":     180,
		"lambda_manage_role": true,
		"lambda_role_arn":    "",
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose": "v",
		"workers": "n",
		"threads": "t",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}
