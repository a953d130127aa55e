package main

import (
	"encoding/json"
	"fmt"
	"os"

	lnurl "github.com/cashubtc/cashu-lnurl/pkg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	var configPath string
	var admin SubCommandArgs

	// define root command
	rootCmd := &cobra.Command{
		Use:   "cashu-lnurl",
		Short: "LNURL-pay gateway for Cashu mints",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	// Flags override values from the config file
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (toml, yaml or json)")
	flags.String("url", "", "Public base URL used in LNURL callbacks")
	flags.String("mint", "", "Default Cashu mint URL")
	flags.Bool("proxy", false, "Issue invoices on our own node and forward them to the mint")
	flags.String("backend", "", "Lightning backend: cln or lnd")
	flags.String("cln-path", "", "CLN RPC socket path")
	flags.String("lnd-host", "", "LND gRPC host:port")
	flags.String("nsec", "", "Nostr secret key for zap receipts")
	flags.StringSlice("relays", nil, "Nostr relays for zap receipts")
	flags.String("bind", "", "Public API bind address")
	flags.String("port", "", "Public API port")
	flags.String("db", "", "Store DB file, or postgres:// URL")
	flags.String("log-level", "", "Log level")
	viper.BindPFlags(flags)

	load := func() lnurl.Config {
		conf, err := LoadConfig(configPath)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		return conf
	}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the LNURL gateway",
		Run: func(cmd *cobra.Command, args []string) {
			conf := load()
			if err := conf.Validate(); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			Server(conf)
		},
	}

	configCmd := &cobra.Command{
		Use:   "showconf",
		Short: "Print the config state and exit",
		Run: func(cmd *cobra.Command, args []string) {
			o, _ := json.MarshalIndent(load(), ">", " ")
			fmt.Println(string(o))
			os.Exit(0)
		},
	}

	var proxiedOnly bool
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List unresolved pending invoices on a running gateway",
		Run: func(cmd *cobra.Command, args []string) {
			if err := ListPending(load(), admin, proxiedOnly); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		},
	}
	pendingCmd.Flags().BoolVar(&proxiedOnly, "proxied", false, "Only invoices issued by our own node")
	pendingCmd.Flags().StringVar(&admin.RemoteAdminServer, "remote", "", "Admin API base URL (default from config)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pendingCmd)

	// Execute the Cobra command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// LoadConfig reads the config file, then applies any command line flags
// that were set.
func LoadConfig(configPath string) (lnurl.Config, error) {
	conf, err := lnurl.LoadConfig(configPath)
	if err != nil {
		return conf, err
	}
	if viper.IsSet("url") {
		conf.Info.Url = viper.GetString("url")
	}
	if viper.IsSet("mint") {
		conf.Info.Mint = viper.GetString("mint")
	}
	if viper.IsSet("proxy") {
		conf.Info.Proxy = viper.GetBool("proxy")
	}
	if viper.IsSet("backend") {
		conf.Lightning.Backend = viper.GetString("backend")
	}
	if viper.IsSet("cln-path") {
		conf.Lightning.ClnPath = lnurl.CleanAndExpandPath(viper.GetString("cln-path"))
	}
	if viper.IsSet("lnd-host") {
		conf.Lightning.LndHost = viper.GetString("lnd-host")
	}
	if viper.IsSet("nsec") {
		conf.Nostr.Nsec = viper.GetString("nsec")
	}
	if viper.IsSet("relays") {
		conf.Nostr.Relays = viper.GetStringSlice("relays")
	}
	if viper.IsSet("bind") {
		conf.WebAPI.Bind = viper.GetString("bind")
	}
	if viper.IsSet("port") {
		conf.WebAPI.Port = viper.GetString("port")
	}
	if viper.IsSet("db") {
		conf.Store.DBFile = viper.GetString("db")
	}
	if viper.IsSet("log-level") {
		conf.Log.Level = viper.GetString("log-level")
	}
	return conf, nil
}
