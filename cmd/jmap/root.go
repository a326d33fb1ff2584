package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/shrek82/jmap/core"
	"github.com/shrek82/jmap/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type (
	Cmd struct {
		rootCmd    *cobra.Command
		rootFlags  rootFlags
		genFlags   genFlags
		queryFlags queryFlags
		loadFlags  loadFlags
	}

	rootFlags struct {
		cfgFile   string
		debugMode bool
		driver    string
		dsn       string
	}
)

func New() *Cmd {
	return &Cmd{}
}

func (c *Cmd) Execute() {
	rootCmd := &cobra.Command{
		Use:   "jmap",
		Short: "A data mapping utility",
		Long: `A data mapping utility for generating jmap models from live tables,
running commands into JSON records and bulk loading JSON records.`,
		PersistentPreRun:  c.initConfig,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/.jmap.yaml)")
	rootCmd.PersistentFlags().BoolVar(&c.rootFlags.debugMode, "debug", false, "turn on debug output")
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.driver, "driver", "", "database driver (sqlite3, sqlite, mysql, postgres)")
	rootCmd.PersistentFlags().StringVar(&c.rootFlags.dsn, "dsn", "", "database connection string")
	viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.SetDefault("driver", "sqlite3")
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("max_open_conns", 4)
	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.getGenCmd())
	rootCmd.AddCommand(c.getQueryCmd())
	rootCmd.AddCommand(c.getLoadCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalln(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func (c *Cmd) initConfig(cmd *cobra.Command, args []string) {
	if c.rootFlags.cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(c.rootFlags.cfgFile)
	} else {
		viper.SetConfigName(".jmap")
		viper.AddConfigPath(".")

		// Search config in XDG_CONFIG_HOME directory with name ".jmap" (without extension).
		if cfgdir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(cfgdir)
		}
	}

	viper.SetEnvPrefix("JMAP")
	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))

	// If a config file is found, read it in.
	configErr := viper.ReadInConfig()
	if c.rootFlags.debugMode {
		if configErr == nil {
			log.Printf("Using config file: %s\n", viper.ConfigFileUsed())
		} else {
			log.Printf("Failed reading config file: %v\n", configErr)
		}
	}
}

func (c *Cmd) openDB() (*core.DB, error) {
	driver, dsn := viper.GetString("driver"), viper.GetString("dsn")
	if dsn == "" {
		return nil, fmt.Errorf("no dsn configured: set --dsn, dsn in the config file or JMAP_DSN")
	}
	l := logger.NewStdLogger()
	l.SetOutput(os.Stderr)
	level := logger.ParseLevel(viper.GetString("log_level"))
	if c.rootFlags.debugMode {
		level = logger.LogLevelDebug
	}
	if format := viper.GetString("log_format"); format != "" {
		l.SetFormat(logger.LogFormat(format))
	}
	db, err := core.Open(driver, dsn, &core.Options{
		MaxOpenConns:    viper.GetInt("max_open_conns"),
		ConnMaxLifetime: viper.GetDuration("conn_max_lifetime"),
		Logger:          l,
		LogLevel:        level,
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}
