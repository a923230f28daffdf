package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MobiusL/ecoinpool/build"
	"github.com/MobiusL/ecoinpool/persist"
)

// exit codes
// inspired by sysexits.h
const (
	exitCodeGeneral = 1  // Not in sysexits.h, but is standard practice.
	exitCodeUsage   = 64 // EX_USAGE in sysexits.h
)

var rootCmd *cobra.Command

// die prints its arguments to stderr, then exits the program with the
// default error code.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

// versionCmd is the handler for the command `ecoinpoold version`.
func versionCmd(*cobra.Command, []string) {
	fmt.Println("ecoinpool Pool Daemon v" + build.Version)
}

// startDaemonCmd is the handler for the root command. It starts the daemon
// and blocks until the daemon has shut down.
func startDaemonCmd(cmd *cobra.Command, _ []string) {
	// Process the config file, if one was found.
	err := loadConfig(cmd)
	if err != nil {
		die("Could not read configuration:", err)
	}

	err = startDaemon()
	if err != nil {
		die(err)
	}
}

func main() {
	rootCmd = &cobra.Command{
		Use:   os.Args[0],
		Short: "ecoinpool Pool Daemon v" + build.Version,
		Long:  "ecoinpool Pool Daemon v" + build.Version,
		Run:   startDaemonCmd,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information.",
		Run:   versionCmd,
	})

	rootCmd.Flags().String("api-addr", "localhost:9984", "which host:port the API server listens on")
	rootCmd.Flags().String("data-dir", filepath.Join(persist.HomeFolder, "ecoinpoold"), "location of the ecoinpool data folder")
	rootCmd.Flags().String("agent", "Ecoinpool-Agent", "required user agent")
	rootCmd.Flags().String("api-password", "", "password protecting the mutating API calls")
	rootCmd.Flags().String("config", "", "config file holding the pool definitions")

	if err := rootCmd.Execute(); err != nil {
		// Since no commands return errors (all commands set Command.Run
		// instead of Command.RunE), Command.Execute() should only return an
		// error on an invalid command or flag. Therefore Execute() has
		// already printed the error.
		os.Exit(exitCodeUsage)
	}
}

// loadConfig binds the flags into viper and reads the config file, if any.
func loadConfig(cmd *cobra.Command) error {
	for _, flag := range []string{"api-addr", "data-dir", "agent", "api-password"} {
		if err := viper.BindPFlag(flag, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ecoinpool")
		viper.AddConfigPath(".")
		viper.AddConfigPath(viper.GetString("data-dir"))
	}
	err = viper.ReadInConfig()
	if err != nil {
		// A missing config file is fine; the daemon can be driven entirely
		// through the API.
		if _, missing := err.(viper.ConfigFileNotFoundError); missing {
			return nil
		}
		return err
	}
	return nil
}
