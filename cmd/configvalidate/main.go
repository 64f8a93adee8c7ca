package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/stabnet/muxsweep/internal/config"
	"github.com/stabnet/muxsweep/internal/version"
)

func main() {
	var (
		versionFlag = pflag.Bool("version", false, "Show version and exit")
		configFile  = pflag.String("config", "", "Configuration file to validate")
		helpFlag    = pflag.BoolP("help", "h", false, "Show help")
	)

	pflag.Parse()

	if *versionFlag {
		version.ShowVersion()
		os.Exit(0)
	}

	if *helpFlag {
		usage()
		os.Exit(0)
	}

	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: --config flag is required\n\n") //nolint:errcheck
		usage()
		os.Exit(1)
	}

	if _, err := os.Stat(*configFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: Configuration file %s does not exist\n", *configFile) //nolint:errcheck
		os.Exit(1)
	}

	if err := validateConfig(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err) //nolint:errcheck
		os.Exit(1)
	}

	fmt.Printf("✓ Configuration file %s is valid\n", *configFile)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s --config FILE\n\n", os.Args[0])                 //nolint:errcheck
	fmt.Fprintf(os.Stderr, "A tool for validating muxsweep configuration files.\n\n") //nolint:errcheck
	fmt.Fprintf(os.Stderr, "Options:\n")                                              //nolint:errcheck
	pflag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExample:\n")                                               //nolint:errcheck
	fmt.Fprintf(os.Stderr, "  %s --config %s\n", os.Args[0], config.DefaultConfigFile()) //nolint:errcheck
}

func validateConfig(configFile string) error {
	cfg := config.NewConfig()
	cfg.ConfigFile = configFile

	// Add flags but don't parse them - we just need them for the config loader
	cfg.AddFlags(pflag.NewFlagSet("muxsweep", pflag.ContinueOnError))

	if err := cfg.LoadConfig(); err != nil {
		return err
	}

	cards, err := cfg.CardSet()
	if err != nil {
		return err
	}

	if len(cards.Cards()) == 0 {
		return fmt.Errorf("no multiplexer cards configured")
	}
	if !cfg.HasDMM() {
		fmt.Println("note: no dmm configured; measure commands will be unavailable")
	}

	return nil
}
