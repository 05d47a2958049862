package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorekeep/archivist/internal/keyring"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		value := args[1]

		s := getStore()
		defer s.Close()

		if err := s.SetConfig(key, value); err != nil {
			fmt.Printf("Failed to set config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration saved: %s\n", key)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]

		s := getStore()
		defer s.Close()

		val, err := s.GetConfig(key)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if val == "" {
			fmt.Println("(not set)")
		} else {
			fmt.Println(val)
		}
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage provider API keys",
}

var keySetCmd = &cobra.Command{
	Use:   "set [provider] [api-key]",
	Short: "Store a provider API key, encrypted at rest",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := getStore()
		defer s.Close()

		kr, err := keyring.New(s)
		if err != nil {
			fmt.Printf("Failed to open keyring: %v\n", err)
			os.Exit(1)
		}
		if err := kr.SetKey(args[0], args[1]); err != nil {
			fmt.Printf("Failed to store key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Stored key for %s: %s\n", args[0], keyring.MaskSecret(args[1]))
	},
}

var keyGetCmd = &cobra.Command{
	Use:   "get [provider]",
	Short: "Show the stored API key, masked",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := getStore()
		defer s.Close()

		kr, err := keyring.New(s)
		if err != nil {
			fmt.Printf("Failed to open keyring: %v\n", err)
			os.Exit(1)
		}
		key, err := kr.GetKey(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(keyring.MaskSecret(key))
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyGetCmd)
}
