// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/algorand/go-twochain/logging"
)

const dataDirEnv = "TWOCHAIN_DATA"

var log = logging.Base()

var dataDir string

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "datadir", "d", "", "Data directory, defaults to $"+dataDirEnv+"; empty keeps everything in memory")
	rootCmd.AddCommand(runLocalCmd)
	rootCmd.AddCommand(configCmd)
}

var rootCmd = &cobra.Command{
	Use:   "twochaind",
	Short: "Two-chain BFT consensus node",
	Long:  `twochaind runs validators of a round-based two-chain BFT consensus protocol.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.HelpFunc()(cmd, args)
	},
}

func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	return os.Getenv(dataDirEnv)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
