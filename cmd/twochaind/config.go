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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/algorand/go-twochain/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the default configuration to the data directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveDataDir()
		if dir == "" {
			return fmt.Errorf("no data directory, use -d or $%s", dataDirEnv)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		cfg, err := config.LoadConfigFromDisk(dir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := cfg.SaveToDisk(dir); err != nil {
			return err
		}
		fmt.Println("wrote", filepath.Join(dir, config.ConfigFilename))
		return nil
	},
}
