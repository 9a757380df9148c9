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

// Package config loads and saves the node's local configuration.
package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
)

// ConfigFilename is the name of the config file in the data directory.
const ConfigFilename = "config.json"

var defaultLocal = GetVersionedDefaultLocalConfig(getLatestConfigVersion())

// GetDefaultLocal returns a copy of the current defaultLocal config
func GetDefaultLocal() Local {
	cfg := defaultLocal
	cfg.DeniedInlineSenders = append([]string{}, defaultLocal.DeniedInlineSenders...)
	return cfg
}

// LoadConfigFromDisk returns a Local config structure based on merging the defaults
// with settings loaded from the config file from the custom dir. If the custom file
// cannot be loaded, the default config is returned (with the error from loading the
// custom file).
func LoadConfigFromDisk(custom string) (c Local, err error) {
	c, _, err = loadConfigFromFile(filepath.Join(custom, ConfigFilename))
	return
}

func loadConfigFromFile(configFile string) (c Local, migrations []MigrationResult, err error) {
	c = GetDefaultLocal()
	// a file without a version is assumed to be version zero
	c.Version = 0
	c, err = mergeConfigFromFile(configFile, c)
	if err != nil {
		return GetDefaultLocal(), nil, err
	}
	return migrate(c)
}

func mergeConfigFromFile(configpath string, source Local) (Local, error) {
	f, err := os.Open(configpath)
	if err != nil {
		return source, err
	}
	defer f.Close()

	err = loadConfig(f, &source)
	return source, err
}

func loadConfig(reader io.Reader, config *Local) error {
	dec := json.NewDecoder(reader)
	return dec.Decode(config)
}

// SaveToDisk writes the Local settings into a root/ConfigFilename file
func (cfg Local) SaveToDisk(root string) error {
	configpath := filepath.Join(root, ConfigFilename)
	filename := os.ExpandEnv(configpath)
	return cfg.SaveToFile(filename)
}

// SaveToFile writes only the settings that differ from the defaults, plus the
// version, to filename.
func (cfg Local) SaveToFile(filename string) error {
	values := GetNonDefaultConfigValues(cfg, fieldNames())
	values["Version"] = cfg.Version
	data, err := json.MarshalIndent(values, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, append(data, '\n'), 0600)
}

func fieldNames() []string {
	localType := reflect.TypeFor[Local]()
	names := make([]string, 0, localType.NumField())
	for i := 0; i < localType.NumField(); i++ {
		names = append(names, localType.Field(i).Name)
	}
	return names
}

// GetNonDefaultConfigValues takes a provided cfg and list of field names, and returns a map of all values in cfg
// that are not set to the default for the latest version.
func GetNonDefaultConfigValues(cfg Local, fieldNames []string) map[string]interface{} {
	defCfg := GetDefaultLocal()
	ret := make(map[string]interface{})

	for _, fieldName := range fieldNames {
		defField := reflect.ValueOf(defCfg).FieldByName(fieldName)
		if !defField.IsValid() {
			continue
		}
		cfgField := reflect.ValueOf(cfg).FieldByName(fieldName)
		if !cfgField.IsValid() {
			continue
		}
		if !reflect.DeepEqual(defField.Interface(), cfgField.Interface()) {
			ret[fieldName] = cfgField.Interface()
		}
	}
	return ret
}
