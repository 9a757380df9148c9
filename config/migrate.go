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

package config

import (
	"fmt"
	"reflect"
	"strconv"
)

// MigrationResult represents a single field migration from one version to another
type MigrationResult struct {
	FieldName              string
	OldVersion, NewVersion uint32
	OldValue, NewValue     any
}

func migrate(cfg Local) (newCfg Local, migrations []MigrationResult, err error) {
	newCfg = cfg
	latestConfigVersion := getLatestConfigVersion()

	if cfg.Version > latestConfigVersion {
		err = fmt.Errorf("unexpected config version: %d", cfg.Version)
		return
	}

	localType := reflect.TypeFor[Local]()
	for newCfg.Version < latestConfigVersion {
		defaultCurrentConfig := GetVersionedDefaultLocalConfig(newCfg.Version)
		nextVersion := newCfg.Version + 1
		for fieldNum := 0; fieldNum < localType.NumField(); fieldNum++ {
			field := localType.Field(fieldNum)
			nextVersionDefaultValue, hasTag := field.Tag.Lookup(fmt.Sprintf("version[%d]", nextVersion))
			if !hasTag || nextVersionDefaultValue == "" {
				continue
			}
			cur := reflect.ValueOf(&newCfg).Elem().FieldByName(field.Name)
			def := reflect.ValueOf(&defaultCurrentConfig).Elem().FieldByName(field.Name)
			// only fields still holding the previous default move to the new one
			if !reflect.DeepEqual(cur.Interface(), def.Interface()) {
				continue
			}
			oldValue := cur.Interface()
			if err = setFromTag(cur, field.Name, nextVersionDefaultValue); err != nil {
				return
			}
			if field.Name != "Version" {
				migrations = append(migrations, MigrationResult{
					FieldName:  field.Name,
					OldVersion: nextVersion - 1,
					NewVersion: nextVersion,
					OldValue:   oldValue,
					NewValue:   cur.Interface(),
				})
			}
		}
	}
	return
}

func setFromTag(v reflect.Value, name string, tag string) error {
	switch v.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(tag)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(tag, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(tag, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(u)
	case reflect.Float64:
		f, err := strconv.ParseFloat(tag, 64)
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.String:
		v.SetString(tag)
	default:
		return fmt.Errorf("unsupported data type (%s) encountered when reflecting on config.Local datatype %s", v.Kind(), name)
	}
	return nil
}

func getLatestConfigVersion() uint32 {
	versionField, found := reflect.TypeFor[Local]().FieldByName("Version")
	if !found {
		return 0
	}
	version := uint32(0)
	for {
		_, hasTag := versionField.Tag.Lookup(fmt.Sprintf("version[%d]", version+1))
		if !hasTag {
			return version
		}
		version++
	}
}

// GetVersionedDefaultLocalConfig returns the default config for the given version.
func GetVersionedDefaultLocalConfig(version uint32) (local Local) {
	if version > 0 {
		local = GetVersionedDefaultLocalConfig(version - 1)
	}
	localType := reflect.TypeFor[Local]()
	for fieldNum := 0; fieldNum < localType.NumField(); fieldNum++ {
		field := localType.Field(fieldNum)
		versionDefaultValue, hasTag := field.Tag.Lookup(fmt.Sprintf("version[%d]", version))
		if !hasTag {
			continue
		}
		v := reflect.ValueOf(&local).Elem().FieldByName(field.Name)
		if versionDefaultValue == "" {
			// empty rather than nil collections
			switch v.Kind() {
			case reflect.Map:
				v.Set(reflect.MakeMap(field.Type))
			case reflect.Slice:
				v.Set(reflect.MakeSlice(field.Type, 0, 0))
			default:
			}
			continue
		}
		if err := setFromTag(v, field.Name, versionDefaultValue); err != nil {
			panic(err)
		}
	}
	return
}
