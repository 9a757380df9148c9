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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

func TestDefaults(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := GetDefaultLocal()
	require.Equal(t, getLatestConfigVersion(), cfg.Version)
	require.Equal(t, uint32(1), cfg.Version)
	require.Equal(t, time.Second, cfg.RoundInitialTimeout)
	require.Equal(t, 1.2, cfg.RoundTimeoutBackoffBase)
	require.Equal(t, 6, cfg.RoundTimeoutBackoffMaxExponent)
	require.Equal(t, 30*time.Millisecond, cfg.BackPressurePollInterval)
	require.Equal(t, 5, cfg.FastShareCacheSize)
	require.True(t, cfg.ValidatorTxnsEnabled)
	require.True(t, cfg.EnableRoundTimeoutMsg)
	require.NotNil(t, cfg.DeniedInlineSenders)
	require.Empty(t, cfg.DeniedInlineSenders)

	v0 := GetVersionedDefaultLocalConfig(0)
	require.False(t, v0.ValidatorTxnsEnabled)
	require.False(t, v0.EnableRoundTimeoutMsg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	cfg := GetDefaultLocal()
	cfg.SyncOnly = true
	cfg.RoundInitialTimeout = 3 * time.Second
	cfg.DeniedInlineSenders = []string{"A", "B"}
	require.NoError(t, cfg.SaveToDisk(dir))

	loaded, err := LoadConfigFromDisk(dir)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestSaveWritesOnlyChangedValues(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	cfg := GetDefaultLocal()
	cfg.ProposerElectionType = "weighted"
	require.NoError(t, cfg.SaveToDisk(dir))

	data, err := os.ReadFile(filepath.Join(dir, ConfigFilename))
	require.NoError(t, err)
	require.Contains(t, string(data), "ProposerElectionType")
	require.Contains(t, string(data), "Version")
	require.NotContains(t, string(data), "RoundInitialTimeout")
}

func TestLoadMissingFile(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg, err := LoadConfigFromDisk(t.TempDir())
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
	require.Equal(t, GetDefaultLocal(), cfg)
}

func TestMigrateVersionZero(t *testing.T) {
	partitiontest.PartitionTest(t)

	dir := t.TempDir()
	// an old file with no version, one field left at its old default and
	// one changed by the operator
	body := `{"ValidatorTxnsEnabled": false, "EnableRoundTimeoutMsg": false, "SyncOnly": true}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(body), 0600))

	cfg, migrations, err := loadConfigFromFile(filepath.Join(dir, ConfigFilename))
	require.NoError(t, err)
	require.Equal(t, uint32(1), cfg.Version)
	require.True(t, cfg.ValidatorTxnsEnabled)
	require.True(t, cfg.EnableRoundTimeoutMsg)
	require.True(t, cfg.SyncOnly)
	require.Len(t, migrations, 2)

	// an explicit current version keeps the operator's choice
	body = `{"Version": 1, "ValidatorTxnsEnabled": false}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(body), 0600))
	cfg, migrations, err = loadConfigFromFile(filepath.Join(dir, ConfigFilename))
	require.NoError(t, err)
	require.False(t, cfg.ValidatorTxnsEnabled)
	require.Empty(t, migrations)
}

func TestMigrateRejectsFutureVersion(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := GetDefaultLocal()
	cfg.Version = 99
	_, _, err := migrate(cfg)
	require.Error(t, err)
}

func TestDeniedSenders(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := GetDefaultLocal()
	cfg.DeniedInlineSenders = []string{"X", "Y", "X"}
	set := cfg.DeniedSenders()
	require.Len(t, set, 2)
	require.Contains(t, set, "X")
}
