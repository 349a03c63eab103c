// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/chainerr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 125, cfg.TxPoolMaxAncestors)
	require.Equal(t, uint64(2000), cfg.FilterCheckPointInterval)
	require.Equal(t, uint64(2000), cfg.FilterHashesBatchSize)
	require.Equal(t, uint64(1000), cfg.FilterFiltersBatchSize)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tx_pool:\n  max_ancestors: 250\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 250, cfg.TxPoolMaxAncestors)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tx_pool:\n  bogus_option: 1\n"), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, chainerr.ErrUnknownOption))
}

func TestLoadRejectsNonPositiveCheckpointInterval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filter:\n  checkpoint_interval: 0\n"), 0o644))

	_, err := Load(path, nil)
	require.Error(t, err)
}
