// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/chainerr"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.log")
	logger, glog := New(Options{FilePath: path, Level: slog.LevelInfo})
	require.NotNil(t, glog)

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
}

func TestGlogHandlerVerbosityFiltersBelowCeiling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.log")
	logger, glog := New(Options{FilePath: path, Level: slog.LevelInfo})
	glog.Verbosity(slog.LevelWarn)

	logger.Info("should be filtered")
	logger.Warn("should pass")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "should be filtered")
	require.Contains(t, string(data), "should pass")
}

func TestVmoduleRejectsMalformedRuleset(t *testing.T) {
	_, glog := New(Options{FilePath: filepath.Join(t.TempDir(), "core.log")})
	require.Error(t, glog.Vmodule("not-a-valid-rule"))
	require.NoError(t, glog.Vmodule("chain=2,txpool=1"))
	require.NoError(t, glog.Vmodule(""))
}

// TestVmoduleOverridesCallsiteLevel exercises the Vmodule pattern this
// file's callsite (logging_test.go, matched via the "logging" package
// directory in its path) was parsed into but never applied before: a
// ceiling that would otherwise suppress Info should be bypassed once a
// matching per-callsite override lowers it.
func TestVmoduleOverridesCallsiteLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.log")
	logger, glog := New(Options{FilePath: path, Level: slog.LevelWarn})

	logger.Info("suppressed by the global ceiling")
	require.NoError(t, glog.Vmodule("logging=-4")) // slog.LevelDebug
	logger.Info("allowed by the vmodule override")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "suppressed by the global ceiling")
	require.Contains(t, string(data), "allowed by the vmodule override")
}

// TestInternalChainErrorBypassesCeiling covers spec.md §7's expectation
// that an Internal::Database/DataCorrupted failure always reaches the
// log regardless of the configured verbosity ceiling.
func TestInternalChainErrorBypassesCeiling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.log")
	logger, _ := New(Options{FilePath: path, Level: slog.LevelError})

	logger.Warn("ordinary warning below the ceiling")
	logger.Warn("database hiccup",
		"error", chainerr.Internal(chainerr.InternalDatabase, nil, "write failed"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "ordinary warning below the ceiling")
	require.Contains(t, string(data), "database hiccup")
}
