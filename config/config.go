// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

// Package config loads the core's enumerated configuration surface
// (spec.md §6) via github.com/spf13/viper, github.com/spf13/pflag, and
// github.com/spf13/cast, mirroring the teacher's configuration stack
// (present in its go.mod for the same CLI/viper-style surface). Unknown
// keys under the core's namespace are rejected rather than silently
// ignored (spec.md §6 "enumerated option sets; unknown options are
// rejected at load").
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nervosnode/ckbcore/chainerr"
)

// Config is the core's enumerated option set (spec.md §6). Every field
// corresponds to exactly one recognized key; there is no passthrough
// map for arbitrary collaborator options.
type Config struct {
	OrphanPoolCapacity int // orphan_pool_capacity (hint): initial map sizing

	TxPoolMaxAncestors   int    // tx_pool.max_ancestors (default 125)
	TxPoolMaxSizeBytes   uint64 // tx_pool.max_tx_pool_size (bytes)
	TxPoolMaxVerifyCache int    // tx_pool.max_verify_cache (entries)
	TxPoolMinFeeRate     uint64 // tx_pool.min_fee_rate (shannons per kB)

	FilterCheckPointInterval uint64 // filter.checkpoint_interval (default 2000, must be positive)
	FilterHashesBatchSize    uint64 // filter.hashes_batch_size (default 2000)
	FilterFiltersBatchSize   uint64 // filter.filters_batch_size (default 1000)
}

// recognizedKeys is the full enumerated option set; any key loaded that
// isn't in this set is rejected.
var recognizedKeys = []string{
	"orphan_pool_capacity",
	"tx_pool.max_ancestors",
	"tx_pool.max_tx_pool_size",
	"tx_pool.max_verify_cache",
	"tx_pool.min_fee_rate",
	"filter.checkpoint_interval",
	"filter.hashes_batch_size",
	"filter.filters_batch_size",
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("orphan_pool_capacity", 0)
	v.SetDefault("tx_pool.max_ancestors", 125)
	v.SetDefault("tx_pool.max_tx_pool_size", uint64(0))
	v.SetDefault("tx_pool.max_verify_cache", 0)
	v.SetDefault("tx_pool.min_fee_rate", uint64(0))
	v.SetDefault("filter.checkpoint_interval", uint64(2000))
	v.SetDefault("filter.hashes_batch_size", uint64(2000))
	v.SetDefault("filter.filters_batch_size", uint64(1000))
	return v
}

// Load reads configuration from an optional file (if path is non-empty),
// environment variables prefixed CKBCORE_, and flags, in that increasing
// order of precedence, and validates that every key present in the
// merged view is one of the recognized options (spec.md §6).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := defaults()
	v.SetEnvPrefix("ckbcore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, chainerr.Wrap(chainerr.KindSpec, err, "read config file %s", path)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, chainerr.Wrap(chainerr.KindSpec, err, "bind flags")
		}
	}

	if err := rejectUnknownKeys(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		OrphanPoolCapacity:       cast.ToInt(v.Get("orphan_pool_capacity")),
		TxPoolMaxAncestors:       cast.ToInt(v.Get("tx_pool.max_ancestors")),
		TxPoolMaxSizeBytes:       cast.ToUint64(v.Get("tx_pool.max_tx_pool_size")),
		TxPoolMaxVerifyCache:     cast.ToInt(v.Get("tx_pool.max_verify_cache")),
		TxPoolMinFeeRate:         cast.ToUint64(v.Get("tx_pool.min_fee_rate")),
		FilterCheckPointInterval: cast.ToUint64(v.Get("filter.checkpoint_interval")),
		FilterHashesBatchSize:    cast.ToUint64(v.Get("filter.hashes_batch_size")),
		FilterFiltersBatchSize:   cast.ToUint64(v.Get("filter.filters_batch_size")),
	}

	if cfg.FilterCheckPointInterval == 0 {
		return nil, chainerr.New(chainerr.KindSpec, "filter.checkpoint_interval must be positive")
	}
	return cfg, nil
}

func rejectUnknownKeys(v *viper.Viper) error {
	recognized := make(map[string]struct{}, len(recognizedKeys))
	for _, k := range recognizedKeys {
		recognized[k] = struct{}{}
	}
	for _, k := range v.AllKeys() {
		if _, ok := recognized[k]; !ok {
			return chainerr.Wrap(chainerr.KindSpec, fmt.Errorf("%s: %w", k, chainerr.ErrUnknownOption), "unknown config option")
		}
	}
	return nil
}
