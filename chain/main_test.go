// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package chain

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies the reducer goroutine spawned by Service.Run (see
// TestChainServiceSubmitAndRun) always exits once its context is
// cancelled, the same check the teacher runs around goroutine-spawning
// tests in its own suites.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
