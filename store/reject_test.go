// Copyright (c) 2019-2026 The CKB Core Authors. All rights reserved.
// Use of this source code is governed by a license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nervosnode/ckbcore/txpool"
	"github.com/nervosnode/ckbcore/types"
)

func TestRejectStoreSaveLoadRoundTrip(t *testing.T) {
	s, err := OpenRejectStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	snapshot := map[types.Hash]txpool.RejectReason{
		{0x01}: txpool.RejectDuplicate,
		{0x02}: txpool.RejectDuplicate,
	}
	require.NoError(t, s.SaveRejects(snapshot))

	loaded, err := s.LoadRejects()
	require.NoError(t, err)
	require.Equal(t, snapshot, loaded)
}

func TestRejectStoreSaveReplacesPreviousSnapshot(t *testing.T) {
	s, err := OpenRejectStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveRejects(map[types.Hash]txpool.RejectReason{{0x01}: txpool.RejectDuplicate}))
	require.NoError(t, s.SaveRejects(map[types.Hash]txpool.RejectReason{{0x02}: txpool.RejectDuplicate}))

	loaded, err := s.LoadRejects()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	_, has := loaded[types.Hash{0x02}]
	require.True(t, has)
}
