/*
Copyright 2024 The CDB Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bitmap

import (
	"math/rand"
	"path/filepath"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"

	"github.com/clarkok/cdb/pkg/block"
)

func newAllocator(t *testing.T) *Allocator {
	t.Helper()
	dev, err := block.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	a, err := Open(dev, 1)
	require.NoError(t, err)
	require.NoError(t, a.Reset())
	return a
}

func TestFreshFileFirstAllocationAfterReservedZone(t *testing.T) {
	a := newAllocator(t)
	idx, err := a.AllocateBlocks(1, 0)
	require.NoError(t, err)
	require.Greater(t, uint32(idx), uint32(1))

	a.FreeBlocks(idx, 1)
	idx2, err := a.AllocateBlocks(1, 0)
	require.NoError(t, err)
	require.Equal(t, idx, idx2)
}

func TestAllocateRejectsOutOfRangeLength(t *testing.T) {
	a := newAllocator(t)
	_, err := a.AllocateBlocks(0, 0)
	require.Error(t, err)
	_, err = a.AllocateBlocks(33, 0)
	require.Error(t, err)
}

func TestAllocatorRoundTripProperty(t *testing.T) {
	f := func(seed int64) bool {
		a := newAllocator(t)
		rng := rand.New(rand.NewSource(seed))

		var live []block.Index
		for i := 0; i < 200; i++ {
			if len(live) > 0 && rng.Intn(2) == 0 {
				j := rng.Intn(len(live))
				a.FreeBlocks(live[j], 1)
				live = append(live[:j], live[j+1:]...)
				continue
			}
			idx, err := a.AllocateBlocks(1, 0)
			if err != nil {
				return false
			}
			live = append(live, idx)
		}

		for s := 0; s < a.SectionCount(); s++ {
			if a.InUseCount(s) != a.Popcount(s) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 20}))
}
