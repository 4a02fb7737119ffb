package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsolidateMounts_DropsDescendantOfAlreadyMountedAncestor(t *testing.T) {
	mounts := []Mount{
		{HostPath: "/data", Mode: ModeReadOnly},
		{HostPath: "/data/sub", Mode: ModeReadOnly},
	}
	out := consolidateMounts(mounts)
	assert.Len(t, out, 1)
	assert.Equal(t, "/data", out[0].HostPath)
}

func TestConsolidateMounts_UpgradesAncestorToReadWriteWhenDescendantNeedsIt(t *testing.T) {
	mounts := []Mount{
		{HostPath: "/data", Mode: ModeReadOnly},
		{HostPath: "/data/sub", Mode: ModeReadWrite},
	}
	out := consolidateMounts(mounts)
	assert.Len(t, out, 1)
	assert.Equal(t, ModeReadWrite, out[0].Mode)
}

func TestConsolidateMounts_IsOrderIndependent(t *testing.T) {
	a := []Mount{
		{HostPath: "/data", Mode: ModeReadOnly},
		{HostPath: "/data/sub", Mode: ModeReadWrite},
		{HostPath: "/other", Mode: ModeReadOnly},
	}
	b := []Mount{
		{HostPath: "/other", Mode: ModeReadOnly},
		{HostPath: "/data/sub", Mode: ModeReadWrite},
		{HostPath: "/data", Mode: ModeReadOnly},
	}
	assert.Equal(t, consolidateMounts(a), consolidateMounts(b))
}

func TestConsolidateMounts_KeepsUnrelatedMountsSeparate(t *testing.T) {
	mounts := []Mount{
		{HostPath: "/a", Mode: ModeReadOnly},
		{HostPath: "/b", Mode: ModeReadOnly},
	}
	out := consolidateMounts(mounts)
	assert.Len(t, out, 2)
}
