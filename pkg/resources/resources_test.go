package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withsecure/see-go/pkg/types"
)

func TestNewRejectsUnknownHypervisor(t *testing.T) {
	_, err := New(types.ResourcesConfig{Hypervisor: "hyperv"}, "env-1")
	assert.ErrorIs(t, err, types.ErrResourceUnavailable)
}

func TestNewDispatchesToEachKnownDriver(t *testing.T) {
	for _, driver := range []string{DriverQEMU, DriverLXC, DriverVBox} {
		r, err := New(types.ResourcesConfig{Hypervisor: driver}, "env-1")
		require.NoError(t, err, "New(%q)", driver)
		require.NotNil(t, r, "New(%q)", driver)
		assert.Nil(t, r.Domain(), "New(%q) returned a Resources with a Domain before Allocate", driver)
	}
}
