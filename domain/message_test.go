package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeliveryStatus_CanAdvanceTo(t *testing.T) {
	req := require.New(t)

	// Forward transitions are allowed
	req.True(StatusSent.CanAdvanceTo(StatusDelivered))
	req.True(StatusSent.CanAdvanceTo(StatusRead))
	req.True(StatusDelivered.CanAdvanceTo(StatusRead))

	// Same status is a regression
	req.False(StatusSent.CanAdvanceTo(StatusSent))
	req.False(StatusDelivered.CanAdvanceTo(StatusDelivered))
	req.False(StatusRead.CanAdvanceTo(StatusRead))

	// Backward transitions are regressions
	req.False(StatusDelivered.CanAdvanceTo(StatusSent))
	req.False(StatusRead.CanAdvanceTo(StatusDelivered))
	req.False(StatusRead.CanAdvanceTo(StatusSent))
}

func TestDeliveryStatus_UnknownNeverAdvances(t *testing.T) {
	req := require.New(t)

	req.False(DeliveryStatus("bogus").CanAdvanceTo(StatusRead))
	req.False(StatusSent.CanAdvanceTo(DeliveryStatus("bogus")))
}
