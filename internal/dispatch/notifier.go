package dispatch

import "github.com/chachabrian/mooveit-dispatch/internal/models"

// Notifier delivers ride events to connected clients. Calls happen after
// the state change is committed and must return without waiting on
// delivery; failures are the implementation's to log.
type Notifier interface {
	// RideCreated goes to the driver pool.
	RideCreated(ride *models.RideRequest)
	// The following go to the passenger and the assigned driver.
	RideAssigned(ride *models.RideRequest)
	RideStarted(ride *models.RideRequest)
	RideCompleted(ride *models.RideRequest)
	RideCancelled(ride *models.RideRequest, cancelledBy, reason string)
	RideStatusChanged(ride *models.RideRequest, changedBy string)
	// DriverLocationUpdated goes to the passenger of each ride only.
	DriverLocationUpdated(loc *models.DriverLocation, rides []*models.RideRequest)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) RideCreated(*models.RideRequest) {}
func (NopNotifier) RideAssigned(*models.RideRequest) {}
func (NopNotifier) RideStarted(*models.RideRequest) {}
func (NopNotifier) RideCompleted(*models.RideRequest) {}
func (NopNotifier) RideCancelled(*models.RideRequest, string, string) {}
func (NopNotifier) RideStatusChanged(*models.RideRequest, string) {}
func (NopNotifier) DriverLocationUpdated(*models.DriverLocation, []*models.RideRequest) {}
