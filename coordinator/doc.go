// Package coordinator ties one trigger-board link and one sensor adapter
// into a synchronized capture session.
//
// A coordinator holds at most one link. SetNetLink and SetSerialLink each
// replace whatever link was configured before, so the last call wins and
// only one transport is ever active.
//
// Start order:
//
//  1. the link opens and its receive and transmit loops start
//  2. warm-up: the coordinator waits (2s by default) while clock sync
//     converges, measuring trigger edge rate and jitter from the bus
//  3. the adapter is initialized and started; a failed initialization gets
//     one sensor.Restart before Start reports ErrSensorInit
//
// Stop reverses this: the link stops first so no new trigger times arrive,
// then the adapter stops.
//
// Example:
//
//	bus := eventbus.New(eventbus.Config{})
//	reg := trigger.NewRegistry(bus)
//	c := coordinator.New(reg, bus)
//	if err := c.SetNetLink("192.168.1.188", 8888); err != nil {
//	    return err
//	}
//	c.UseSensor(adapter)
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	defer c.Stop()
package coordinator
