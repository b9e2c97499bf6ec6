package models

import "github.com/inference-sim/cpsim/sim"

// Dynamics moves the sun along a fixed straight line.
type Dynamics struct{}

// SunPosition returns the sun position at the current virtual time.
func (*Dynamics) SunPosition(_ struct{}, cx *sim.Context) (Vec3, error) {
	t := cx.Now().Seconds()
	return Vec3{2.3 + 5.7*t, 1.1 * t, 1.3 * t}, nil
}
