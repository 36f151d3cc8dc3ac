// Package simbot simulates a drivetrain for the chassis controllers.
//
// A [World] integrates a planar rigid-body plant driven by first-order lagged
// motors. It hands out [Motor] values implementing [device.Motor] and an
// optional [TrackingWheel] implementing [device.RotarySensor], so a chassis
// built with package chassis cannot tell it apart from hardware.
//
//   - [State]: plant state vector
//   - [System]: ODE right-hand side, dX/dt = f(X, t)
//   - [Integrator]: one fixed step of a numerical method ([RK4], [Euler])
//   - [Faults]: seeded read failures, encoder noise and wheel slip
//
// # Example
//
//	w, _ := simbot.NewWorld(simbot.DefaultParams(), simbot.Faults{}, logger)
//	go w.Run(ctx, 5*time.Millisecond)
//	m := w.Motors()
//	c, _ := chassis.NewBuilder(logger).WithMotors(m[0], m[1]).Build()
//
// # Thread Safety
//
// All World and Motor methods may be called concurrently. Step and Run must
// not be driven from more than one goroutine at a time.
package simbot
