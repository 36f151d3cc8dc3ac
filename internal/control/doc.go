// Package control provides the closed-loop controllers used by the chassis.
//
// Every controller implements [Controller]:
//
//   - [PIDController]: iterative position PID, stepped by its owner loop
//   - [VelPIDController]: iterative velocity PID on top of [VelMath]
//   - [IntegratedController]: hands targets to a motor's onboard controller
//   - [MotorVelocityController]: steps a velocity controller and drives a motor
//
// # Usage
//
//	tu := timeutil.DefaultFactory().Create()
//	pid := control.NewPIDController(control.Gains{Kp: 0.001}, tu, filter.NewPassthrough())
//	pid.SetTarget(1400)
//	for !pid.IsSettled() {
//		out := pid.Step(readEncoder())
//		drive(out)
//	}
//
// Controllers are not safe for concurrent use; each one belongs to the loop
// that steps it.
package control
