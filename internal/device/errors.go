package device

import "errors"

// ErrSensorRead indicates a driver reported a failed read.
var ErrSensorRead = errors.New("device: sensor read failed")

// SensorError wraps a failed read with the sensor that produced it.
type SensorError struct {
	Sensor string
	Err    error
}

func (e *SensorError) Error() string {
	if e.Err == nil {
		return ErrSensorRead.Error() + ": " + e.Sensor
	}
	return ErrSensorRead.Error() + ": " + e.Sensor + ": " + e.Err.Error()
}

func (e *SensorError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSensorRead}
	}
	return []error{ErrSensorRead, e.Err}
}
