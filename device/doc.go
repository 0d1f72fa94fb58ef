// Package device drives the temperature simulator instrument: a thermocouple
// signal source that also measures a thermocouple input and its ambient reference.
//
// A Session binds to the instrument with discovery, then runs every operation
// through a scheduler so concurrent callers share the link safely:
//
//	sess, _ := device.NewSession(ctx, tr)
//	if _, err := sess.Connect(ctx); err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	fw, _ := sess.ReqFirmwareVersion(ctx)
//	_ = sess.SetOutputConfig(device.SensorJ, 300, "A", false)
//	_ = sess.SendOutputConfig(ctx)
//	reading, _ := sess.ReqInputValue(ctx, true)
//
// Instrument constants (register map, probe frames, value ranges, timing) are
// held by an immutable Profile.
package device
