// Package resilience assembles the circuit breaker manager, the platform
// health monitor, and the adapter version manager into one unit with a
// single configuration surface.
//
// The subpackages remain usable on their own; this package only wires the
// default topology: breaker outcomes feed the health monitor, the version
// manager reads the monitor, and open breakers trigger an immediate
// rollback evaluation.
//
//	core, err := resilience.New(resilience.Config{Logger: logger, Repository: repo})
//	if err != nil {
//		return err
//	}
//	if err := core.Start(ctx); err != nil {
//		return err
//	}
//	defer core.Stop()
package resilience
