package engine

import "errors"

var (
	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("benchmark run already in progress")
	// ErrEndpointUnreachable indicates no worker of a phase ever reached the endpoint.
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	// ErrAborted is the cancellation cause set by Orchestrator.Abort.
	ErrAborted = errors.New("aborted")
)

// isPermanent reports whether err is a transport failure that retrying
// cannot fix, such as the endpoint rejecting the request.
func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}
