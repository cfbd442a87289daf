// Package session scopes a container's lifecycle around pipeline execution.
//
// A [Session] drives an [Engine] through a fixed state machine:
//
//	Uninitialized -> ImageReady -> Running -> (Executing <-> Running)* -> Terminated
//
// [Start] prepares the image (building, pulling or reusing it) and starts a
// long-running container; [Session.Exec] relays a command into it; [Teardown]
// removes the container and optionally its image. A failed command returns
// the session to Running, so one failure does not destroy the session.
//
// A Session implements [shell.Executor]. Pipelines handed a session instead
// of a [shell.Host] run every command inside the container while the host
// directories they operate on are bind mounted at identical paths.
//
// [Run] is the scoped form: it starts a session, calls the given function,
// and tears the session down on every exit path, including failure, panic,
// and cancellation of the context by an interrupt.
//
// Example usage:
//
//	err := session.Run(ctx, session.NewCLI(session.Docker), image, opts, false,
//	    func(ctx context.Context, s *session.Session) error {
//	        _, err := s.Exec(ctx, shell.Command{Line: "make -j8"})
//	        return err
//	    })
package session
