package postmortem

import (
	"context"

	"github.com/pkg/errors"
)

// Guard calls a function and dumps the stack and locals when the function
// panics or returns an error.
type Guard struct {
	context      context.Context
	dumper       *Dumper
	recoverPanic bool
	dumpErrors   bool
}

// New creates a new Guard for the context. It uses the Default dumper,
// re-panics after dumping a panic and dumps returned errors.
func New(ctx context.Context) Guard {
	return Guard{
		context:    ctx,
		dumpErrors: true,
	}
}

// WithDumper sets the dumper used instead of Default.
func (g Guard) WithDumper(d *Dumper) Guard {
	g.dumper = d
	return g
}

// WithDumpPath makes the guard write its dumps to path.
// It panics if the path cannot be resolved.
func (g Guard) WithDumpPath(path string) Guard {
	d, err := g.dumperOrDefault().WithDumpPath(path)
	if err != nil {
		panic("Guard dump path: " + err.Error())
	}
	g.dumper = d
	return g
}

// WithPanicRecovery enables or disables recovering from panics. Default is false.
// When enabled, Call returns an error for the panic after dumping it.
func (g Guard) WithPanicRecovery(enabled bool) Guard {
	g.recoverPanic = enabled
	return g
}

// WithErrorDumps enables or disables dumping when the function returns an error. Default is true.
func (g Guard) WithErrorDumps(enabled bool) Guard {
	g.dumpErrors = enabled
	return g
}

func (g Guard) dumperOrDefault() *Dumper {
	if g.dumper != nil {
		return g.dumper
	}
	return Default()
}

// Call calls the function with a context that records the scopes entered below it.
// A returned error is passed back unchanged after dumping.
// If the dump cannot be written, a *DumpError is returned instead, or,
// for a panic without recovery, is the value of the new panic.
func (g Guard) Call(f func(ctx context.Context) error) (callErr error) {
	t := newTrail(trailFromContext(g.context))
	ctx := context.WithValue(g.context, trailKey, t)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		path, err := g.dumperOrDefault().dump(failureStack(callers(), t), r)
		if err != nil {
			dumpErr := &DumpError{Err: err, Failure: r}
			LoggerFromContext(ctx).Log(reporting(ctx), LevelFatal, "Dump failed", "err", dumpErr)
			// the original value stays reachable through Unwrap
			if !g.recoverPanic {
				panic(dumpErr)
			}
			callErr = dumpErr
			return
		}
		report(ctx, LoggerFromContext(ctx), LevelFatal, path)
		if !g.recoverPanic {
			panic(r)
		}
		callErr = recovered(r)
	}()
	err := f(ctx)
	if err == nil || !g.dumpErrors {
		return err
	}
	path, dumpErr := g.dumperOrDefault().dump(failureStack(errorFrames(err), t), err)
	if dumpErr != nil {
		return &DumpError{Err: dumpErr, Failure: err}
	}
	report(ctx, LoggerFromContext(ctx), LevelFatal, path)
	return err
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, "panic")
	}
	return errors.Errorf("panic: %v", r)
}
