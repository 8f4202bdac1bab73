package core

import (
	"strings"
	"time"
)

// WithCommandLogger logs every direct invocation after it ran, with its
// arguments, duration and error.
func WithCommandLogger() Middleware {
	return func(next RunFunc) RunFunc {
		return func(c *Context) error {
			start := time.Now()
			err := next(c)

			l := c.Logger()
			e := l.Info()
			if err != nil {
				e = l.Warn().Err(err)
			}
			e.Str("args", strings.Join(c.Args, " ")).
				Bool("group", c.IsGroup).
				Dur("took", time.Since(start)).
				Msg("command executed")
			return err
		}
	}
}
