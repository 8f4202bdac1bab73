package core

// Wrap applies mws to run. The first middleware is the outermost.
func Wrap(run RunFunc, mws ...Middleware) RunFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		run = mws[i](run)
	}
	return run
}

// WithGroupOnly refuses to run the command outside group threads.
func WithGroupOnly() Middleware {
	return func(next RunFunc) RunFunc {
		return func(c *Context) error {
			if !c.IsGroup {
				_, err := c.Reply("This command only works in group chats.")
				return err
			}
			return next(c)
		}
	}
}

// WithPrivateOnly refuses to run the command inside group threads.
func WithPrivateOnly() Middleware {
	return func(next RunFunc) RunFunc {
		return func(c *Context) error {
			if c.IsGroup {
				_, err := c.Reply("This command only works in private chats.")
				return err
			}
			return next(c)
		}
	}
}

// WithMinArgs replies with the usage line when fewer than n arguments are given.
func WithMinArgs(n int) Middleware {
	return func(next RunFunc) RunFunc {
		return func(c *Context) error {
			if len(c.Args) < n {
				usage := ""
				if c.Command != nil {
					usage = c.Command.Usage
				}
				if usage == "" {
					_, err := c.Reply("Missing arguments.")
					return err
				}
				_, err := c.Reply("Usage: " + c.Prefix + usage)
				return err
			}
			return next(c)
		}
	}
}
