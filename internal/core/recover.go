package core

import (
	"runtime"
)

// safeInvoke runs fn and converts a returned error or a panic into a
// *HandlerError tagged with source and kind.
func safeInvoke(source, kind string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)
			err = &HandlerError{Source: source, Kind: kind, Panic: r, Stack: string(stack[:n])}
		}
	}()

	if e := fn(); e != nil {
		return &HandlerError{Source: source, Kind: kind, Err: e}
	}
	return nil
}

// safeChat is safeInvoke for free-text listeners, which also report whether
// they consumed the message. A failing listener never counts as handled.
func safeChat(source string, fn ChatFunc, c *Context) (handled bool, err error) {
	err = safeInvoke(source, "chat", func() error {
		h, e := fn(c)
		handled = h
		return e
	})
	if err != nil {
		return false, err
	}
	return handled, nil
}
