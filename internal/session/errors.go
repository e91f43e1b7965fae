package session

import "errors"

// ErrSessionActive is returned by Start when a session is already running.
var ErrSessionActive = errors.New("session already active")

// ErrNoActiveSession is returned by operations that need a live session.
var ErrNoActiveSession = errors.New("no active session")

// ErrSessionStopped is returned by Start when Stop arrived before the
// session finished connecting.
var ErrSessionStopped = errors.New("session stopped during start")
