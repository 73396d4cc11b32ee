package xmss

import (
	"errors"
	"fmt"
	goLog "log"

	"go.uber.org/zap"
)

// Errors returned by this package implement this interface.
type Error interface {
	error
	Locked() bool // Is this error because something (like a file) was locked?
	Inner() error // Returns the wrapped error, if any
}

var (
	// The private key has no unused signatures left.
	ErrKeyExhausted = errors.New("private key is exhausted")

	// The private key (or its traversal state) has already been used to
	// create a signature.  Use the successor returned by Sign().
	ErrStateUsed = errors.New("private key state has already been used")

	// The stored private key or its traversal state is malformed or
	// inconsistent.
	ErrInvalidState = errors.New("invalid private key state")
)

type errorImpl struct {
	msg    string
	locked bool
	inner  error
}

func (err *errorImpl) Locked() bool  { return err.locked }
func (err *errorImpl) Inner() error  { return err.inner }
func (err *errorImpl) Unwrap() error { return err.inner }

func (err *errorImpl) Error() string {
	if err.inner != nil {
		return fmt.Sprintf("%s: %s", err.msg, err.inner.Error())
	}
	return err.msg
}

// Formats a new Error
func errorf(format string, a ...interface{}) *errorImpl {
	return &errorImpl{msg: fmt.Sprintf(format, a...)}
}

// Formats a new Error that wraps another
func wrapErrorf(err error, format string, a ...interface{}) *errorImpl {
	return &errorImpl{msg: fmt.Sprintf(format, a...), inner: err}
}

type Logger interface {
	Logf(format string, a ...interface{})
}

type dummyLogger struct{}
type stdlibLogger struct{}
type zapLogger struct{ l *zap.SugaredLogger }

func (logger *dummyLogger) Logf(format string, a ...interface{}) {}

func (logger *stdlibLogger) Logf(format string, a ...interface{}) {
	goLog.Printf(format, a...)
}

func (logger *zapLogger) Logf(format string, a ...interface{}) {
	logger.l.Debugf(format, a...)
}

var log Logger = &dummyLogger{}

// Enables logging to log package.  For more flexibility, see SetLogger().
func EnableLogging() {
	SetLogger(&stdlibLogger{})
}

// Enables logging.  Disable logging by passing nil.
//
// Use EnableLogging if you want to log to the log package.
func SetLogger(logger Logger) {
	if logger == nil {
		log = &dummyLogger{}
		return
	}
	log = logger
}

// Returns a Logger that writes to the given zap logger at debug level.
// Use as SetLogger(ZapLogger(l)).
func ZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l: l.Sugar()}
}
