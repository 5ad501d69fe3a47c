package ftpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect marks failures to establish a session
	ErrConnect = errors.New("ftp connect failed")

	// ErrAuth marks credential rejection
	ErrAuth = errors.New("ftp authentication failed")
)

// ConnectError is returned when the server cannot be reached or the
// session cannot be set up
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnect, e.Err}
}

// AuthError is returned when the server rejects the credentials
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login as %q: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() []error {
	return []error{ErrAuth, e.Err}
}

// ReplyError is an unexpected reply to a command
type ReplyError struct {
	Command string
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: unexpected reply %d %s", e.Command, e.Code, e.Message)
}

// Temporary reports a transient (4xx) reply
func (e *ReplyError) Temporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// replyCoder is satisfied by ReplyError and goftp errors
type replyCoder interface {
	Code() int
}

// ReplyCode extracts the FTP reply code carried by err, if any
func ReplyCode(err error) (int, bool) {
	var re *ReplyError
	if errors.As(err, &re) {
		return re.Code, true
	}
	var rc replyCoder
	if errors.As(err, &rc) && rc.Code() > 0 {
		return rc.Code(), true
	}
	return 0, false
}

// isAuthFailure reports replies meaning "not logged in" or "need account"
func isAuthFailure(err error) bool {
	code, ok := ReplyCode(err)
	if !ok {
		return false
	}
	return code == 530 || code == 331 || code == 332
}
