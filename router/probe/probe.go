// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package probe verifies that the local router actually accepts and
// forwards client connections. The systemd unit reports active well before
// the router is connectable, so callers wrap Check in retries.
package probe

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/openstack/charm-mysql-router/relation"
)

var logger = loggo.GetLogger("mysqlrouter.probe")

// MySQL client error codes. The two below are what the router emits while
// it is still starting up and not yet accepting the initial handshake.
const (
	// CodeCannotConnect is CR_CONN_HOST_ERROR.
	CodeCannotConnect = 2003
	// CodeServerLost is CR_SERVER_LOST.
	CodeServerLost = 2013

	// codeConnectionError is CR_CONNECTION_ERROR, used for failures that
	// match no more specific classification.
	codeConnectionError = 2002
)

// retryableCodes mean "not accepting connections yet" rather than a real
// authentication or protocol problem.
var retryableCodes = set.NewInts(CodeCannotConnect, CodeServerLost)

// Error is a connectivity failure carrying the MySQL error code it was
// classified under, so retry policy can match on the code rather than on
// driver-specific error types.
type Error struct {
	Code    int
	Message string
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("mysql connection failed (%d): %s", e.Code, e.Message)
}

// IsError reports whether err is a connectivity probe failure.
func IsError(err error) bool {
	_, ok := errors.Cause(err).(*Error)
	return ok
}

const (
	retryAttempts = 5
	retryDelay    = 10 * time.Second
)

// Probe opens verification connections to the router's client endpoint
// using the broker's cluster credentials.
type Probe struct {
	// Address and Port locate the router's client endpoint.
	Address string
	Port    int
	// Clock paces the retry loop.
	Clock clock.Clock
	// RetryDelay is the fixed delay between RetryingCheck attempts.
	RetryDelay time.Duration

	open func(dsn string) error
}

// New returns a Probe for the router endpoint at address and port.
func New(address string, port int) *Probe {
	return &Probe{
		Address:    address,
		Port:       port,
		Clock:      clock.WallClock,
		RetryDelay: retryDelay,
		open:       openConnection,
	}
}

func openConnection(dsn string) error {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Ping()
}

func (p *Probe) dsn(creds relation.ClusterCredentials) string {
	cfg := mysql.NewConfig()
	cfg.User = creds.Username
	cfg.Passwd = creds.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
	cfg.Timeout = creds.ConnectTimeout
	return cfg.FormatDSN()
}

// Verify opens a single verification connection, classifying any failure
// under a MySQL error code.
func (p *Probe) Verify(creds relation.ClusterCredentials) error {
	if err := p.open(p.dsn(creds)); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) *Error {
	switch e := err.(type) {
	case *Error:
		return e
	case *mysql.MySQLError:
		return &Error{Code: int(e.Number), Message: e.Message}
	case *net.OpError:
		return &Error{Code: CodeCannotConnect, Message: e.Error()}
	}
	switch err {
	case io.EOF, io.ErrUnexpectedEOF, mysql.ErrInvalidConn, driver.ErrBadConn:
		// The server dropped the connection before completing the
		// handshake.
		return &Error{Code: CodeServerLost, Message: err.Error()}
	}
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return &Error{Code: CodeCannotConnect, Message: err.Error()}
	}
	return &Error{Code: codeConnectionError, Message: err.Error()}
}

// Check reports whether the router is connectable. Failures whose code is
// in reraiseOn are returned as errors so the caller's retry policy can see
// them; all other failures are logged and reported as false.
func (p *Probe) Check(creds relation.ClusterCredentials, reraiseOn set.Ints) (bool, error) {
	err := p.Verify(creds)
	if err == nil {
		return true, nil
	}
	if perr, isProbe := errors.Cause(err).(*Error); isProbe && reraiseOn.Contains(perr.Code) {
		return false, errors.Trace(err)
	}
	logger.Debugf("could not connect to the router: %v", err)
	return false, nil
}

// RetryingCheck wraps Check, retrying the codes that mean the router is
// not yet accepting the initial handshake with a fixed delay between
// attempts. The final failure is re-raised; a non-retryable failure is
// reported as false without error, as from Check.
func (p *Probe) RetryingCheck(creds relation.ClusterCredentials) (bool, error) {
	var ok bool
	err := retry.Call(retry.CallArgs{
		Clock:    p.Clock,
		Attempts: retryAttempts,
		Delay:    p.RetryDelay,
		Func: func() error {
			var err error
			ok, err = p.Check(creds, retryableCodes)
			return err
		},
		NotifyFunc: func(lastError error, attempt int) {
			logger.Debugf("router not yet connectable (attempt %d of %d): %v",
				attempt, retryAttempts, lastError)
		},
	})
	if err != nil {
		return false, errors.Trace(retry.LastError(err))
	}
	return ok, nil
}
