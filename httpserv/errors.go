package httpserv

import "errors"

var (
	// ErrClosed is returned by the receive methods once the server has
	// been unblocked and the inbound queue has drained.
	ErrClosed = errors.New("httpserv: server closed")

	// ErrAlreadyResponded is returned when a request is answered twice.
	ErrAlreadyResponded = errors.New("httpserv: request already responded")

	// ErrNotUpgradable is returned by Request.Upgrade when the client did
	// not ask for a connection upgrade.
	ErrNotUpgradable = errors.New("httpserv: request did not ask for upgrade")
)
