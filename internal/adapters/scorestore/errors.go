package scorestore

import "golang.org/x/xerrors"

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = xerrors.New("unknown store driver")

	// ErrInvalidRecord is returned when a record without a player id is upserted.
	ErrInvalidRecord = xerrors.New("invalid record")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = xerrors.New("store closed")

	// ErrMissingDSN is returned when a SQL backend is opened without a DSN.
	ErrMissingDSN = xerrors.New("missing dsn")
)
