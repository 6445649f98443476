package keylog

import "errors"

var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrInvalidCapacity        = errors.New("invalid buffer capacity")
	ErrBufferFull             = errors.New("event buffer full")
	ErrOverflow               = errors.New("event buffer overflow: oldest event dropped")
	ErrSourceNotFound         = errors.New("source not found")
	ErrListenerNotStarted     = errors.New("listener not started")
	ErrListenerAlreadyStarted = errors.New("listener already started")
	ErrListenerStopped        = errors.New("listener stopped")
)
