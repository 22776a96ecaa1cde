package exception

import "errors"

// Journal errors
var (
	ErrJournalQueueFull          = errors.New("journal: queue full")
	ErrJournalClosed             = errors.New("journal: writer closed")
	ErrJournalNotStarted         = errors.New("journal: writer not started")
	ErrJournalAlreadyStarted     = errors.New("journal: writer already started")
	ErrJournalPayloadTooLarge    = errors.New("journal: payload too large")
	ErrJournalInvalidMagic       = errors.New("journal: invalid magic")
	ErrJournalUnsupportedVersion = errors.New("journal: unsupported record version")
	ErrJournalInvalidHeaderSize  = errors.New("journal: invalid header size")
	ErrJournalChecksumMismatch   = errors.New("journal: checksum mismatch")
	ErrJournalNilHandler         = errors.New("journal: nil playback handler")
)
