package core

import (
	"errors"

	"meshkv/pkg/utils"
)

// Sentinel errors returned by store and transport operations. Callers use
// errors.Is against these rather than matching on formatted text.
var (
	ErrInvalidSignature  = errors.New("core: invalid signature")
	ErrMismatchedOwner   = errors.New("core: db_name suffix does not match signing public key")
	ErrStaleTimestamp    = errors.New("core: timestamp outside acceptance window")
	ErrKeyTooLong        = errors.New("core: key exceeds maximum length")
	ErrFieldTooLong      = errors.New("core: field exceeds maximum length")
	ErrDBNameTooLong     = errors.New("core: db_name exceeds maximum length")
	ErrValueTooLarge     = errors.New("core: value exceeds maximum size")
	ErrTypeMismatch      = errors.New("core: operation store_type mismatch with existing key")
	ErrNotFound          = errors.New("core: key not found")
	ErrDuplicateOp       = errors.New("core: operation already applied")
	ErrSupersededOp      = errors.New("core: operation superseded by a newer write")
	ErrResourceExhausted = errors.New("core: resource limit exhausted")
	ErrPeerLimitReached  = errors.New("core: max peer connections reached")
	ErrUnknownPeer       = errors.New("core: unknown peer id")
	ErrAnnouncementAuth  = errors.New("core: announcement signer does not match announced node id")
	ErrGeoMemberNotFound = errors.New("core: geo member not found")
	ErrJSONPathNotFound  = errors.New("core: json path did not resolve")
)

// WrapErr attaches context to err without discarding it from errors.Is/As
// chains, delegating to the teacher's pkg/utils.Wrap helper carried over
// unchanged.
func WrapErr(err error, msg string) error {
	return utils.Wrap(err, msg)
}
