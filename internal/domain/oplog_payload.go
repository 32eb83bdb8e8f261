package domain

import (
	"crypto/md5"
	"fmt"
)

// OplogPayload is the inline-or-externalized byte payload carried by oplog
// entries such as ImportedFunctionInvoked results and ExportedFunctionInvoked
// parameters. Payloads above the configured max_payload_size are promoted to
// blob storage and referenced by content hash instead of being embedded.
type OplogPayload struct {
	Inline     []byte
	External   bool
	PayloadID  PayloadID
	MD5        [16]byte
}

// NewInlinePayload wraps data as an inline payload.
func NewInlinePayload(data []byte) OplogPayload {
	cp := make([]byte, len(data))
	copy(cp, data)
	return OplogPayload{Inline: cp}
}

// NewExternalPayload builds the payload descriptor for data promoted to blob
// storage; it does not itself write the blob (see internal/oplog.Oplog.UploadPayload).
func NewExternalPayload(data []byte, id PayloadID) OplogPayload {
	return OplogPayload{External: true, PayloadID: id, MD5: md5.Sum(data)}
}

// HexMD5 returns the uppercased hex digest used as the blob path segment,
// matching the on-disk layout <blob-root>/oplog_payload/<account>/<worker>/<HEX_MD5>/<payload_uuid>.
func (p OplogPayload) HexMD5() string {
	return fmt.Sprintf("%X", p.MD5[:])
}

// BlobPath returns the namespace-relative path segment for an external
// payload: HEX_MD5/payload_id, matching spec's on-disk layout exactly.
func (p OplogPayload) BlobPath() string {
	return p.HexMD5() + "/" + p.PayloadID.String()
}
