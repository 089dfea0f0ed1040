// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/sealkv/sealkv/recrypt"
)

const envelopeVersion = 1

// Envelope is the stored form of one encrypted attribute. The IV,
// descriptor and key tag ride alongside the ciphertext so the same data
// key is re-derivable at unseal time without any state beyond the stored
// item itself.
type Envelope struct {
	Iv         recrypt.Iv
	Descriptor string
	Tag        []byte
	Ciphertext []byte
}

// Encode serialises the envelope: version byte, IV, length-prefixed
// descriptor and tag, then the ciphertext.
func (e Envelope) Encode() []byte {
	out := make([]byte, 0, 1+recrypt.IvSize+2+len(e.Descriptor)+2+len(e.Tag)+len(e.Ciphertext))
	out = append(out, envelopeVersion)
	out = append(out, e.Iv[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(e.Descriptor)))
	out = append(out, e.Descriptor...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(e.Tag)))
	out = append(out, e.Tag...)
	out = append(out, e.Ciphertext...)
	return out
}

// DecodeEnvelope parses bytes produced by [Envelope.Encode].
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) < 1+recrypt.IvSize+4 {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrMalformedEnvelope, len(data))
	}
	if data[0] != envelopeVersion {
		return Envelope{}, fmt.Errorf("%w: unknown version %d", ErrMalformedEnvelope, data[0])
	}
	data = data[1:]

	var e Envelope
	copy(e.Iv[:], data[:recrypt.IvSize])
	data = data[recrypt.IvSize:]

	dlen := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	if len(data) < dlen+2 {
		return Envelope{}, fmt.Errorf("%w: truncated descriptor", ErrMalformedEnvelope)
	}
	e.Descriptor = string(data[:dlen])
	data = data[dlen:]

	tlen := int(binary.BigEndian.Uint16(data))
	data = data[2:]
	if len(data) < tlen {
		return Envelope{}, fmt.Errorf("%w: truncated tag", ErrMalformedEnvelope)
	}
	e.Tag = append([]byte(nil), data[:tlen]...)
	e.Ciphertext = append([]byte(nil), data[tlen:]...)

	return e, nil
}
