package dnswire

import "errors"

// ErrMalformedPacket is the sentinel for wire bytes that cannot be decoded
// as a DNS message. Wrap with fmt.Errorf("context: %w", ErrMalformedPacket)
// to add detail while keeping errors.Is checks working.
var ErrMalformedPacket = errors.New("malformed dns packet")
