// Package pools provides reusable byte buffers for record framing.
//
// Every Put to a bucket encodes one framed record (16-byte header, key,
// value) before it is written to a segment. BytePool hands out buffers by
// size class so steady write traffic does not allocate a frame per call.
package pools
