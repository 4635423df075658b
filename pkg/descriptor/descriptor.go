/*
	Copyright 2023 Loophole Labs

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		   http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

// Package descriptor encodes work descriptors and engine results into fixed
// size queue slots.
package descriptor

import (
	"errors"
	"fmt"

	"github.com/loopholelabs/polyglot"
)

const (
	// MaxDescriptorSize and MaxResultSize bound the encoded sizes, so a
	// slot of at least that many bytes always fits.
	MaxDescriptorSize = 32
	MaxResultSize     = 24
)

var (
	ErrTooLarge = errors.New("encoded value does not fit in slot")
)

// OpCode selects what the engine does with a descriptor.
type OpCode uint8

const (
	OpCodeNOP OpCode = iota
	OpCodeEncrypt
	OpCodeDecrypt
	OpCodeChecksum
	OpCodeCopy
)

func (o OpCode) String() string {
	switch o {
	case OpCodeNOP:
		return "nop"
	case OpCodeEncrypt:
		return "encrypt"
	case OpCodeDecrypt:
		return "decrypt"
	case OpCodeChecksum:
		return "checksum"
	case OpCodeCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// Descriptor is one unit of work for the engine.
type Descriptor struct {
	OpCode   OpCode
	Flags    uint8
	UserData uint64
	Address  uint64
	Length   uint32
}

// Result is what the engine hands back for a Descriptor. UserData echoes the
// descriptor's; a negative Res is an engine error code.
type Result struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// Encode writes d into slot and returns the number of bytes used.
func (d *Descriptor) Encode(slot []byte) (int, error) {
	buf := polyglot.GetBuffer()
	defer polyglot.PutBuffer(buf)

	polyglot.Encoder(buf).
		Uint8(uint8(d.OpCode)).
		Uint8(d.Flags).
		Uint64(d.UserData).
		Uint64(d.Address).
		Uint32(d.Length)

	return put(slot, *buf)
}

func (d *Descriptor) Decode(slot []byte) (err error) {
	dec := polyglot.GetDecoder(slot)
	defer dec.Return()

	var op uint8
	if op, err = dec.Uint8(); err != nil {
		return fmt.Errorf("error while decoding opcode: %w", err)
	}
	d.OpCode = OpCode(op)
	if d.Flags, err = dec.Uint8(); err != nil {
		return fmt.Errorf("error while decoding flags: %w", err)
	}
	if d.UserData, err = dec.Uint64(); err != nil {
		return fmt.Errorf("error while decoding user data: %w", err)
	}
	if d.Address, err = dec.Uint64(); err != nil {
		return fmt.Errorf("error while decoding address: %w", err)
	}
	if d.Length, err = dec.Uint32(); err != nil {
		return fmt.Errorf("error while decoding length: %w", err)
	}
	return nil
}

// Encode writes r into slot and returns the number of bytes used.
func (r *Result) Encode(slot []byte) (int, error) {
	buf := polyglot.GetBuffer()
	defer polyglot.PutBuffer(buf)

	polyglot.Encoder(buf).
		Uint64(r.UserData).
		Int32(r.Res).
		Uint32(r.Flags)

	return put(slot, *buf)
}

func (r *Result) Decode(slot []byte) (err error) {
	dec := polyglot.GetDecoder(slot)
	defer dec.Return()

	if r.UserData, err = dec.Uint64(); err != nil {
		return fmt.Errorf("error while decoding user data: %w", err)
	}
	if r.Res, err = dec.Int32(); err != nil {
		return fmt.Errorf("error while decoding result: %w", err)
	}
	if r.Flags, err = dec.Uint32(); err != nil {
		return fmt.Errorf("error while decoding flags: %w", err)
	}
	return nil
}

func put(slot []byte, encoded []byte) (int, error) {
	if len(encoded) > len(slot) {
		return 0, fmt.Errorf("%w: %d bytes, slot is %d", ErrTooLarge, len(encoded), len(slot))
	}
	n := copy(slot, encoded)
	clear(slot[n:])
	return n, nil
}
