// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package issuance

import (
	"crypto/cipher"
	"crypto/des" //nolint:gosec // FeliCa Lite mandates two-key triple DES
	"fmt"

	pn533 "github.com/ZaparooProject/go-pn533"
)

// Key and block sizes
const (
	MasterKeySize = 24
	CardKeySize   = 16
	IDSize        = pn533.BlockSize
	ChallengeSize = pn533.BlockSize
	MACSize       = 8
)

const desBlockSize = des.BlockSize

// rb is the constant used when the subkey shift carries out of the block.
const rb = 0x1B

// encrypt runs one block of triple DES in CBC mode.
func encrypt(key, iv, block []byte) ([]byte, error) {
	c, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, desBlockSize)
	cipher.NewCBCEncrypter(c, iv).CryptBlocks(out, block[:desBlockSize])
	return out, nil
}

// reversed returns the 8 bytes of b in reverse order.
func reversed(b []byte) []byte {
	out := make([]byte, desBlockSize)
	for i := range desBlockSize {
		out[i] = b[desBlockSize-1-i]
	}
	return out
}

func checkLen(op, what string, b []byte, want int) error {
	if len(b) != want {
		return &pn533.CryptoError{
			Op:  op,
			Err: fmt.Errorf("%w: %s is %d bytes, want %d", pn533.ErrInvalidKey, what, len(b), want),
		}
	}
	return nil
}

// DerivePersonalKey derives the 16 byte card key for the card whose ID
// block is id from the 24 byte personalization master key.
func DerivePersonalKey(masterKey, id []byte) ([]byte, error) {
	const op = "derive card key"
	if err := checkLen(op, "master key", masterKey, MasterKeySize); err != nil {
		return nil, err
	}
	if err := checkLen(op, "ID block", id, IDSize); err != nil {
		return nil, err
	}

	zero := make([]byte, desBlockSize)
	l, err := encrypt(masterKey, zero, zero)
	if err != nil {
		return nil, &pn533.CryptoError{Op: op, Err: err}
	}

	// K1 = L << 1, big endian across the block
	k1 := make([]byte, desBlockSize)
	for i := range desBlockSize {
		k1[i] = l[i] << 1
		if i < desBlockSize-1 {
			k1[i] |= l[i+1] >> 7
		}
	}
	if l[0]&0x80 != 0 {
		k1[desBlockSize-1] ^= rb
	}

	m1 := reversed(id[:8])
	m2 := reversed(id[8:])
	for i := range m2 {
		m2[i] ^= k1[i]
	}

	half := func(m1 []byte) ([]byte, error) {
		c1, err := encrypt(masterKey, zero, m1)
		if err != nil {
			return nil, err
		}
		return encrypt(masterKey, c1, m2)
	}

	t, err := half(m1)
	if err != nil {
		return nil, &pn533.CryptoError{Op: op, Err: err}
	}
	m1[0] ^= 0x80
	t2, err := half(m1)
	if err != nil {
		return nil, &pn533.CryptoError{Op: op, Err: err}
	}
	return append(t, t2...), nil
}

// ComputeMAC returns the 8 byte MAC a FeliCa Lite card with card key
// cardKey reports for block data under random challenge rc.
func ComputeMAC(cardKey, block, rc []byte) ([]byte, error) {
	const op = "compute MAC"
	if err := checkLen(op, "card key", cardKey, CardKeySize); err != nil {
		return nil, err
	}
	if err := checkLen(op, "block", block, IDSize); err != nil {
		return nil, err
	}
	if err := checkLen(op, "challenge", rc, ChallengeSize); err != nil {
		return nil, err
	}

	ck1, ck2 := reversed(cardKey[:8]), reversed(cardKey[8:])
	key := make([]byte, 0, MasterKeySize)
	key = append(append(append(key, ck1...), ck2...), ck1...)

	rc1, rc2 := reversed(rc[:8]), reversed(rc[8:])
	id1, id2 := reversed(block[:8]), reversed(block[8:])

	// session key SK1 || SK2 from the challenge
	sk1, err := encrypt(key, make([]byte, desBlockSize), rc1)
	if err != nil {
		return nil, &pn533.CryptoError{Op: op, Err: err}
	}
	sk2, err := encrypt(key, sk1, rc2)
	if err != nil {
		return nil, &pn533.CryptoError{Op: op, Err: err}
	}
	sk := make([]byte, 0, MasterKeySize)
	sk = append(append(append(sk, sk1...), sk2...), sk1...)

	tmp, err := encrypt(sk, rc1, id1)
	if err != nil {
		return nil, &pn533.CryptoError{Op: op, Err: err}
	}
	mac, err := encrypt(sk, tmp, id2)
	if err != nil {
		return nil, &pn533.CryptoError{Op: op, Err: err}
	}
	return reversed(mac), nil
}
