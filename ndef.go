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

package pn533

import (
	"context"
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// Type 3 tag attribute information block (block 0 of system 0x12FC).
const (
	ndefMappingVersion = 0x10
	aibChecksumSpan    = 14

	// NDEFWriteDone and NDEFWriteInProgress are the AIB WriteFlag values.
	NDEFWriteDone       byte = 0x00
	NDEFWriteInProgress byte = 0x0F
)

// AttributeInfo is the decoded attribute information block of an NFC
// Forum Type 3 tag.
type AttributeInfo struct {
	Version   byte
	Nbr       byte
	Nbw       byte
	MaxBlocks uint16
	WriteFlag byte
	RWFlag    byte
	Length    int
}

// ParseAttributeInfo decodes and checks a 16 byte attribute information
// block.
func ParseAttributeInfo(block []byte) (AttributeInfo, error) {
	if len(block) < BlockSize {
		return AttributeInfo{}, fmt.Errorf("%w: attribute block of %d bytes", ErrNDEFInvalid, len(block))
	}

	var sum uint16
	for _, b := range block[:aibChecksumSpan] {
		sum += uint16(b)
	}
	if stored := uint16(block[14])<<8 | uint16(block[15]); stored != sum {
		return AttributeInfo{}, fmt.Errorf("%w: attribute checksum %04X, computed %04X",
			ErrNDEFInvalid, stored, sum)
	}

	info := AttributeInfo{
		Version:   block[0],
		Nbr:       block[1],
		Nbw:       block[2],
		MaxBlocks: uint16(block[3])<<8 | uint16(block[4]),
		WriteFlag: block[9],
		RWFlag:    block[10],
		Length:    int(block[11])<<16 | int(block[12])<<8 | int(block[13]),
	}
	// only the major version has to match
	if info.Version>>4 != ndefMappingVersion>>4 {
		return AttributeInfo{}, fmt.Errorf("%w: mapping version %d.%d", ErrNDEFInvalid, info.Version>>4, info.Version&0x0F)
	}
	if info.Nbr == 0 {
		return AttributeInfo{}, fmt.Errorf("%w: Nbr is zero", ErrNDEFInvalid)
	}
	return info, nil
}

// NDEFRecord is one record of an NDEF message. Text and URI are filled in
// for the well-known "T" and "U" record types.
type NDEFRecord struct {
	Type    string
	Text    string
	URI     string
	Payload []byte
	TNF     byte
}

// NDEFMessage is a parsed NDEF message.
type NDEFMessage struct {
	Records []NDEFRecord
}

// ParseNDEF parses a raw NDEF message (no TLV wrapper, as stored on Type 3
// tags).
func ParseNDEF(data []byte) (*NDEFMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrNDEFInvalid)
	}

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNDEFInvalid, err)
	}

	out := &NDEFMessage{Records: make([]NDEFRecord, 0, len(msg.Records))}
	for _, rec := range msg.Records {
		payload, err := rec.Payload()
		if err != nil {
			Debugf("skipping NDEF record of type %q: %v", rec.Type(), err)
			continue
		}
		r := NDEFRecord{TNF: rec.TNF(), Type: rec.Type(), Payload: payload.Marshal()}
		if r.TNF == ndef.NFCForumWellKnownType {
			switch r.Type {
			case "T":
				r.Text, _ = textFromPayload(r.Payload)
			case "U":
				r.URI, _ = uriFromPayload(r.Payload)
			}
		}
		out.Records = append(out.Records, r)
	}
	if len(out.Records) == 0 {
		return nil, fmt.Errorf("%w: no readable records", ErrNDEFInvalid)
	}
	return out, nil
}

func textFromPayload(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("empty text payload")
	}
	langLen := int(payload[0] & 0x3F)
	if len(payload) < 1+langLen {
		return "", errors.New("text payload shorter than its language code")
	}
	return string(payload[1+langLen:]), nil
}

// URI identifier codes 0x00..0x23 of the NFC Forum URI record type.
var uriPrefixes = [...]string{
	"", "http://www.", "https://www.", "http://", "https://", "tel:", "mailto:",
	"ftp://anonymous:anonymous@", "ftp://ftp.", "ftps://", "sftp://", "smb://",
	"nfs://", "ftp://", "dav://", "news:", "telnet://", "imap:", "rtsp://",
	"urn:", "pop:", "sip:", "sips:", "tftp:", "btspp://", "btl2cap://",
	"btgoep://", "tcpobex://", "irdaobex://", "file://", "urn:epc:id:",
	"urn:epc:tag:", "urn:epc:pat:", "urn:epc:raw:", "urn:epc:", "urn:nfc:",
}

func uriFromPayload(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("empty URI payload")
	}
	prefix := ""
	if int(payload[0]) < len(uriPrefixes) {
		prefix = uriPrefixes[payload[0]]
	}
	return prefix + string(payload[1:]), nil
}

// ReadNDEF polls for an NFC Forum Type 3 tag, reads its attribute
// information block and returns the NDEF message it points at.
func (d *Device) ReadNDEF(ctx context.Context) (*NDEFMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.pollingF(ctx, SystemCodeNDEF, RequestSystemCode)
	d.metrics.observePoll("F", err)
	if err != nil {
		return nil, err
	}

	aib, err := d.readWithoutEncryption(ctx, ServiceRO, []uint16{0})
	if err != nil {
		return nil, fmt.Errorf("read attribute information: %w", err)
	}
	info, err := ParseAttributeInfo(aib)
	if err != nil {
		return nil, err
	}
	if info.WriteFlag != NDEFWriteDone {
		return nil, fmt.Errorf("%w: write in progress", ErrNDEFInvalid)
	}
	if info.Length == 0 {
		return nil, fmt.Errorf("%w: no NDEF data", ErrNDEFInvalid)
	}

	nBlocks := (info.Length + BlockSize - 1) / BlockSize
	if nBlocks > int(info.MaxBlocks) {
		return nil, fmt.Errorf("%w: %d bytes exceed %d blocks", ErrNDEFInvalid, info.Length, info.MaxBlocks)
	}
	perRead := min(int(info.Nbr), maxReadBlocks)

	data := make([]byte, 0, nBlocks*BlockSize)
	blocks := make([]uint16, 0, perRead)
	for next := 1; next <= nBlocks; {
		blocks = blocks[:0]
		for ; next <= nBlocks && len(blocks) < perRead; next++ {
			blocks = append(blocks, uint16(next)) //nolint:gosec // bounded by MaxBlocks
		}
		chunk, err := d.readWithoutEncryption(ctx, ServiceRO, blocks)
		if err != nil {
			return nil, fmt.Errorf("read NDEF blocks: %w", err)
		}
		data = append(data, chunk...)
	}
	return ParseNDEF(data[:info.Length])
}
