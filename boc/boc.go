// Copyright 2016 Google Inc. All Rights Reserved.
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

// Package boc is a minimal bag-of-cells codec: it serializes a cell DAG as
// a topologically ordered, deduplicated, CRC-protected byte stream, and
// deserializes it back, verifying every cell's representation hash along
// the way. It does not attempt to reproduce any particular historical BOC
// wire format bit-for-bit; it only has to round-trip this module's own
// cell DAGs deterministically and reject malformed input cleanly.
package boc

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"runtime"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/broxus-go/tvmcell/cell"
)

const (
	magic   = 0x544D4342 // "TMCB"
	version = 1

	headerLen   = 4 + 1 + 4 + 4 // magic, version, cellCount, rootIndex
	offsetWidth = 4
	crcWidth    = 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Codec is the external contract this package satisfies: Encode/Decode are
// inverse on well-formed input, encoding is deterministic, and Decode fails
// cleanly (a typed *cell.Error, never a panic) on truncation, over-size
// headers, duplicate indices, or depth beyond cell.MaxDepth.
type Codec interface {
	Encode(root *cell.Cell) ([]byte, error)
	Decode(data []byte) (*cell.Cell, error)
}

// StandardCodec is the reference Codec implementation.
type StandardCodec struct{}

// Encode implements Codec.
func (StandardCodec) Encode(root *cell.Cell) ([]byte, error) { return Encode(root) }

// Decode implements Codec.
func (StandardCodec) Decode(data []byte) (*cell.Cell, error) { return Decode(data) }

// Encode serializes root's DAG: cells are assigned indices in topological
// order starting from root (see topoOrder), deduplicated by representation
// hash, so every reference points forward to a strictly larger index and
// the wire form is fully determined by the DAG's shape and content.
func Encode(root *cell.Cell) ([]byte, error) {
	order, indexOf, err := topoOrder(root)
	if err != nil {
		return nil, err
	}
	glog.V(2).Infof("boc: encoding %d cells rooted at %s", len(order), root.ReprHash())

	var records bytes.Buffer
	offsets := make([]uint32, len(order))
	for i, c := range order {
		offsets[i] = uint32(records.Len())

		d := c.Descriptor()
		records.WriteByte(d.D1())
		records.WriteByte(d.D2())
		records.Write(c.Data())
		h := c.ReprHash()
		records.Write(h.Bytes())

		for j := 0; j < c.ReferenceCount(); j++ {
			ref, err := c.Reference(j)
			if err != nil {
				return nil, err
			}
			idx, ok := indexOf[ref.ReprHash()]
			if !ok {
				return nil, cell.Errf(cell.ErrInvalidData, "boc: encode: reference to an unindexed cell")
			}
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], uint32(idx))
			records.Write(buf[:])
		}
	}

	out := make([]byte, 0, headerLen+len(order)*offsetWidth+records.Len()+crcWidth)
	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], magic)
	hdr[4] = version
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(order)))
	binary.BigEndian.PutUint32(hdr[9:13], 0) // root is always index 0
	out = append(out, hdr[:]...)

	for _, off := range offsets {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], off)
		out = append(out, buf[:]...)
	}
	out = append(out, records.Bytes()...)

	crc := crc32.Checksum(out, castagnoli)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)
	return out, nil
}

// topoOrder assigns every cell reachable from root an index in reverse
// post-order of a depth-first walk that visits references last-to-first,
// root first, guaranteeing that every reference's target has a strictly
// larger index than its referrer (a cell finishes only after everything it
// references has finished). For a tree this is the same as pre-order.
func topoOrder(root *cell.Cell) ([]*cell.Cell, map[cell.Hash]int, error) {
	indexOf := make(map[cell.Hash]int)
	var post []*cell.Cell
	indexOf[root.ReprHash()] = 0

	type frame struct {
		c       *cell.Cell
		nextRef int
	}
	stack := []*frame{{c: root, nextRef: root.ReferenceCount() - 1}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.nextRef < 0 {
			post = append(post, top.c)
			stack = stack[:len(stack)-1]
			continue
		}
		child, err := top.c.Reference(top.nextRef)
		top.nextRef--
		if err != nil {
			return nil, nil, err
		}
		if _, seen := indexOf[child.ReprHash()]; seen {
			continue
		}
		indexOf[child.ReprHash()] = 0
		stack = append(stack, &frame{c: child, nextRef: child.ReferenceCount() - 1})
	}
	order := make([]*cell.Cell, len(post))
	for i, c := range post {
		order[len(post)-1-i] = c
		indexOf[c.ReprHash()] = len(post) - 1 - i
	}
	return order, indexOf, nil
}

type parsedRecord struct {
	exotic  bool
	bitLen  uint16
	data    []byte
	hash    cell.Hash
	refIdx  []uint32
}

// Decode deserializes data produced by Encode (or anything satisfying the
// same wire contract), verifying the CRC footer, the offset table, every
// forward reference, the rebuilt depth, and — concurrently, bounded by
// GOMAXPROCS — every cell's representation hash against the hash Encode
// embedded for it.
func Decode(data []byte) (*cell.Cell, error) {
	if len(data) < headerLen+crcWidth {
		return nil, cell.Errf(cell.ErrInvalidData, "boc: truncated header")
	}

	gotCRC := binary.BigEndian.Uint32(data[len(data)-crcWidth:])
	body := data[:len(data)-crcWidth]
	if crc32.Checksum(body, castagnoli) != gotCRC {
		return nil, cell.Errf(cell.ErrInvalidData, "boc: checksum mismatch")
	}

	if binary.BigEndian.Uint32(body[0:4]) != magic {
		return nil, cell.Errf(cell.ErrInvalidData, "boc: bad magic")
	}
	if body[4] != version {
		return nil, cell.Errf(cell.ErrInvalidData, "boc: unsupported version %d", body[4])
	}
	cellCount := binary.BigEndian.Uint32(body[5:9])
	rootIndex := binary.BigEndian.Uint32(body[9:13])

	// An over-size header claims more cells than the payload could
	// possibly hold (every cell needs at least a 2-byte descriptor plus a
	// 32-byte hash plus its own 4-byte offset entry).
	const minCellBytes = 2 + cell.HashSize
	if cellCount == 0 || uint64(cellCount) > (uint64(len(body))/(minCellBytes+offsetWidth)) {
		return nil, cell.Errf(cell.ErrInvalidData, "boc: over-size or empty cell count %d", cellCount)
	}
	if rootIndex >= cellCount {
		return nil, cell.Errf(cell.ErrInvalidData, "boc: root index %d out of range", rootIndex)
	}

	offsetTableLen := int(cellCount) * offsetWidth
	if len(body) < headerLen+offsetTableLen {
		return nil, cell.Errf(cell.ErrInvalidData, "boc: truncated offset table")
	}
	offsets := make([]uint32, cellCount)
	for i := range offsets {
		off := headerLen + i*offsetWidth
		offsets[i] = binary.BigEndian.Uint32(body[off : off+4])
	}
	records := body[headerLen+offsetTableLen:]
	for i, off := range offsets {
		if int(off) >= len(records) {
			return nil, cell.Errf(cell.ErrInvalidData, "boc: offset %d out of range", i)
		}
		if i > 0 && off <= offsets[i-1] {
			return nil, cell.Errf(cell.ErrInvalidData, "boc: duplicate or out-of-order offset at index %d", i)
		}
	}

	parsed := make([]parsedRecord, cellCount)
	for i := range parsed {
		end := len(records)
		if i+1 < len(offsets) {
			end = int(offsets[i+1])
		}
		rec, err := parseRecord(records[offsets[i]:end], cellCount, uint32(i))
		if err != nil {
			return nil, err
		}
		parsed[i] = rec
	}

	// Build bottom-up: every reference index is strictly greater than its
	// own record's index, so by the time we build record i every cell it
	// references already exists.
	built := make([]*cell.Cell, cellCount)
	depth := make([]int, cellCount)
	for i := int(cellCount) - 1; i >= 0; i-- {
		rec := parsed[i]
		b := cell.NewBuilder()
		if rec.exotic {
			b.SetExotic(true)
		}
		if err := b.StoreRaw(rec.data, rec.bitLen); err != nil {
			return nil, err
		}
		maxChildDepth := -1
		for _, ri := range rec.refIdx {
			if err := b.StoreReference(built[ri]); err != nil {
				return nil, err
			}
			if depth[ri] > maxChildDepth {
				maxChildDepth = depth[ri]
			}
		}
		depth[i] = maxChildDepth + 1
		if depth[i] > cell.MaxDepth {
			return nil, cell.Errf(cell.ErrInvalidData, "boc: cell depth %d exceeds %d", depth[i], cell.MaxDepth)
		}
		c, err := b.Build()
		if err != nil {
			return nil, err
		}
		built[i] = c
	}

	if err := verifyHashesConcurrently(built, parsed); err != nil {
		return nil, err
	}

	root := built[rootIndex]
	glog.V(2).Infof("boc: decoded %d cells, root %s", cellCount, root.ReprHash())
	return root, nil
}

func parseRecord(rec []byte, cellCount uint32, selfIndex uint32) (parsedRecord, error) {
	if len(rec) < 2 {
		return parsedRecord{}, cell.Errf(cell.ErrInvalidData, "boc: truncated record %d", selfIndex)
	}
	d1, d2 := rec[0], rec[1]
	refCount, exotic, _, _, fullBytes, hasTail := cell.HeaderFromD1D2(d1, d2)

	dataLen := fullBytes
	if hasTail {
		dataLen++
	}
	off := 2
	if len(rec) < off+dataLen {
		return parsedRecord{}, cell.Errf(cell.ErrInvalidData, "boc: truncated data in record %d", selfIndex)
	}
	raw := rec[off : off+dataLen]
	off += dataLen

	bitLen := uint16(fullBytes) * 8
	if hasTail {
		tagBits, err := cell.CompletionTagBits(raw[len(raw)-1])
		if err != nil {
			return parsedRecord{}, err
		}
		bitLen += tagBits
	}

	if len(rec) < off+cell.HashSize {
		return parsedRecord{}, cell.Errf(cell.ErrInvalidData, "boc: truncated hash in record %d", selfIndex)
	}
	h, err := cell.HashFromBytes(rec[off : off+cell.HashSize])
	if err != nil {
		return parsedRecord{}, err
	}
	off += cell.HashSize

	if len(rec) < off+int(refCount)*4 {
		return parsedRecord{}, cell.Errf(cell.ErrInvalidData, "boc: truncated references in record %d", selfIndex)
	}
	refIdx := make([]uint32, refCount)
	for j := range refIdx {
		idx := binary.BigEndian.Uint32(rec[off : off+4])
		off += 4
		if idx >= cellCount || idx <= selfIndex {
			return parsedRecord{}, cell.Errf(cell.ErrInvalidData, "boc: reference %d in record %d is not a forward reference", idx, selfIndex)
		}
		refIdx[j] = idx
	}

	return parsedRecord{exotic: exotic, bitLen: bitLen, data: raw, hash: h, refIdx: refIdx}, nil
}

// verifyHashesConcurrently checks that every built cell's representation
// hash matches the hash Encode embedded for it, bounded by GOMAXPROCS so a
// large BOC doesn't spawn one goroutine per cell.
func verifyHashesConcurrently(built []*cell.Cell, parsed []parsedRecord) error {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range built {
		i := i
		g.Go(func() error {
			if built[i].ReprHash() != parsed[i].hash {
				return cell.Errf(cell.ErrInvalidData, "boc: cell %d hash mismatch after decode", i)
			}
			return nil
		})
	}
	return g.Wait()
}
