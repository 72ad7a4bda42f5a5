package segvec

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/hupe1980/segvec/blobstore"
	"github.com/hupe1980/segvec/codec"
	"github.com/hupe1980/segvec/internal/binio"
	"github.com/hupe1980/segvec/internal/compress"
	"github.com/hupe1980/segvec/internal/conv"
	"github.com/hupe1980/segvec/resource"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"
)

// Compression selects the block compression applied to snapshot sections.
type Compression uint8

const (
	// CompressionNone stores sections uncompressed.
	CompressionNone = Compression(compress.TypeNone)
	// CompressionLZ4 favors speed over ratio.
	CompressionLZ4 = Compression(compress.TypeLZ4)
	// CompressionZstd favors ratio over speed.
	CompressionZstd = Compression(compress.TypeZstd)
)

func (c Compression) String() string {
	return compress.Type(c).String()
}

// SnapshotOptions configures a single save. Zero values fall back to the
// vector's construction options, then to package defaults.
type SnapshotOptions struct {
	// Codec encodes section payloads. Defaults to the vector's codec,
	// then codec.Default.
	Codec codec.Codec

	// Compression selects per-section block compression.
	Compression Compression

	// Workers bounds concurrent section encoding. Values <= 0 select
	// runtime.GOMAXPROCS(0).
	Workers int

	// Controller supplies the background-worker slot and IO throttle for
	// the save. Defaults to the vector's controller, if any.
	Controller *resource.Controller
}

var (
	snapshotMagic         = [4]byte{'S', 'V', 'S', '1'}
	snapshotDirMagic      = [4]byte{'S', 'V', 'D', '1'}
	snapshotFooterMagic   = [4]byte{'S', 'V', 'F', '1'}
	snapshotFormatVersion = uint16(1)
)

const (
	// snapshotSectionElements is the only section type in format v1: one
	// section per segment, holding the segment's occupied elements.
	snapshotSectionElements = uint16(1)

	snapshotHeaderSize    = 16
	snapshotDirHeaderSize = 12
	snapshotDirEntrySize  = 32
	snapshotFooterSize    = 24

	// A doubling layout cannot produce more segments than the word size.
	maxSnapshotSections = 64
)

type snapshotSectionEntry struct {
	Type     uint16
	Offset   uint64
	Len      uint64
	Checksum uint32 // CRC32 checksum of section data
	Elems    uint32 // element count, cross-checked after decode
}

// SaveToWriter writes a snapshot of the vector to w.
//
// Format:
//  1. snapshot header (magic/version/compression/geometry/codec)
//  2. one section per segment (codec marshaled, optionally compressed)
//  3. directory (offset/length/checksum/count for each section)
//  4. footer (directory offset/length)
//
// Sections are encoded concurrently but written in segment order, so the
// stream is deterministic for a given vector and options. The vector must
// not be mutated until SaveToWriter returns.
func (v *Vector[T]) SaveToWriter(ctx context.Context, w io.Writer, optFns ...func(*SnapshotOptions)) error {
	if w == nil {
		return fmt.Errorf("snapshot: writer is nil")
	}

	so := v.applySnapshotOptions(optFns)

	ctype := compress.Type(so.Compression)
	if !ctype.Valid() {
		return fmt.Errorf("unknown snapshot compression type %d", uint8(so.Compression))
	}

	codecName := so.Codec.Name()
	nameLen, err := conv.IntToUint16(len(codecName))
	if err != nil {
		return fmt.Errorf("snapshot codec name too long: %d", len(codecName))
	}
	sectionCount, err := conv.IntToUint16(len(v.segs))
	if err != nil {
		return fmt.Errorf("snapshot section count too large: %d", len(v.segs))
	}

	if ctl := so.Controller; ctl != nil {
		if err := ctl.AcquireBackground(ctx); err != nil {
			return fmt.Errorf("failed to acquire background slot: %w", err)
		}
		defer ctl.ReleaseBackground()
	}

	// Encode all sections up front; segments are immutable once full and
	// the caller holds off mutation, so concurrent reads are safe.
	blocks := make([][]byte, len(v.segs))
	entries := make([]snapshotSectionEntry, len(v.segs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(so.Workers)
	for s := range v.segs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			occ := v.occupied(s)
			elems, err := conv.IntToUint32(occ)
			if err != nil {
				return fmt.Errorf("segment %d element count: %w", s, err)
			}
			data, err := so.Codec.Marshal(v.segs[s][:occ])
			if err != nil {
				return fmt.Errorf("failed to encode segment %d: %w", s, err)
			}
			block, err := compress.Pack(data, ctype)
			if err != nil {
				return fmt.Errorf("failed to compress segment %d: %w", s, err)
			}
			blocks[s] = block
			entries[s] = snapshotSectionEntry{Type: snapshotSectionElements, Elems: elems}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := w
	if so.Controller != nil {
		out = &throttledWriter{ctx: ctx, ctl: so.Controller, w: w}
	}
	cw := binio.NewCountingWriter(out)

	// Header (16 bytes + codec name)
	// [0:4]   magic
	// [4:6]   version
	// [6]     compression
	// [7]     first-segment capacity exponent
	// [8:10]  codec name len
	// [10:12] section count
	// [12:16] reserved
	var hdr [snapshotHeaderSize]byte
	copy(hdr[0:4], snapshotMagic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], snapshotFormatVersion)
	hdr[6] = uint8(ctype)
	hdr[7] = uint8(v.capBits)
	binary.LittleEndian.PutUint16(hdr[8:10], nameLen)
	binary.LittleEndian.PutUint16(hdr[10:12], sectionCount)
	if _, err := cw.Write(hdr[:]); err != nil {
		return err
	}
	if len(codecName) > 0 {
		if _, err := cw.Write([]byte(codecName)); err != nil {
			return err
		}
	}

	for s, block := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries[s].Offset = uint64(cw.Count())
		hw := binio.NewChecksumWriter(cw)
		if _, err := hw.Write(block); err != nil {
			return fmt.Errorf("failed to write segment %d: %w", s, err)
		}
		entries[s].Len = uint64(len(block))
		entries[s].Checksum = hw.Sum()
	}

	// Directory
	dirOff := uint64(cw.Count())
	if err := writeSnapshotDirectory(cw, entries); err != nil {
		return err
	}
	dirLen := uint64(cw.Count()) - dirOff

	// Footer
	return writeSnapshotFooter(cw, dirOff, dirLen)
}

// SaveToFile writes a snapshot to filename, replacing any existing file
// atomically so a crash mid-save never leaves a torn snapshot behind.
func (v *Vector[T]) SaveToFile(ctx context.Context, filename string, optFns ...func(*SnapshotOptions)) error {
	pr, pw := io.Pipe()
	cw := binio.NewCountingWriter(pw)

	saveErr := make(chan error, 1)
	go func() {
		err := v.SaveToWriter(ctx, cw, optFns...)
		pw.CloseWithError(err)
		saveErr <- err
	}()

	writeErr := atomic.WriteFile(filename, pr)
	_ = pr.CloseWithError(writeErr)

	err := <-saveErr
	if err == nil {
		err = writeErr
	}
	v.logger().LogSnapshotSave(ctx, filename, cw.Count(), err)
	return err
}

// SaveToStore writes a snapshot into store under name.
func (v *Vector[T]) SaveToStore(ctx context.Context, store blobstore.BlobStore, name string, optFns ...func(*SnapshotOptions)) error {
	if store == nil {
		return fmt.Errorf("snapshot: store is nil")
	}

	wb, err := store.Create(ctx, name)
	if err != nil {
		v.logger().LogSnapshotSave(ctx, name, 0, err)
		return err
	}

	cw := binio.NewCountingWriter(wb)
	if err := v.SaveToWriter(ctx, cw, optFns...); err != nil {
		// Discard the partial blob; stores without Abort publish it on
		// Close, so delete it afterwards.
		if a, ok := wb.(blobstore.Aborter); ok {
			_ = a.Abort()
		} else {
			_ = wb.Close()
			_ = store.Delete(ctx, name)
		}
		v.logger().LogSnapshotSave(ctx, name, 0, err)
		return err
	}
	if err := wb.Close(); err != nil {
		v.logger().LogSnapshotSave(ctx, name, 0, err)
		return err
	}

	v.logger().LogSnapshotSave(ctx, name, cw.Count(), nil)
	return nil
}

func (v *Vector[T]) applySnapshotOptions(optFns []func(*SnapshotOptions)) SnapshotOptions {
	so := SnapshotOptions{
		Codec:      v.opts.codec,
		Controller: v.opts.controller,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&so)
		}
	}
	if so.Codec == nil {
		so.Codec = codec.Default
	}
	if so.Workers <= 0 {
		so.Workers = runtime.GOMAXPROCS(0)
	}
	return so
}

// throttledWriter charges every write against the controller's IO budget.
type throttledWriter struct {
	ctx context.Context
	ctl *resource.Controller
	w   io.Writer
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	if err := tw.ctl.AcquireIO(tw.ctx, len(p)); err != nil {
		return 0, err
	}
	return tw.w.Write(p)
}

// LoadFromReader loads a snapshot from r.
//
// The snapshot container requires random access (io.ReadSeeker) so it can
// locate the directory via the footer and then read each section by
// offset/length. Sections are verified against their CRC32 checksums
// before decoding.
//
// The rebuilt vector adopts the segment geometry recorded in the snapshot
// unless WithSegmentCapacity overrides it. A codec passed via WithCodec
// must match the codec recorded in the header; without one the codec is
// resolved from the header by name.
func LoadFromReader[T any](ctx context.Context, r io.ReadSeeker, optFns ...Option) (*Vector[T], error) {
	if r == nil {
		return nil, fmt.Errorf("snapshot: reader is nil")
	}

	o := applyOptions(optFns)

	hdr, entries, err := readSnapshotDirectory(r)
	if err != nil {
		return nil, err
	}

	c := o.codec
	if c == nil {
		if hdr.codecName != "" {
			cc, ok := codec.ByName(hdr.codecName)
			if !ok {
				return nil, fmt.Errorf("unsupported snapshot codec %q", hdr.codecName)
			}
			c = cc
		} else {
			c = codec.Default
		}
	}
	if hdr.codecName != "" && c.Name() != hdr.codecName {
		return nil, fmt.Errorf("snapshot codec %q does not match provided codec %q", hdr.codecName, c.Name())
	}

	if o.segmentCapacity <= 0 {
		o.segmentCapacity = 1 << hdr.capBits
	}
	v := newVector[T](o)

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := r.Seek(int64(e.Offset), io.SeekStart); err != nil {
			return nil, err
		}

		blockLen, err := conv.Uint64ToInt(e.Len)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot section length: %w", err)
		}
		block := make([]byte, blockLen)
		if _, err := io.ReadFull(r, block); err != nil {
			return nil, fmt.Errorf("failed to read snapshot section %d: %w", i, err)
		}
		if actual := binio.Checksum(block); actual != e.Checksum {
			return nil, &ErrChecksumMismatch{Section: i, Expected: e.Checksum, Actual: actual}
		}

		data, err := compress.Unpack(block, hdr.compression)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress snapshot section %d: %w", i, err)
		}
		var values []T
		if err := c.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot section %d: %w", i, err)
		}
		elems, err := conv.Uint32ToInt(e.Elems)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot section element count: %w", err)
		}
		if len(values) != elems {
			return nil, fmt.Errorf("snapshot section %d holds %d elements, directory records %d", i, len(values), elems)
		}

		if err := v.appendSlice(values); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// LoadFromFile loads a snapshot from filename.
func LoadFromFile[T any](ctx context.Context, filename string, optFns ...Option) (*Vector[T], error) {
	lg := applyOptions(optFns).loggerOrNoop()

	f, err := os.Open(filename)
	if err != nil {
		lg.LogSnapshotLoad(ctx, filename, 0, err)
		return nil, err
	}
	defer f.Close()

	v, err := LoadFromReader[T](ctx, f, optFns...)
	if err != nil {
		lg.LogSnapshotLoad(ctx, filename, 0, err)
		return nil, err
	}

	lg.LogSnapshotLoad(ctx, filename, v.Len(), nil)
	return v, nil
}

// LoadFromStore loads a snapshot previously written with SaveToStore.
func LoadFromStore[T any](ctx context.Context, store blobstore.BlobStore, name string, optFns ...Option) (*Vector[T], error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot: store is nil")
	}

	lg := applyOptions(optFns).loggerOrNoop()

	b, err := store.Open(ctx, name)
	if err != nil {
		lg.LogSnapshotLoad(ctx, name, 0, err)
		return nil, err
	}
	defer b.Close()

	data, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		lg.LogSnapshotLoad(ctx, name, 0, err)
		return nil, err
	}

	v, err := LoadFromReader[T](ctx, bytes.NewReader(data), optFns...)
	if err != nil {
		lg.LogSnapshotLoad(ctx, name, 0, err)
		return nil, err
	}

	lg.LogSnapshotLoad(ctx, name, v.Len(), nil)
	return v, nil
}

type snapshotHeader struct {
	version     uint16
	compression compress.Type
	capBits     uint8
	codecName   string
	sections    int
}

func writeSnapshotDirectory(w io.Writer, entries []snapshotSectionEntry) error {
	// Directory header (12 bytes)
	// [0:4]  magic
	// [4:6]  version
	// [6:8]  reserved
	// [8:12] entry count
	var hdr [snapshotDirHeaderSize]byte
	copy(hdr[0:4], snapshotDirMagic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], snapshotFormatVersion)
	entryCount, err := conv.IntToUint32(len(entries))
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(hdr[8:12], entryCount)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	// Each entry is 32 bytes
	// [0:2]   type
	// [2:4]   reserved
	// [4:8]   checksum (CRC32)
	// [8:16]  offset
	// [16:24] length
	// [24:28] element count
	// [28:32] reserved
	for _, e := range entries {
		var b [snapshotDirEntrySize]byte
		binary.LittleEndian.PutUint16(b[0:2], e.Type)
		binary.LittleEndian.PutUint32(b[4:8], e.Checksum)
		binary.LittleEndian.PutUint64(b[8:16], e.Offset)
		binary.LittleEndian.PutUint64(b[16:24], e.Len)
		binary.LittleEndian.PutUint32(b[24:28], e.Elems)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshotFooter(w io.Writer, dirOffset, dirLen uint64) error {
	// Footer is 24 bytes
	// [0:4]   magic
	// [4:6]   version
	// [6:8]   reserved
	// [8:16]  directory offset
	// [16:24] directory length
	var b [snapshotFooterSize]byte
	copy(b[0:4], snapshotFooterMagic[:])
	binary.LittleEndian.PutUint16(b[4:6], snapshotFormatVersion)
	binary.LittleEndian.PutUint64(b[8:16], dirOffset)
	binary.LittleEndian.PutUint64(b[16:24], dirLen)
	_, err := w.Write(b[:])
	return err
}

func readSnapshotDirectory(r io.ReadSeeker) (snapshotHeader, []snapshotSectionEntry, error) {
	var h snapshotHeader

	// Header
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return h, nil, err
	}
	var hdr [snapshotHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return h, nil, err
	}
	if [4]byte(hdr[0:4]) != snapshotMagic {
		return h, nil, fmt.Errorf("unsupported snapshot format: bad magic")
	}
	h.version = binary.LittleEndian.Uint16(hdr[4:6])
	if h.version != snapshotFormatVersion {
		return h, nil, &ErrUnsupportedVersion{Version: h.version}
	}
	h.compression = compress.Type(hdr[6])
	if !h.compression.Valid() {
		return h, nil, fmt.Errorf("unknown snapshot compression type %d", hdr[6])
	}
	h.capBits = hdr[7]
	// MaxSegmentCapacity is 1<<30, so the exponent tops out at 30.
	if h.capBits > 30 {
		return h, nil, fmt.Errorf("invalid snapshot segment capacity exponent: %d", h.capBits)
	}
	nameLen := int(binary.LittleEndian.Uint16(hdr[8:10]))
	h.sections = int(binary.LittleEndian.Uint16(hdr[10:12]))
	if h.sections > maxSnapshotSections {
		return h, nil, fmt.Errorf("invalid section count: %d", h.sections)
	}

	nameBytes := make([]byte, nameLen)
	if nameLen > 0 {
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return h, nil, err
		}
	}
	h.codecName = string(nameBytes)
	headerEndU := uint64(snapshotHeaderSize + nameLen)

	// Footer (last 24 bytes)
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return h, nil, err
	}
	if uint64(end) < headerEndU+snapshotFooterSize {
		return h, nil, fmt.Errorf("truncated snapshot")
	}
	if _, err := r.Seek(end-snapshotFooterSize, io.SeekStart); err != nil {
		return h, nil, err
	}
	var foot [snapshotFooterSize]byte
	if _, err := io.ReadFull(r, foot[:]); err != nil {
		return h, nil, err
	}
	if [4]byte(foot[0:4]) != snapshotFooterMagic {
		return h, nil, fmt.Errorf("unsupported snapshot format: missing footer")
	}
	fver := binary.LittleEndian.Uint16(foot[4:6])
	if fver != snapshotFormatVersion {
		return h, nil, fmt.Errorf("unsupported snapshot footer version: %d", fver)
	}

	const maxInt64u = uint64(^uint64(0) >> 1)
	dirOffsetU := binary.LittleEndian.Uint64(foot[8:16])
	dirLenU := binary.LittleEndian.Uint64(foot[16:24])
	if dirOffsetU > maxInt64u || dirLenU > maxInt64u {
		return h, nil, fmt.Errorf("invalid directory offsets")
	}
	dataEndU := uint64(end - snapshotFooterSize)
	if dirOffsetU < headerEndU || dirOffsetU > dataEndU || dirLenU > dataEndU-dirOffsetU {
		return h, nil, fmt.Errorf("invalid directory range")
	}
	wantDirLen := uint64(snapshotDirHeaderSize) + uint64(h.sections)*snapshotDirEntrySize
	if dirLenU != wantDirLen {
		return h, nil, fmt.Errorf("directory length %d does not match %d sections", dirLenU, h.sections)
	}

	// Directory header
	if _, err := r.Seek(int64(dirOffsetU), io.SeekStart); err != nil {
		return h, nil, err
	}
	var dh [snapshotDirHeaderSize]byte
	if _, err := io.ReadFull(r, dh[:]); err != nil {
		return h, nil, err
	}
	if [4]byte(dh[0:4]) != snapshotDirMagic {
		return h, nil, fmt.Errorf("invalid snapshot directory magic")
	}
	dver := binary.LittleEndian.Uint16(dh[4:6])
	if dver != snapshotFormatVersion {
		return h, nil, fmt.Errorf("unsupported snapshot directory version: %d", dver)
	}
	entryCount := int(binary.LittleEndian.Uint32(dh[8:12]))
	if entryCount != h.sections {
		return h, nil, fmt.Errorf("directory entry count %d does not match header section count %d", entryCount, h.sections)
	}

	entries := make([]snapshotSectionEntry, 0, entryCount)
	for i := 0; i < entryCount; i++ {
		// 32 bytes per entry with checksum and element count.
		var eb [snapshotDirEntrySize]byte
		if _, err := io.ReadFull(r, eb[:]); err != nil {
			return h, nil, err
		}
		typ := binary.LittleEndian.Uint16(eb[0:2])
		if typ != snapshotSectionElements {
			return h, nil, fmt.Errorf("unknown snapshot section type %d", typ)
		}
		checksum := binary.LittleEndian.Uint32(eb[4:8])
		off := binary.LittleEndian.Uint64(eb[8:16])
		ln := binary.LittleEndian.Uint64(eb[16:24])
		elems := binary.LittleEndian.Uint32(eb[24:28])

		// Sections must not point into the header (including codec name)
		// and must end before the directory.
		if off < headerEndU {
			return h, nil, fmt.Errorf("invalid snapshot section offset")
		}
		if off > dirOffsetU || ln > dirOffsetU-off {
			return h, nil, fmt.Errorf("invalid snapshot section range")
		}

		entries = append(entries, snapshotSectionEntry{
			Type:     typ,
			Offset:   off,
			Len:      ln,
			Checksum: checksum,
			Elems:    elems,
		})
	}

	return h, entries, nil
}
