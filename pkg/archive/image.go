package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Program image layout:
//
//	0..3  "LFPI"
//	4     format version
//	5     codec tag
//	6..   payload, compressed with the codec
//
// The uncompressed payload is a uvarint record count followed by records of
// (kind byte, uvarint name length, name, uvarint data length, data).
const (
	imageHeaderSize = 6
	imageVersion    = 1
)

var imageMagic = [4]byte{'L', 'F', 'P', 'I'}

// Codec identifies how the program image payload is compressed.
type Codec uint8

const (
	CodecNone Codec = 0
	// CodecLZ4 is the fast codec written by the compiler.
	CodecLZ4 Codec = 1
	// CodecZstd is the dense codec written by the optimizer.
	CodecZstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// RecordKind identifies a program image record.
type RecordKind uint8

const (
	RecordClass RecordKind = iota + 1
	RecordSource
	RecordNamespace
	RecordBundle
	RecordStylesheet
	// RecordDebug carries source locations for debuggable builds.
	RecordDebug
)

// Record is one compiled unit inside a program image.
type Record struct {
	Kind RecordKind
	Name string
	Data []byte
}

// Image is the decoded program image.
type Image struct {
	Records []Record
}

// EncodeImage serializes img and compresses it with codec.
func EncodeImage(img *Image, codec Codec) ([]byte, error) {
	var payload bytes.Buffer
	writeUvarint(&payload, uint64(len(img.Records)))
	for _, r := range img.Records {
		payload.WriteByte(byte(r.Kind))
		writeUvarint(&payload, uint64(len(r.Name)))
		payload.WriteString(r.Name)
		writeUvarint(&payload, uint64(len(r.Data)))
		payload.Write(r.Data)
	}

	compressed, err := compressImagePayload(codec, payload.Bytes())
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	out := make([]byte, 0, imageHeaderSize+len(compressed))
	out = append(out, imageMagic[:]...)
	out = append(out, imageVersion, byte(codec))
	out = append(out, compressed...)
	return out, nil
}

// DecodeImage parses a program image and reports the codec it used.
func DecodeImage(data []byte) (*Image, Codec, error) {
	if len(data) < imageHeaderSize {
		return nil, 0, fmt.Errorf("decode image: too short: got %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], imageMagic[:]) {
		return nil, 0, fmt.Errorf("decode image: invalid magic %q", data[:4])
	}
	if data[4] != imageVersion {
		return nil, 0, fmt.Errorf("decode image: unsupported version %d", data[4])
	}
	codec := Codec(data[5])

	payload, err := decompressImagePayload(codec, data[imageHeaderSize:])
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}

	r := bytes.NewReader(payload)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: record count: %w", err)
	}
	if count > uint64(len(payload)) {
		return nil, 0, fmt.Errorf("decode image: record count %d exceeds payload", count)
	}
	img := &Image{Records: make([]Record, 0, count)}
	for i := uint64(0); i < count; i++ {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, 0, fmt.Errorf("decode image: record %d kind: %w", i, err)
		}
		name, err := readChunk(r)
		if err != nil {
			return nil, 0, fmt.Errorf("decode image: record %d name: %w", i, err)
		}
		body, err := readChunk(r)
		if err != nil {
			return nil, 0, fmt.Errorf("decode image: record %d data: %w", i, err)
		}
		img.Records = append(img.Records, Record{Kind: RecordKind(kind), Name: string(name), Data: body})
	}
	if r.Len() != 0 {
		return nil, 0, fmt.Errorf("decode image: %d trailing bytes", r.Len())
	}
	return img, codec, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("length %d exceeds remaining %d bytes", n, r.Len())
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func compressImagePayload(codec Codec, raw []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return raw, nil
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			_ = zw.Close()
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

func decompressImagePayload(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}
