package tasks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var errNoMovieHeader = errors.New("no mvhd box found")

type box struct {
	kind   string
	offset int64 // payload start
	size   int64 // payload size
}

// ProbeMP4Duration reads the moov/mvhd box of an MP4 or QuickTime file and returns its duration.
func ProbeMP4Duration(r io.ReaderAt, size int64) (time.Duration, error) {
	moov, err := findBox(r, 0, size, "moov")
	if err != nil {
		return 0, err
	}
	mvhd, err := findBox(r, moov.offset, moov.offset+moov.size, "mvhd")
	if err != nil {
		return 0, err
	}

	header := make([]byte, 32)
	if mvhd.size < 20 {
		return 0, errNoMovieHeader
	}
	n, err := r.ReadAt(header[:min(int64(len(header)), mvhd.size)], mvhd.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("failed to read mvhd: %w", err)
	}
	header = header[:n]

	var timescale, duration uint64
	switch version := header[0]; version {
	case 0:
		// version+flags, creation, modification, timescale, duration
		timescale = uint64(binary.BigEndian.Uint32(header[12:16]))
		duration = uint64(binary.BigEndian.Uint32(header[16:20]))
	case 1:
		if len(header) < 32 {
			return 0, errNoMovieHeader
		}
		timescale = uint64(binary.BigEndian.Uint32(header[20:24]))
		duration = binary.BigEndian.Uint64(header[24:32])
	default:
		return 0, fmt.Errorf("unsupported mvhd version %d", version)
	}

	if timescale == 0 {
		return 0, fmt.Errorf("mvhd timescale is zero")
	}

	seconds := duration / timescale
	rest := duration % timescale
	return time.Duration(seconds)*time.Second + time.Duration(rest)*time.Second/time.Duration(timescale), nil
}

// findBox scans sibling boxes in [start, end) for kind.
func findBox(r io.ReaderAt, start, end int64, kind string) (box, error) {
	header := make([]byte, 16)

	for offset := start; offset+8 <= end; {
		if _, err := r.ReadAt(header[:8], offset); err != nil {
			return box{}, fmt.Errorf("failed to read box header: %w", err)
		}

		size := int64(binary.BigEndian.Uint32(header[:4]))
		name := string(header[4:8])
		headerLen := int64(8)

		switch size {
		case 0:
			size = end - offset
		case 1:
			if _, err := r.ReadAt(header[8:16], offset+8); err != nil {
				return box{}, fmt.Errorf("failed to read box size: %w", err)
			}
			size = int64(binary.BigEndian.Uint64(header[8:16]))
			headerLen = 16
		}

		if size < headerLen || offset+size > end {
			return box{}, fmt.Errorf("malformed %q box at offset %d", name, offset)
		}
		if name == kind {
			return box{kind: name, offset: offset + headerLen, size: size - headerLen}, nil
		}
		offset += size
	}

	if kind == "mvhd" {
		return box{}, errNoMovieHeader
	}
	return box{}, fmt.Errorf("no %s box found", kind)
}
