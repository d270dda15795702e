package propstat

import (
	"bufio"
	"io"

	log "github.com/sirupsen/logrus"
)

// maxRecordSize bounds a single input line. Longer lines are drained and
// yielded as empty records so row indices stay aligned.
const maxRecordSize = 1024 * 1024

const readBufferSize = 64 * 1024

// recordSource yields the raw lines of a delimited text stream.
// A leading header line is detected by inspecting the first byte of the
// stream: if it is not a decimal digit, the first line is discarded.
type recordSource struct {
	reader    *bufio.Reader
	record    []byte
	bytesRead int64
	sniffed   bool
	err       error
}

func newRecordSource(r io.Reader) *recordSource {
	return &recordSource{reader: bufio.NewReaderSize(r, readBufferSize)}
}

// sniffHeader peeks at the first byte of the stream. The line is kept as
// data when it starts with a digit, which amounts to rewinding after the
// first read.
func (rs *recordSource) sniffHeader() bool {
	rs.sniffed = true

	first, err := rs.reader.Peek(1)
	if err != nil {
		if err != io.EOF {
			rs.err = err
		}
		return false
	}
	if isDigit(first[0]) {
		return true
	}

	// Header present: consume it so reading starts at the first data row
	if err := rs.readLine(); err != nil {
		if err != io.EOF {
			rs.err = err
		}
		return false
	}
	return true
}

// readLine reads through the next newline into rs.record, without the line
// terminator. It returns io.EOF only when no bytes remain.
func (rs *recordSource) readLine() error {
	rs.record = rs.record[:0]
	read := 0
	oversized := false

	for {
		chunk, err := rs.reader.ReadSlice('\n')
		read += len(chunk)
		rs.bytesRead += int64(len(chunk))
		if !oversized {
			rs.record = append(rs.record, chunk...)
			if len(rs.record) > maxRecordSize+len("\r\n") {
				oversized = true
				rs.record = rs.record[:0]
			}
		}

		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF && read > 0 {
			break
		}
		if err != nil {
			return err
		}
		break
	}

	rs.record = dropLineEnding(rs.record)
	if oversized || len(rs.record) > maxRecordSize {
		log.Warnf("Skipping %d byte record longer than %d bytes", read, maxRecordSize)
		rs.record = rs.record[:0]
	}
	return nil
}

// Next advances to the next record. It returns false at the end of the
// stream or on a read error, which is then reported by Err.
func (rs *recordSource) Next() bool {
	if !rs.sniffed && !rs.sniffHeader() {
		return false
	}
	if rs.err != nil {
		return false
	}

	if err := rs.readLine(); err != nil {
		if err != io.EOF {
			rs.err = err
		}
		return false
	}
	return true
}

// Text returns the current record. Line terminators, including a trailing
// carriage return, are not part of it. An over-long line reads as empty.
func (rs *recordSource) Text() string {
	return string(rs.record)
}

func (rs *recordSource) Err() error {
	return rs.err
}

// BytesRead returns the number of bytes the source has advanced over,
// including a skipped header.
func (rs *recordSource) BytesRead() int64 {
	return rs.bytesRead
}

func dropLineEnding(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
