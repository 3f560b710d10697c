package core

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/extrame/xls"
)

// The BIFF reader trusts the container and the record counts it reads: a bad
// sector chain ends in log.Fatal or an endless loop, and oversized counts turn
// into huge allocations. checkWorkbook rejects such files before it runs.

const (
	cfbHeaderSize     = 512
	cfbSectorSize     = 512
	cfbMiniSectorSize = 64
	cfbDirEntrySize   = 128
	cfbHeaderFATSlots = 109
	cfbEndOfChain     = 0xFFFFFFFE

	// xlsMaxColumns is the BIFF8 column limit (IV).
	xlsMaxColumns = 256
)

var (
	cfbSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipSignature = []byte{'P', 'K', 0x03, 0x04}
)

// Moniker class IDs in the byte order hyperlink records store them.
var (
	urlMoniker  = []byte{0xE0, 0xC9, 0xEA, 0x79, 0xF9, 0xBA, 0xCE, 0x11, 0x8C, 0x82, 0x00, 0xAA, 0x00, 0x4B, 0xA9, 0x0B}
	fileMoniker = []byte{0x03, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46}
)

var (
	errNotCompoundFile    = errors.New("not a legacy Excel workbook")
	errNoWorkbookStream   = errors.New("no Workbook stream in file")
	errMalformedHyperlink = errors.New("malformed hyperlink record")
)

type xlsDecoder struct{}

func (xlsDecoder) Format() string { return "XLS" }

// Decode reads the first worksheet of a legacy BIFF8 workbook. Cells are taken
// as the text the reader renders for them, missing cells become empty strings
// and fully blank rows are skipped. Exporters that save OOXML under a .xls
// name are handed to the .xlsx decoder.
func (d xlsDecoder) Decode(ctx context.Context, r io.Reader) (table *Table, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, decodeFailure(d.Format(), fmt.Errorf("read: %w", err))
	}
	if len(data) == 0 {
		return nil, emptyFile()
	}
	if bytes.HasPrefix(data, zipSignature) {
		return xlsxDecoder{}.Decode(ctx, bytes.NewReader(data))
	}
	if err := checkWorkbook(data); err != nil {
		return nil, decodeFailure(d.Format(), err)
	}

	defer func() {
		if p := recover(); p != nil {
			table, err = nil, decodeFailure(d.Format(), fmt.Errorf("malformed workbook: %v", p))
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, decodeFailure(d.Format(), err)
	}
	if wb == nil {
		return nil, decodeFailure(d.Format(), errNoWorkbookStream)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil || sheet.MaxRow == 0 {
		return nil, emptyFile()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ReadAllCells stops once it holds max rows, so sizing it to the first
	// sheet keeps every other sheet out.
	rows := wb.ReadAllCells(int(sheet.MaxRow) + 1)

	start := 0
	for start < len(rows) && isEmptyRow(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, emptyFile()
	}

	headers := rows[start]
	table = &Table{Headers: headers}
	for n, row := range rows[start+1:] {
		if n%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, NewRawRow(headers, row))
	}

	if len(table.Rows) == 0 {
		return nil, emptyFile()
	}
	return table, nil
}

// compoundFile is the sector map of an OLE2 container, built the way the BIFF
// reader builds it.
type compoundFile struct {
	data    []byte
	fat     []uint32
	minifat []uint32
}

type dirEntry struct {
	name   string
	start  uint32
	size   uint32
	exists bool
}

// checkWorkbook validates every sector chain the reader will follow and
// scans the Workbook stream for records it would mis-size.
func checkWorkbook(data []byte) error {
	if len(data) < cfbHeaderSize || !bytes.Equal(data[:len(cfbSignature)], cfbSignature) ||
		binary.LittleEndian.Uint16(data[28:]) != 0xFFFE {
		return errNotCompoundFile
	}

	cf := &compoundFile{data: data}
	if err := cf.loadTables(); err != nil {
		return err
	}

	book, root, err := cf.directory(binary.LittleEndian.Uint32(data[48:]))
	if err != nil {
		return err
	}
	if !book.exists {
		return errNoWorkbookStream
	}

	stream, err := cf.stream(book, root, binary.LittleEndian.Uint32(data[56:]))
	if err != nil {
		return err
	}
	return scanBIFF(stream)
}

func (c *compoundFile) sector(sid uint32) []byte {
	pos := uint64(uint32(cfbHeaderSize) + sid*cfbSectorSize) // wraps like the reader
	out := make([]byte, cfbSectorSize)
	if pos < uint64(len(c.data)) {
		copy(out, c.data[pos:])
	}
	return out
}

func sectorValues(sec []byte, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(sec[i*4:])
	}
	return out
}

func (c *compoundFile) loadTables() error {
	h := c.data
	sectors := uint32(len(c.data)/cfbSectorSize) + 1

	fatSectors := min(binary.LittleEndian.Uint32(h[44:]), cfbHeaderFATSlots)
	for i := range fatSectors {
		sid := binary.LittleEndian.Uint32(h[76+4*i:])
		c.fat = append(c.fat, sectorValues(c.sector(sid), cfbSectorSize/4)...)
	}

	// Each DIF sector lists 127 FAT sectors of 128 entries.
	maxDIF := int(sectors)/(cfbSectorSize/4*(cfbSectorSize/4-1)) + 1
	for sid, n := binary.LittleEndian.Uint32(h[68:]), 0; sid != cfbEndOfChain; n++ {
		if n >= maxDIF {
			return errors.New("sector allocation table chain does not end")
		}
		sec := c.sector(sid)
		for _, fatSID := range sectorValues(sec, cfbSectorSize/4-1) {
			c.fat = append(c.fat, sectorValues(c.sector(fatSID), cfbSectorSize/4)...)
		}
		sid = binary.LittleEndian.Uint32(sec[cfbSectorSize-4:])
	}

	miniStart, miniCount := binary.LittleEndian.Uint32(h[60:]), binary.LittleEndian.Uint32(h[64:])
	if miniCount > sectors {
		return fmt.Errorf("short sector table declares %d sectors", miniCount)
	}
	if miniStart != cfbEndOfChain {
		values := sectorValues(c.sector(miniStart), cfbSectorSize/4-1)
		for range miniCount {
			c.minifat = append(c.minifat, values...)
		}
	}
	return nil
}

// walkChain follows a sector chain to its end marker.
func walkChain(table []uint32, start uint32) ([]uint32, error) {
	var chain []uint32
	for sid := start; sid != cfbEndOfChain; sid = table[sid] {
		if uint64(sid) >= uint64(len(table)) {
			return nil, fmt.Errorf("sector %d is outside the allocation table", sid)
		}
		if len(chain) >= len(table) {
			return nil, errors.New("sector chain loops")
		}
		chain = append(chain, sid)
	}
	return chain, nil
}

// directory returns the Workbook (or Book) entry and the root entry. The last
// matching entry wins, as in the reader.
func (c *compoundFile) directory(start uint32) (book, root dirEntry, err error) {
	chain, err := walkChain(c.fat, start)
	if err != nil {
		return book, root, fmt.Errorf("directory: %w", err)
	}

	var buf []byte
	for _, sid := range chain {
		buf = append(buf, c.sector(sid)...)
	}

	for off := 0; off+cfbDirEntrySize <= len(buf); off += cfbDirEntrySize {
		e := buf[off : off+cfbDirEntrySize]
		if e[66] == 0 {
			break
		}
		nameSize := binary.LittleEndian.Uint16(e[64:])
		if nameSize < 2 || nameSize > 64 {
			return book, root, fmt.Errorf("directory entry name length %d", nameSize)
		}
		units := make([]uint16, nameSize/2-1)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(e[i*2:])
		}

		entry := dirEntry{
			name:   string(utf16.Decode(units)),
			start:  binary.LittleEndian.Uint32(e[116:]),
			size:   binary.LittleEndian.Uint32(e[120:]),
			exists: true,
		}
		switch entry.name {
		case "Workbook", "Book":
			book = entry
		case "Root Entry":
			root = entry
		}
	}
	return book, root, nil
}

// stream assembles the Workbook stream from its sector chain. Streams under
// the cutoff live in the short-sector stream owned by the root entry.
func (c *compoundFile) stream(book, root dirEntry, cutoff uint32) ([]byte, error) {
	if book.size >= cutoff {
		chain, err := walkChain(c.fat, book.start)
		if err != nil {
			return nil, fmt.Errorf("workbook stream: %w", err)
		}
		var out []byte
		for _, sid := range chain {
			out = append(out, c.sector(sid)...)
		}
		return out, nil
	}

	if !root.exists {
		return nil, errors.New("short workbook stream without a root entry")
	}
	rootChain, err := walkChain(c.fat, root.start)
	if err != nil {
		return nil, fmt.Errorf("short sector stream: %w", err)
	}
	miniChain, err := walkChain(c.minifat, book.start)
	if err != nil {
		return nil, fmt.Errorf("workbook stream: %w", err)
	}

	var container []byte
	for _, sid := range rootChain {
		container = append(container, c.sector(sid)...)
	}
	out := make([]byte, 0, len(miniChain)*cfbMiniSectorSize)
	for _, sid := range miniChain {
		sec := make([]byte, cfbMiniSectorSize)
		if pos := uint64(sid) * cfbMiniSectorSize; pos < uint64(len(container)) {
			copy(sec, container[pos:])
		}
		out = append(out, sec...)
	}
	return out, nil
}

// scanBIFF walks the records of a Workbook stream and rejects those whose
// counts or column indexes the reader would turn into runaway allocations.
func scanBIFF(stream []byte) error {
	for pos := 0; pos+4 <= len(stream); {
		id := binary.LittleEndian.Uint16(stream[pos:])
		size := int(binary.LittleEndian.Uint16(stream[pos+2:]))
		body := stream[pos+4 : min(pos+4+size, len(stream))]
		pos += 4 + size

		switch id {
		case 0x00FC: // SST
			if len(body) >= 8 && uint64(binary.LittleEndian.Uint32(body[4:])) > uint64(len(stream)) {
				return fmt.Errorf("shared string table declares %d strings", binary.LittleEndian.Uint32(body[4:]))
			}
		case 0x0006, 0x00FD, 0x0201, 0x0203, 0x0204, 0x027E: // single cells
			if len(body) >= 4 {
				col := binary.LittleEndian.Uint16(body[2:])
				if err := checkColumns(col, col); err != nil {
					return err
				}
			}
		case 0x00BD, 0x00BE: // MULRK, MULBLANK
			if len(body) < 6 {
				return fmt.Errorf("record %#04x is truncated", id)
			}
			if err := checkColumns(binary.LittleEndian.Uint16(body[2:]), binary.LittleEndian.Uint16(body[len(body)-2:])); err != nil {
				return err
			}
		case 0x01B8:
			if err := checkHyperlink(body); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkColumns(first, last uint16) error {
	if first > last || last >= xlsMaxColumns {
		return fmt.Errorf("cell columns %d..%d are outside the sheet", first, last)
	}
	return nil
}

// checkHyperlink replays the reader's walk over a HYPERLINK record and
// requires every string it sizes to fit inside the record.
func checkHyperlink(body []byte) error {
	if len(body) < 32 {
		return errMalformedHyperlink
	}
	if binary.LittleEndian.Uint16(body[0:]) > binary.LittleEndian.Uint16(body[2:]) {
		return errMalformedHyperlink
	}
	if err := checkColumns(binary.LittleEndian.Uint16(body[4:]), binary.LittleEndian.Uint16(body[6:])); err != nil {
		return err
	}

	pos := 32
	count := func() (uint32, bool) {
		if pos+4 > len(body) {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(body[pos:])
		pos += 4
		return v, true
	}
	// The reader drops the last unit of each string, so one is required.
	utf16Units := func(n uint64) bool {
		if n == 0 || uint64(pos)+n*2 > uint64(len(body)) {
			return false
		}
		pos += int(n * 2)
		return true
	}
	counted := func(divide, extra uint32) bool {
		n, ok := count()
		return ok && utf16Units(uint64(n/divide)+uint64(extra))
	}

	flags := binary.LittleEndian.Uint32(body[28:])
	if flags&0x14 != 0 && !counted(1, 0) {
		return errMalformedHyperlink
	}
	if flags&0x80 != 0 && !counted(1, 0) {
		return errMalformedHyperlink
	}
	if flags&0x01 != 0 {
		if pos+16 > len(body) {
			return errMalformedHyperlink
		}
		guid := body[pos : pos+16]
		pos += 16
		switch {
		case bytes.Equal(guid, urlMoniker):
			if !counted(2, 0) {
				return errMalformedHyperlink
			}
		case bytes.Equal(guid, fileMoniker):
			pos += 2
			n, ok := count()
			if !ok || uint64(pos)+uint64(n)+24 > uint64(len(body)) {
				return errMalformedHyperlink
			}
			pos += int(n) + 24
			n, ok = count()
			if !ok {
				return errMalformedHyperlink
			}
			if n > 0 {
				n, ok = count()
				if !ok {
					return errMalformedHyperlink
				}
				pos += 2
				if !utf16Units(uint64(n/2) + 1) {
					return errMalformedHyperlink
				}
			}
		}
	}
	if flags&0x08 != 0 && !counted(1, 0) {
		return errMalformedHyperlink
	}
	return nil
}
