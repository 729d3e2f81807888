// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // Format digests use MD5.
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func crc32Of(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func md5Of(b []byte) [md5.Size]byte {
	return md5.Sum(b) //nolint:gosec // Format digests use MD5.
}

// buildTestArchive writes an archive to a temp path and returns it.
func buildTestArchive(t *testing.T, opts BuildOptions, add func(b *Builder)) string {
	t.Helper()

	b, err := NewBuilder(opts)
	if err != nil {
		t.Fatal(err)
	}
	add(b)

	path := filepath.Join(t.TempDir(), "test.mpq")
	if err := b.Build(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	return path
}

// randomBytes yields a fixed pseudo-random buffer; random data defeats every
// codec, so sectors are stored verbatim.
func randomBytes(t *testing.T, n int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(42)) //nolint:gosec // Deterministic test data.
	out := make([]byte, n)
	if _, err := rng.Read(out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestBuildReadEmptyFileV1(t *testing.T) {
	t.Parallel()

	const name = `unit\neutral\chicken.mdx`

	path := buildTestArchive(t, BuildOptions{Version: 1}, func(b *Builder) {
		if err := b.Add(name, nil); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	data, err := a.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("read %d bytes, want 0", len(data))
	}

	entry, err := hashTableLookup(a.hashTable, name, LocaleNeutral)
	if err != nil {
		t.Fatal(err)
	}
	if entry.NameA != 0x30B429DA || entry.NameB != 0x3DC91053 {
		t.Fatalf("hash entry 0x%08X/0x%08X, want 0x30B429DA/0x3DC91053", entry.NameA, entry.NameB)
	}
}

func TestSectorRoundTripEncryptedCRC(t *testing.T) {
	t.Parallel()

	const name = `data\blob.bin`
	content := randomBytes(t, 10000)

	path := buildTestArchive(t, BuildOptions{
		Version:            2,
		SectorSizeShift:    3, // 4 KiB sectors
		DefaultCompression: CompressZlib,
	}, func(b *Builder) {
		err := b.AddWithOptions(name, content, FileOptions{Encrypt: true, SectorCRC: true})
		if err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	info, err := a.Find(name, LocaleNeutral)
	if err != nil {
		t.Fatal(err)
	}

	// 10,000 bytes in 4 KiB sectors: 3 sectors, a 16-byte offset table and a
	// 12-byte CRC array ahead of the payload.
	block := &a.blockTable[info.BlockIndex]
	key := fileKey(name, block.pos64(), block.FileSize, block.Flags)
	sm, err := a.readSectorMap(a.base+int64(block.pos64()), block, key, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(sm.offsets) != 4 {
		t.Fatalf("offset table has %d entries, want 4", len(sm.offsets))
	}
	if len(sm.crcs) != 3 {
		t.Fatalf("CRC array has %d entries, want 3", len(sm.crcs))
	}
	if sm.offsets[0] != 16+12 {
		t.Fatalf("first offset %d, want 28", sm.offsets[0])
	}

	data, err := a.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Fatal("round trip mismatch")
	}

	// Any single-byte perturbation of a sector body must trip its CRC.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sectorByte := int64(block.pos64()) + int64(sm.offsets[1]) + 100
	raw[sectorByte] ^= 0x01

	corruptPath := filepath.Join(t.TempDir(), "corrupt.mpq")
	if err := os.WriteFile(corruptPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Open(corruptPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.ReadFile(name); !errors.Is(err, ErrCrcMismatch) {
		t.Fatalf("got %v, want ErrCrcMismatch", err)
	}
}

func TestHetBetAgreeWithClassicTables(t *testing.T) {
	t.Parallel()

	path := buildTestArchive(t, BuildOptions{
		Version:            3,
		DefaultCompression: CompressZlib,
		GenerateListfile:   true,
	}, func(b *Builder) {
		for i := 1; i <= 1000; i++ {
			name := fmt.Sprintf("file_%04d", i)
			if err := b.Add(name, []byte(name)); err != nil {
				t.Fatal(err)
			}
		}
	})

	a, err := OpenWithOptions(path, ReaderOptions{UseExtendedTables: true})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	if a.het == nil || a.bet == nil {
		t.Fatal("v3 archive must carry HET and BET tables")
	}

	for i := 1; i <= 1000; i++ {
		name := fmt.Sprintf("file_%04d", i)

		classic, err := hashTableLookup(a.hashTable, name, LocaleAny)
		if err != nil {
			t.Fatalf("%s: classic: %v", name, err)
		}

		extIndex, ok := a.het.lookup(name, nil)
		if !ok {
			t.Fatalf("%s: HET lookup failed", name)
		}
		if extIndex != classic.BlockIndex {
			t.Fatalf("%s: HET index %d, classic block %d", name, extIndex, classic.BlockIndex)
		}

		data, err := a.ReadFile(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(data) != name {
			t.Fatalf("%s: content %q", name, data)
		}
	}
}

func TestUserDataPreamble(t *testing.T) {
	t.Parallel()

	const name = "readme.txt"
	content := []byte("archive behind a user data preamble")

	path := buildTestArchive(t, BuildOptions{Version: 1}, func(b *Builder) {
		if err := b.Add(name, content); err != nil {
			t.Fatal(err)
		}
	})

	archive, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	stream := make([]byte, 1024+len(archive))
	copy(stream, bytes.Repeat([]byte{0xA5}, 512))
	binary.LittleEndian.PutUint32(stream[512:], magicUserData)
	binary.LittleEndian.PutUint32(stream[516:], 512) // user data size
	binary.LittleEndian.PutUint32(stream[520:], 512) // header offset
	binary.LittleEndian.PutUint32(stream[524:], 16)  // user data header size
	copy(stream[1024:], archive)

	a, err := NewFromReaderAt(bytes.NewReader(stream), int64(len(stream)))
	if err != nil {
		t.Fatal(err)
	}
	if a.base != 1024 {
		t.Fatalf("archive base %d, want 1024", a.base)
	}

	data, err := a.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Fatal("round trip mismatch")
	}
}

func TestDeterministicBuilds(t *testing.T) {
	t.Parallel()

	build := func() []byte {
		path := buildTestArchive(t, BuildOptions{
			Version:            3,
			DefaultCompression: CompressZlib,
			GenerateListfile:   true,
			GenerateAttributes: true,
		}, func(b *Builder) {
			if err := b.Add(`a\one.txt`, compressibleData(9000)); err != nil {
				t.Fatal(err)
			}
			if err := b.AddWithOptions(`b\two.bin`, randomBytes(t, 3000), FileOptions{Encrypt: true}); err != nil {
				t.Fatal(err)
			}
		})

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	if !bytes.Equal(build(), build()) {
		t.Fatal("two builds from identical inputs differ")
	}
}

func TestSingleUnitEncryptedUncompressed(t *testing.T) {
	t.Parallel()

	const name = `secret.dat`
	content := randomBytes(t, 1000)

	path := buildTestArchive(t, BuildOptions{Version: 1}, func(b *Builder) {
		err := b.AddWithOptions(name, content, FileOptions{
			Encrypt:    true,
			SingleUnit: true,
			Store:      true,
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	info, err := a.FindAnyLocale(name)
	if err != nil {
		t.Fatal(err)
	}
	if info.Flags&FlagCompress != 0 {
		t.Fatal("stored-raw single unit must not carry the compress flag")
	}
	if info.Flags&FlagSingleUnit == 0 || info.Flags&FlagEncrypted == 0 {
		t.Fatalf("flags 0x%08X missing single-unit or encrypted", info.Flags)
	}

	data, err := a.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Fatal("round trip mismatch")
	}
}

func TestEncryptedEmptyAndFixKey(t *testing.T) {
	t.Parallel()

	path := buildTestArchive(t, BuildOptions{Version: 2, DefaultCompression: CompressZlib}, func(b *Builder) {
		if err := b.AddWithOptions("empty.bin", nil, FileOptions{Encrypt: true}); err != nil {
			t.Fatal(err)
		}
		err := b.AddWithOptions(`scripts\fixed.j`, compressibleData(10000), FileOptions{Encrypt: true, FixKey: true})
		if err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	empty, err := a.ReadFile("empty.bin")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("encrypted empty file decoded to %d bytes", len(empty))
	}

	fixed, err := a.ReadFile(`scripts\fixed.j`)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fixed, compressibleData(10000)) {
		t.Fatal("fix-key round trip mismatch")
	}
}

func TestStrictDecrypt(t *testing.T) {
	t.Parallel()

	const name = "odd.bin"
	content := randomBytes(t, 10001) // odd tail sector

	path := buildTestArchive(t, BuildOptions{Version: 1}, func(b *Builder) {
		if err := b.AddWithOptions(name, content, FileOptions{Encrypt: true}); err != nil {
			t.Fatal(err)
		}
	})

	relaxed, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = relaxed.Close() }()

	data, err := relaxed.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Fatal("round trip mismatch")
	}

	strict, err := OpenWithOptions(path, ReaderOptions{StrictDecrypt: true})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = strict.Close() }()

	if _, err := strict.ReadFile(name); !errors.Is(err, ErrDecryptSize) {
		t.Fatalf("got %v, want ErrDecryptSize", err)
	}

	// The streaming surface honors the same option.
	f, err := strict.OpenFile(name)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, len(content))
	for {
		if _, err = f.Read(buf); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrDecryptSize) {
		t.Fatalf("streaming read: got %v, want ErrDecryptSize", err)
	}
}

func TestListfileAndEntries(t *testing.T) {
	t.Parallel()

	names := []string{`war3map.j`, `units\data.slk`, `sound\click.wav`}

	path := buildTestArchive(t, BuildOptions{
		Version:            1,
		DefaultCompression: CompressZlib,
		GenerateListfile:   true,
	}, func(b *Builder) {
		for _, name := range names {
			if err := b.Add(name, []byte(name)); err != nil {
				t.Fatal(err)
			}
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	entries := a.Entries()
	if len(entries) != len(names)+1 { // + (listfile)
		t.Fatalf("%d entries, want %d", len(entries), len(names)+1)
	}

	byName := map[string]FileInfo{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	for _, name := range names {
		e, ok := byName[name]
		if !ok {
			t.Fatalf("%s missing from entries", name)
		}
		if e.NameGuessed {
			t.Fatalf("%s: name should come from the listfile", name)
		}
		if e.Size != uint64(len(name)) {
			t.Fatalf("%s: size %d, want %d", name, e.Size, len(name))
		}
	}

	// Without the listfile, names fall back to placeholders.
	blind, err := OpenWithOptions(path, ReaderOptions{SkipListfile: true})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = blind.Close() }()

	for _, e := range blind.Entries() {
		if !e.NameGuessed {
			t.Fatalf("entry %d: expected placeholder name, got %q", e.BlockIndex, e.Name)
		}
	}
}

func TestAttributesGeneration(t *testing.T) {
	t.Parallel()

	content := compressibleData(500)

	path := buildTestArchive(t, BuildOptions{
		Version:            1,
		DefaultCompression: CompressZlib,
		GenerateListfile:   true,
		GenerateAttributes: true,
	}, func(b *Builder) {
		if err := b.Add("payload.txt", content); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	attrs, err := a.Attributes()
	if err != nil {
		t.Fatal(err)
	}
	if attrs == nil {
		t.Fatal("attributes missing")
	}
	if attrs.Version != attributesVersion {
		t.Fatalf("version %d, want %d", attrs.Version, attributesVersion)
	}
	if attrs.Flags != AttrCRC32|AttrFileTime|AttrMD5 {
		t.Fatalf("flags 0x%X", attrs.Flags)
	}
	if len(attrs.CRC32) != len(a.blockTable) {
		t.Fatalf("CRC array covers %d blocks, want %d", len(attrs.CRC32), len(a.blockTable))
	}

	info, err := a.FindAnyLocale("payload.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got := attrs.CRC32[info.BlockIndex]; got != crc32Of(content) {
		t.Fatalf("CRC 0x%08X, want 0x%08X", got, crc32Of(content))
	}
	for _, ft := range attrs.FileTimes {
		if ft != 0 {
			t.Fatal("file times must stay zero for deterministic builds")
		}
	}
}

func TestOpenFileStreaming(t *testing.T) {
	t.Parallel()

	const name = `movies\intro.bin`
	content := compressibleData(50000)

	path := buildTestArchive(t, BuildOptions{
		Version:            1,
		DefaultCompression: CompressZlib,
	}, func(b *Builder) {
		if err := b.AddWithOptions(name, content, FileOptions{SectorCRC: true}); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	f, err := a.OpenFile(name)
	if err != nil {
		t.Fatal(err)
	}

	var streamed bytes.Buffer
	buf := make([]byte, 1000)
	for {
		n, err := f.Read(buf)
		streamed.Write(buf[:n])
		if err != nil {
			break
		}
	}

	if !bytes.Equal(streamed.Bytes(), content) {
		t.Fatal("streamed content differs from ReadFile content")
	}
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.BuildWriter(context.Background(), nil); !errors.Is(err, ErrNilWriter) {
		t.Fatalf("nil writer: got %v", err)
	}

	path := filepath.Join(t.TempDir(), "empty.mpq")
	if err := b.Build(context.Background(), path); !errors.Is(err, ErrNoFilesToArchive) {
		t.Fatalf("no files: got %v", err)
	}

	if err := b.Add("dup.txt", nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Add(`DUP.TXT`, nil); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate: got %v", err)
	}
	if err := b.AddWithOptions("dup.txt", nil, FileOptions{Locale: 0x409}); err != nil {
		t.Fatalf("same name under a new locale must be allowed: %v", err)
	}

	long := make([]byte, maxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := b.Add(string(long), nil); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("long name: got %v", err)
	}

	if _, err := NewBuilder(BuildOptions{Version: 9}); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("bad version: got %v", err)
	}
	if _, err := NewBuilder(BuildOptions{HashTableSize: 24}); !errors.Is(err, ErrCorruptHashTable) {
		t.Fatalf("bad capacity: got %v", err)
	}
	if _, err := NewBuilder(BuildOptions{DefaultCompression: 0x04}); !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("bad mask: got %v", err)
	}
}

func TestHashTableFullAtBuild(t *testing.T) {
	t.Parallel()

	b, err := NewBuilder(BuildOptions{HashTableSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := b.Add(fmt.Sprintf("f%d.txt", i), nil); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "full.mpq")
	if err := b.Build(context.Background(), path); !errors.Is(err, ErrHashTableFull) {
		t.Fatalf("got %v, want ErrHashTableFull", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("failed build must not leave the destination behind")
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		`readme.txt`:        []byte("top level"),
		`maps\one\data.bin`: compressibleData(5000),
		`maps\two\data.bin`: randomBytes(t, 2000),
	}

	path := buildTestArchive(t, BuildOptions{
		Version:            1,
		DefaultCompression: CompressZlib,
		GenerateListfile:   true,
	}, func(b *Builder) {
		for _, name := range []string{`readme.txt`, `maps\one\data.bin`, `maps\two\data.bin`} {
			if err := b.Add(name, files[name]); err != nil {
				t.Fatal(err)
			}
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	dst := t.TempDir()
	var doneCount int
	err = a.Extract(context.Background(), dst, ExtractOptions{
		MaxWorkers:  1,
		OnEntryDone: func(FileInfo, int64, string) { doneCount++ },
	})
	if err != nil {
		t.Fatal(err)
	}

	if doneCount != 4 { // three inputs + (listfile)
		t.Fatalf("OnEntryDone fired %d times, want 4", doneCount)
	}

	for name, want := range files {
		onDisk := filepath.Join(dst, filepath.FromSlash(normalizeTestPath(name)))
		got, err := os.ReadFile(onDisk)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("%s: content mismatch", name)
		}
	}
}

// normalizeTestPath converts an archive path to the slash form Extract uses.
func normalizeTestPath(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' {
			out[i] = '/'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

func TestVerifyCleanArchive(t *testing.T) {
	t.Parallel()

	path := buildTestArchive(t, BuildOptions{
		Version:            2,
		DefaultCompression: CompressZlib,
		GenerateListfile:   true,
	}, func(b *Builder) {
		if err := b.Add("one.txt", compressibleData(9000)); err != nil {
			t.Fatal(err)
		}
		if err := b.AddWithOptions("two.bin", randomBytes(t, 100), FileOptions{SectorCRC: true}); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	if problems := a.Verify(); len(problems) != 0 {
		t.Fatalf("clean archive reported problems: %+v", problems)
	}
}

func TestBuildV4HeaderDigests(t *testing.T) {
	t.Parallel()

	path := buildTestArchive(t, BuildOptions{
		Version:            4,
		DefaultCompression: CompressZlib,
		GenerateListfile:   true,
	}, func(b *Builder) {
		if err := b.Add("content.txt", compressibleData(3000)); err != nil {
			t.Fatal(err)
		}
	})

	a, err := OpenWithOptions(path, ReaderOptions{UseExtendedTables: true})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	h := a.Header()
	if h.HeaderSize != headerSizeV4 {
		t.Fatalf("header size %d, want %d", h.HeaderSize, headerSizeV4)
	}
	if h.HashTableSize64 == 0 || h.BlockTableSize64 == 0 || h.HetTableSize64 == 0 || h.BetTableSize64 == 0 {
		t.Fatal("v4 table sizes missing")
	}

	// The stored digests must match the tables as persisted on disk.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	hashRegion := raw[h.hashTablePos64() : h.hashTablePos64()+h.HashTableSize64]
	if md5Of(hashRegion) != h.MD5HashTable {
		t.Fatal("hash table digest mismatch")
	}
	hetRegion := raw[h.HetTablePos : h.HetTablePos+h.HetTableSize64]
	if md5Of(hetRegion) != h.MD5HetTable {
		t.Fatal("HET table digest mismatch")
	}

	if md5Of(raw[:headerMD5Prefix]) != h.MD5Header {
		t.Fatal("header prefix digest mismatch")
	}

	if _, err := a.ReadFile("content.txt"); err != nil {
		t.Fatal(err)
	}
}
