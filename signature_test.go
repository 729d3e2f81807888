// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

//go:debug rsa1024min=0

package mpq

import (
	"crypto"
	"crypto/md5" //nolint:gosec // Signature format requires MD5.
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // Signature format requires SHA1.
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestVerifySignatureNone(t *testing.T) {
	t.Parallel()

	path := buildTestArchive(t, BuildOptions{Version: 1}, func(b *Builder) {
		if err := b.Add("plain.txt", []byte("unsigned")); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	status, err := a.VerifySignature()
	if err != nil {
		t.Fatal(err)
	}
	if status != SignatureNone {
		t.Fatalf("status %v, want none", status)
	}
}

func TestVerifySignaturePlaceholderIsInvalid(t *testing.T) {
	t.Parallel()

	path := buildTestArchive(t, BuildOptions{Version: 1, SignaturePlaceholder: true}, func(b *Builder) {
		if err := b.Add("plain.txt", []byte("placeholder-signed")); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()

	status, err := a.VerifySignature()
	if err != nil {
		t.Fatal(err)
	}
	if status != SignatureWeakInvalid {
		t.Fatalf("status %v, want weak-invalid", status)
	}
}

func TestVerifyWeakSignature(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 512) //nolint:gosec // Weak signature format is 512-bit.
	if err != nil {
		t.Fatal(err)
	}

	path := buildTestArchive(t, BuildOptions{
		Version:              1,
		SignaturePlaceholder: true,
		DefaultCompression:   CompressZlib,
	}, func(b *Builder) {
		if err := b.Add("payload.txt", compressibleData(4000)); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	info, err := a.FindAnyLocale(signatureName)
	if err != nil {
		t.Fatal(err)
	}
	if info.Flags != FlagExists|FlagSingleUnit {
		t.Fatalf("signature member flags 0x%08X: must be stored raw", info.Flags)
	}

	// Sign: MD5 over the archive with the signature member zeroed, exactly
	// what the verifier recomputes.
	digest, err := a.hashArchive(md5.New(), int64(info.Position), int64(info.CompressedSize)) //nolint:gosec // Signature format requires MD5.
	if err != nil {
		t.Fatal(err)
	}
	_ = a.Close()

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.MD5, digest)
	if err != nil {
		t.Fatal(err)
	}

	// Patch the little-endian signature into the placeholder on disk.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	copy(raw[info.Position+8:], reverseBytes(sig))
	signedPath := filepath.Join(t.TempDir(), "signed.mpq")
	if err := os.WriteFile(signedPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	signed, err := Open(signedPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = signed.Close() }()

	status, err := signed.VerifySignatureKeys(&key.PublicKey, nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != SignatureWeakValid {
		t.Fatalf("status %v, want weak-valid", status)
	}

	// Any content tamper must invalidate the signature. The flipped byte
	// sits inside the first member blob, leaving the tables intact.
	raw[headerSizeV1+8] ^= 0xFF
	tamperedPath := filepath.Join(t.TempDir(), "tampered.mpq")
	if err := os.WriteFile(tamperedPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	tampered, err := Open(tamperedPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = tampered.Close() }()

	status, err = tampered.VerifySignatureKeys(&key.PublicKey, nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != SignatureWeakInvalid {
		t.Fatalf("status %v, want weak-invalid", status)
	}
}

func TestVerifyStrongSignature(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	path := buildTestArchive(t, BuildOptions{Version: 2, DefaultCompression: CompressZlib}, func(b *Builder) {
		if err := b.Add("payload.txt", compressibleData(6000)); err != nil {
			t.Fatal(err)
		}
	})

	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	digest, err := a.hashArchive(sha1.New(), 0, 0) //nolint:gosec // Signature format requires SHA1.
	if err != nil {
		t.Fatal(err)
	}
	_ = a.Close()

	// Strong padding: 0x0B, then 0xBB fill, then the SHA-1 digest.
	padded := make([]byte, 256)
	padded[0] = strongPadType
	for i := 1; i <= strongPadCount; i++ {
		padded[i] = strongPadByte
	}
	copy(padded[1+strongPadCount:], digest)

	m := new(big.Int).SetBytes(padded)
	sig := new(big.Int).Exp(m, key.D, key.N)
	sigLE := reverseBytes(sig.FillBytes(make([]byte, 256)))

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw = append(raw, strongSignatureMagic[:]...)
	raw = append(raw, sigLE...)

	signedPath := filepath.Join(t.TempDir(), "strong.mpq")
	if err := os.WriteFile(signedPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	signed, err := Open(signedPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = signed.Close() }()

	status, err := signed.VerifySignatureKeys(nil, &key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if status != SignatureStrongValid {
		t.Fatalf("status %v, want strong-valid", status)
	}

	// Without a strong key the presence is still reported.
	status, err = signed.VerifySignatureKeys(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != SignatureStrongNoKey {
		t.Fatalf("status %v, want strong-no-key", status)
	}

	// The built-in key cannot validate a foreign signature.
	status, err = signed.VerifySignature()
	if err != nil {
		t.Fatal(err)
	}
	if status != SignatureStrongInvalid {
		t.Fatalf("status %v, want strong-invalid", status)
	}
}

func TestSignaturePlaceholderLayout(t *testing.T) {
	t.Parallel()

	// Guard against regressions in the placeholder layout used by signers.
	if len(signaturePlaceholder()) != weakSignatureSize {
		t.Fatalf("placeholder is %d bytes, want %d", len(signaturePlaceholder()), weakSignatureSize)
	}
	payload := weakSignaturePayload(make([]byte, 64))
	if len(payload) != weakSignatureSize {
		t.Fatalf("payload is %d bytes, want %d", len(payload), weakSignatureSize)
	}
}
