package keys

import (
	"bytes"
	"encoding/hex"
	"testing"

	"golang.org/x/crypto/sha3"
)

const (
	testPrivKey = "ab14bca2fd7703b76972a696a6df4ebeb45f20d01086d695b46b6120adbae4d9"
	testPubKey  = "2c898cbae86245c2e4dd10f83d060b8d97eca3c4467bd4f0f4260c16c69912476d18e479adeafbedfdb9900554b9a2fb3806e95bd1d881b12a096bd15ce4e109"
	testAddress = "n1TA6on2ikjjUcpwbtjjcsAgHTP7fEZ41Bk"

	fixedMessage = "this is my fixed message to sign"
)

func Test_KeyDerivation(t *testing.T) {
	k, err := FromHex(testPrivKey)
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if g, w := k.PrivateKeyHex(), testPrivKey; g != w {
		t.Errorf("unexpected private key, got %v, want %v", g, w)
	}
	if g, w := len(k.PrivateKey()), PrivateKeyLength; g != w {
		t.Errorf("unexpected private key length, got %v, want %v", g, w)
	}
	if g, w := k.PublicKeyHex(), testPubKey; g != w {
		t.Errorf("unexpected public key, got %v, want %v", g, w)
	}
	if g, w := k.Address().String(), testAddress; g != w {
		t.Errorf("unexpected address, got %v, want %v", g, w)
	}

	raw, _ := hex.DecodeString(testPrivKey)
	k2, err := FromBytes(raw)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if k2.Address() != k.Address() {
		t.Errorf("address mismatch between hex and raw constructors")
	}
}

func Test_InvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		hex  string
	}{
		{"empty", ""},
		{"short", "ab14bca2"},
		{"not-hex", "zz14bca2fd7703b76972a696a6df4ebeb45f20d01086d695b46b6120adbae4d9"},
		{"zero", "0000000000000000000000000000000000000000000000000000000000000000"},
		{"curve-order", "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromHex(tt.hex); err == nil {
				t.Errorf("expected error for %v", tt.hex)
			}
		})
	}
}

func Test_Generate(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	k2, err := FromBytes(k.PrivateKey())
	if err != nil {
		t.Fatal(err)
	}
	if k.Address() != k2.Address() {
		t.Errorf("regenerated key has different address")
	}
}

func Test_Deterministic_Signatures(t *testing.T) {
	k, err := FromHex(testPrivKey)
	if err != nil {
		t.Fatal(err)
	}
	hash := sha3.Sum256([]byte(fixedMessage))

	sig, err := k.Sign(hash[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if g, w := len(sig), SignatureLength; g != w {
		t.Fatalf("unexpected signature length, got %v, want %v", g, w)
	}
	if v := sig[64]; v > 1 {
		t.Errorf("unexpected recovery id %d", v)
	}

	sig2, err := k.Sign(hash[:])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sig, sig2) {
		t.Errorf("signatures are not deterministic")
	}

	if !VerifySignature(k.PublicKey(), hash[:], sig) {
		t.Errorf("signature invalid")
	}

	addr, err := RecoverAddress(hash[:], sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if g, w := addr.String(), testAddress; g != w {
		t.Errorf("unexpected recovered address, got %v, want %v", g, w)
	}

	other := sha3.Sum256([]byte("tampered"))
	if VerifySignature(k.PublicKey(), other[:], sig) {
		t.Errorf("signature valid for tampered message")
	}
	if _, err := RecoverPublicKey(hash[:], sig[:64]); err == nil {
		t.Errorf("expected error for truncated signature")
	}
}

func Test_Zero(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	k.Zero()
	hash := sha3.Sum256([]byte(fixedMessage))
	if _, err := k.Sign(hash[:]); err == nil {
		t.Errorf("expected error signing with zeroed key")
	}
	var nilKey *Key
	nilKey.Zero()
}
