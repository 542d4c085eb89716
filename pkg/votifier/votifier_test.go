package votifier

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGreeting(t *testing.T) {
	p := newTestProtocol(t)
	if g := string(p.Greeting()); g != "VOTIFIER 2.0\n" {
		t.Errorf("incorrect greeting %q", g)
	}
}

func TestKeyGeneration(t *testing.T) {
	dir := t.TempDir()
	keys := filepath.Join(dir, "nested", "keys")

	p, err := New(keys)
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	for _, fn := range []string{"private.pem", "public.pem"} {
		if _, err := os.Stat(filepath.Join(keys, fn)); err != nil {
			t.Errorf("missing %s: %v", fn, err)
		}
	}

	pub, err := p.PublicKeyPEM()
	if err != nil {
		t.Fatalf("public key pem: %v", err)
	}
	if !strings.HasPrefix(pub, "-----BEGIN PUBLIC KEY-----") {
		t.Errorf("public key not in SubjectPublicKeyInfo pem form: %q", pub[:40])
	}

	// a second init must reuse the persisted pair, not mint a new one
	p2, err := New(keys)
	if err != nil {
		t.Fatalf("reload keys: %v", err)
	}
	if p.priv.N.Cmp(p2.priv.N) != 0 {
		t.Error("keypair was regenerated instead of loaded")
	}
}

func TestProcessRoundTrip(t *testing.T) {
	p := newTestProtocol(t)

	block := encryptVote(t, &p.priv.PublicKey, "VOTE\nPMC\nSteve\n1.2.3.4\n1700000000\n")
	vote, err := p.Process(block)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	want := Vote{Service: "PMC", User: "Steve", Address: "1.2.3.4", Timestamp: "1700000000"}
	if vote != want {
		t.Errorf("incorrect vote %+v, want %+v", vote, want)
	}
}

func TestProcessTrailingGarbage(t *testing.T) {
	p := newTestProtocol(t)

	block := encryptVote(t, &p.priv.PublicKey, "VOTE\nPMC\nSteve\n1.2.3.4\n1700000000\nextra\nstuff")
	if _, err := p.Process(block); err != nil {
		t.Errorf("trailing bytes after the fifth line must be tolerated: %v", err)
	}
}

func TestDecryptBlockSize(t *testing.T) {
	p := newTestProtocol(t)
	if _, err := p.Decrypt(make([]byte, 255)); !errors.Is(err, ErrBlockSize) {
		t.Errorf("got %v, want ErrBlockSize", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	p := newTestProtocol(t)
	block := make([]byte, BlockSize)
	rand.Read(block)
	if _, err := p.Decrypt(block); !errors.Is(err, ErrCrypto) {
		t.Errorf("got %v, want ErrCrypto", err)
	}
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		name  string
		plain string
		err   error
		want  Vote
	}{
		{"ok", "VOTE\nPMC\nSteve\n1.2.3.4\n1700000000\n", nil, Vote{"PMC", "Steve", "1.2.3.4", "1700000000"}},
		{"trimmed", "VOTE\n PMC \n Steve\t\n1.2.3.4 \n 1700000000\n", nil, Vote{"PMC", "Steve", "1.2.3.4", "1700000000"}},
		{"bad opcode", "NOPE\nPMC\nSteve\n1.2.3.4\n1700000000\n", ErrBadOpcode, Vote{}},
		{"truncated", "VOTE\nPMC\nSteve\n", ErrTruncated, Vote{}},
		{"bad utf8", "VOTE\nPMC\nSte\xffve\n1.2.3.4\n1700000000\n", ErrEncoding, Vote{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vote, err := Parse([]byte(tc.plain))
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("got %v, want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if vote != tc.want {
				t.Errorf("incorrect vote %+v, want %+v", vote, tc.want)
			}
		})
	}
}

func newTestProtocol(t *testing.T) *Protocol {
	t.Helper()
	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("init protocol: %v", err)
	}
	return p
}

func encryptVote(t *testing.T, pub *rsa.PublicKey, payload string) []byte {
	t.Helper()
	block, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(payload))
	if err != nil {
		t.Fatalf("encrypt vote: %v", err)
	}
	return block
}
