// Package votifier implements the Votifier wire protocol used by public
// voting sites: an RSA keypair, the protocol greeting, and decryption and
// parsing of the single 256-byte vote block a client sends.
package votifier

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const Version = "2.0"

// BlockSize is the exact size of the encrypted vote block (RSA-2048).
const BlockSize = 256

var (
	ErrBlockSize = errors.New("invalid vote block size")
	ErrCrypto    = errors.New("vote block decryption failed")
	ErrBadOpcode = errors.New("invalid vote opcode")
	ErrTruncated = errors.New("truncated vote payload")
	ErrEncoding  = errors.New("vote payload is not valid utf-8")
)

// Vote is a single vote extracted from a decrypted block.
type Vote struct {
	Service   string
	User      string
	Address   string
	Timestamp string
}

func (v Vote) String() string {
	return fmt.Sprintf("Vote(service=%s, user=%s, addr=%s, time=%s)", v.Service, v.User, v.Address, v.Timestamp)
}

// Protocol holds the RSA keypair and decodes vote blocks.
type Protocol struct {
	priv *rsa.PrivateKey
}

// New loads the keypair from keysDir (private.pem, public.pem), generating
// and persisting a fresh 2048-bit pair if either file is missing. Parent
// directories are created as needed.
func New(keysDir string) (*Protocol, error) {
	privPath := filepath.Join(keysDir, "private.pem")
	pubPath := filepath.Join(keysDir, "public.pem")

	if _, err := os.Stat(privPath); err == nil {
		if _, err := os.Stat(pubPath); err == nil {
			priv, err := loadPrivateKey(privPath)
			if err != nil {
				return nil, fmt.Errorf("load keypair: %w", err)
			}
			return &Protocol{priv: priv}, nil
		}
	}

	priv, err := generateKeys(keysDir, privPath, pubPath)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Protocol{priv: priv}, nil
}

// Greeting returns the bytes sent to a client immediately on accept.
func (p *Protocol) Greeting() []byte {
	return []byte("VOTIFIER " + Version + "\n")
}

// PublicKeyPEM returns the public key in SubjectPublicKeyInfo PEM form, as
// pasted into voting site configuration.
func (p *Protocol) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&p.priv.PublicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Decrypt decrypts a 256-byte PKCS#1 v1.5 vote block.
func (p *Protocol) Decrypt(block []byte) ([]byte, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrBlockSize, BlockSize, len(block))
	}
	plain, err := rsa.DecryptPKCS1v15(nil, p.priv, block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return plain, nil
}

// Parse decodes a decrypted vote payload. The payload is five
// newline-separated lines: "VOTE", service, user, address, timestamp. Bytes
// after the fifth line are tolerated.
func Parse(plain []byte) (Vote, error) {
	if !utf8.Valid(plain) {
		return Vote{}, ErrEncoding
	}
	lines := strings.Split(strings.TrimSpace(string(plain)), "\n")
	if len(lines) < 5 {
		return Vote{}, fmt.Errorf("%w: expected 5 lines, got %d", ErrTruncated, len(lines))
	}
	if op := strings.TrimSpace(lines[0]); op != "VOTE" {
		return Vote{}, fmt.Errorf("%w: %q", ErrBadOpcode, op)
	}
	return Vote{
		Service:   strings.TrimSpace(lines[1]),
		User:      strings.TrimSpace(lines[2]),
		Address:   strings.TrimSpace(lines[3]),
		Timestamp: strings.TrimSpace(lines[4]),
	}, nil
}

// Process decrypts and parses a vote block in one step.
func (p *Protocol) Process(block []byte) (Vote, error) {
	plain, err := p.Decrypt(block)
	if err != nil {
		return Vote{}, err
	}
	return Parse(plain)
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	blk, _ := pem.Decode(buf)
	if blk == nil {
		return nil, fmt.Errorf("no pem block in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(blk.Bytes)
	if err != nil {
		// older installs kept PKCS#1 keys around
		if k, err1 := x509.ParsePKCS1PrivateKey(blk.Bytes); err1 == nil {
			return k, nil
		}
		return nil, err
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s is not an rsa key", path)
	}
	return priv, nil
}

func generateKeys(dir, privPath, pubPath string) (*rsa.PrivateKey, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := writeFileAtomic(privPath, privPEM, 0600); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(pubPath, pubPEM, 0644); err != nil {
		return nil, err
	}
	return priv, nil
}

func writeFileAtomic(path string, buf []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, mode); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
