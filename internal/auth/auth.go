package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrChallengeExpired = errors.New("challenge expired")
	ErrAddressMismatch  = errors.New("signature does not match address")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
)

type Service struct {
	store        store.Store
	tokenTTL     time.Duration
	challengeTTL time.Duration
	now          func() time.Time
}

func NewService(store store.Store, tokenTTL, challengeTTL time.Duration) *Service {
	return &Service{
		store:        store,
		tokenTTL:     tokenTTL,
		challengeTTL: challengeTTL,
		now:          time.Now,
	}
}

// CreateChallenge issues a single-use message for address to sign.
func (s *Service) CreateChallenge(ctx context.Context, address model.Address) (model.AuthChallenge, error) {
	if address.IsZero() {
		return model.AuthChallenge{}, errors.New("address required")
	}
	nonce, err := randomToken(32)
	if err != nil {
		return model.AuthChallenge{}, err
	}
	c := model.AuthChallenge{
		Challenge: "vhibes login " + nonce,
		Address:   address,
		ExpiresAt: s.now().Add(s.challengeTTL),
	}
	err = s.store.Update(ctx, func(tx store.Tx) error {
		return tx.CreateAuthChallenge(ctx, c)
	})
	if err != nil {
		return model.AuthChallenge{}, err
	}
	return c, nil
}

// VerifyAndCreateToken consumes the challenge, recovers the signer of its
// personal-sign hash and issues a bearer token when the signer is address.
func (s *Service) VerifyAndCreateToken(ctx context.Context, address model.Address, challenge, signature string) (model.Token, error) {
	var token model.Token
	err := s.store.Update(ctx, func(tx store.Tx) error {
		c, err := tx.ConsumeAuthChallenge(ctx, challenge)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidChallenge
		}
		if err != nil {
			return err
		}
		if s.now().After(c.ExpiresAt) {
			return ErrChallengeExpired
		}
		if c.Address != address {
			return ErrAddressMismatch
		}
		signer, err := RecoverAddress(challenge, signature)
		if err != nil {
			return err
		}
		if signer != address {
			return ErrAddressMismatch
		}
		value, err := randomToken(32)
		if err != nil {
			return err
		}
		token = model.Token{
			Token:     value,
			Address:   address,
			ExpiresAt: s.now().Add(s.tokenTTL),
		}
		return tx.CreateToken(ctx, token)
	})
	if err != nil {
		return model.Token{}, err
	}
	return token, nil
}

func (s *Service) Authenticate(ctx context.Context, bearer string) (model.Address, error) {
	var token model.Token
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		token, err = tx.GetToken(ctx, bearer)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	if s.now().After(token.ExpiresAt) {
		return "", ErrTokenExpired
	}
	return token.Address, nil
}

// RecoverAddress returns the address whose key produced signature over the
// Ethereum personal-sign hash of message. signature is 65 hex bytes r||s||v.
func RecoverAddress(message, signature string) (model.Address, error) {
	sig, err := decodeHex(signature)
	if err != nil || len(sig) != 65 {
		return "", ErrInvalidSignature
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", ErrInvalidSignature
	}
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, ethereumPersonalHash([]byte(message)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return AddressFromPublicKey(pub), nil
}

// SignMessage produces an r||s||v personal-sign signature, hex encoded.
func SignMessage(key *secp256k1.PrivateKey, message string) string {
	compact := ecdsa.SignCompact(key, ethereumPersonalHash([]byte(message)), false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}

// AddressFromPublicKey derives the 20-byte Keccak-256 account address.
func AddressFromPublicKey(pub *secp256k1.PublicKey) model.Address {
	raw := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(raw[1:])
	sum := h.Sum(nil)
	return model.Address("0x" + hex.EncodeToString(sum[12:]))
}

func decodeHex(input string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(input), "0x")
	return hex.DecodeString(clean)
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func ethereumPersonalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefix))
	h.Write(msg)
	return h.Sum(nil)
}
