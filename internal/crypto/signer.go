package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Pre-computed keccak256 hashes of the canonical EIP-712 type strings.
var (
	domainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)
	authTypeHash = ethcrypto.Keccak256(
		[]byte("ClobAuth(address address,uint256 timestamp,uint256 nonce)"),
	)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// OrderPayload carries the signable fields of a venue limit order. Amounts
// are integer microunits; the venue client formats them for the wire after
// signing.
type OrderPayload struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8 // 0 = BUY, 1 = SELL
	SignatureType uint8 // 0 = EOA
}

// Signer produces the EIP-712 signatures the venue requires for order
// placement and for the derive-api-key auth flow. Both message families are
// verified against the same ClobAuthDomain separator, so it is hashed once
// at construction.
type Signer struct {
	key       *ecdsa.PrivateKey
	address   common.Address
	domainSep []byte
}

// NewSigner builds a Signer from a hex-encoded secp256k1 private key and
// the target chain ID (137 for Polygon mainnet, 80002 for Amoy).
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}

	s := &Signer{
		key:     pk,
		address: ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.domainSep = ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte("ClobAuthDomain")),
		ethcrypto.Keccak256([]byte("1")),
		uint256Word(big.NewInt(int64(chainID))),
	)
	return s, nil
}

// Address returns the account derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignAuthMessage signs the ClobAuth challenge used to derive an API key.
func (s *Signer) SignAuthMessage(address string, timestamp, nonce int64) (string, error) {
	structHash := ethcrypto.Keccak256(
		authTypeHash,
		addressWord(common.HexToAddress(address)),
		uint256Word(big.NewInt(timestamp)),
		uint256Word(big.NewInt(nonce)),
	)
	return s.sign(structHash)
}

// SignOrder signs a limit order payload, returning a hex-encoded 65-byte
// r||s||v signature.
func (s *Signer) SignOrder(o OrderPayload) (string, error) {
	structHash := ethcrypto.Keccak256(
		orderTypeHash,
		uint256Word(o.Salt),
		addressWord(o.Maker),
		addressWord(o.Signer),
		addressWord(o.Taker),
		uint256Word(o.TokenID),
		uint256Word(o.MakerAmount),
		uint256Word(o.TakerAmount),
		uint256Word(o.Expiration),
		uint256Word(o.Nonce),
		uint256Word(o.FeeRateBps),
		uint256Word(big.NewInt(int64(o.Side))),
		uint256Word(big.NewInt(int64(o.SignatureType))),
	)
	return s.sign(structHash)
}

// sign computes the EIP-712 digest of structHash under the cached domain
// separator and signs it.
func (s *Signer) sign(structHash []byte) (string, error) {
	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, s.domainSep, structHash)

	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign digest: %w", err)
	}

	// go-ethereum yields the recovery byte in {0,1}; the venue expects {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// uint256Word encodes n as a 32-byte big-endian word. Nil counts as zero.
func uint256Word(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return common.BigToHash(n).Bytes()
}

// addressWord left-pads a 20-byte address to a 32-byte word.
func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}
