// Package crypto provides EIP-712 order signing, HMAC request
// authentication, and encrypted credential storage for the Polymarket
// CLOB API.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

const (
	// exchangeDomainName and exchangeDomainVersion identify the CTF
	// Exchange contract's EIP-712 domain.
	exchangeDomainName    = "Polymarket CTF Exchange"
	exchangeDomainVersion = "1"

	// zeroAddress is the open taker: anyone may fill the order.
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// sigTypeEOA marks a plain externally-owned-account signature.
	sigTypeEOA = 0

	sideBuy  = 0
	sideSell = 1
)

// maxSalt bounds the random order salt. Salts only need to make each
// signature unique, so 2^53 keeps them representable in JSON numbers.
var maxSalt = new(big.Int).Lsh(big.NewInt(1), 53)

// OrderSigner builds and signs CLOB orders against one CTF Exchange
// deployment. It holds no key material; the private key arrives per call
// because each follower account signs with its own wallet.
type OrderSigner struct {
	chainID   int64
	exchange  common.Address
	domainSep []byte // cached EIP-712 domain separator hash
}

// NewOrderSigner creates an OrderSigner for the given chain
// (137 for Polygon mainnet, 80002 for Amoy testnet) and exchange
// contract address.
func NewOrderSigner(chainID int64, exchangeAddress string) *OrderSigner {
	s := &OrderSigner{
		chainID:  chainID,
		exchange: common.HexToAddress(exchangeAddress),
	}
	s.domainSep = buildDomainSeparator(exchangeDomainName, exchangeDomainVersion, chainID, s.exchange)
	return s
}

// SignOrder assembles a fill-and-kill style order for the given token,
// price, and size, signs it with the account's private key, and returns
// the ready-to-submit payload. A fresh random salt is drawn on every call,
// so each attempt carries a distinct signature even for identical terms.
func (s *OrderSigner) SignOrder(privateKeyHex, makerAddress, tokenID string, side domain.OrderSide, price, size decimal.Decimal) (domain.SignedOrder, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	salt, err := rand.Int(rand.Reader, maxSalt)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("crypto/signer: generating salt: %w", err)
	}

	signerAddr := ethcrypto.PubkeyToAddress(pk.PublicKey).Hex()
	maker := makerAddress
	if maker == "" {
		maker = signerAddr
	}

	// Amounts are 1e6 fixed point. A buy spends collateral (price*size)
	// for outcome tokens; a sell spends tokens for collateral.
	collateral := toBaseUnits(price.Mul(size))
	tokens := toBaseUnits(size)

	order := domain.SignedOrder{
		Salt:          salt.String(),
		Maker:         maker,
		Signer:        signerAddr,
		Taker:         zeroAddress,
		TokenID:       tokenID,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: sigTypeEOA,
	}
	switch side {
	case domain.OrderSideBuy:
		order.Side = sideBuy
		order.MakerAmount = collateral
		order.TakerAmount = tokens
	case domain.OrderSideSell:
		order.Side = sideSell
		order.MakerAmount = tokens
		order.TakerAmount = collateral
	default:
		return domain.SignedOrder{}, fmt.Errorf("crypto/signer: unknown order side %q", side)
	}

	structHash, err := orderStructHash(order)
	if err != nil {
		return domain.SignedOrder{}, err
	}

	digest := eip712Hash(s.domainSep, structHash)
	sig, err := ethcrypto.Sign(digest, pk)
	if err != nil {
		return domain.SignedOrder{}, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	order.Signature = "0x" + hex.EncodeToString(sig)

	return order, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// toBaseUnits converts a decimal amount to its 1e6 fixed-point string,
// truncating sub-unit dust.
func toBaseUnits(d decimal.Decimal) string {
	return d.Shift(6).Truncate(0).String()
}

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId, verifyingContract)).
func buildDomainSeparator(name, version string, chainID int64, contract common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(contract.Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// orderStructHash encodes and hashes a CLOB order according to EIP-712.
func orderStructHash(o domain.SignedOrder) ([]byte, error) {
	salt, ok := new(big.Int).SetString(o.Salt, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid salt %q", o.Salt)
	}
	tokenID, ok := new(big.Int).SetString(o.TokenID, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid tokenId %q", o.TokenID)
	}
	makerAmt, ok := new(big.Int).SetString(o.MakerAmount, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid makerAmount %q", o.MakerAmount)
	}
	takerAmt, ok := new(big.Int).SetString(o.TakerAmount, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid takerAmount %q", o.TakerAmount)
	}
	expiration, ok := new(big.Int).SetString(o.Expiration, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid expiration %q", o.Expiration)
	}
	nonce, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid nonce %q", o.Nonce)
	}
	feeRate, ok := new(big.Int).SetString(o.FeeRateBps, 10)
	if !ok {
		return nil, fmt.Errorf("crypto/signer: invalid feeRateBps %q", o.FeeRateBps)
	}

	maker := common.HexToAddress(o.Maker)
	signer := common.HexToAddress(o.Signer)
	taker := common.HexToAddress(o.Taker)

	return ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			bigIntTo32Bytes(salt),
			common.LeftPadBytes(maker.Bytes(), 32),
			common.LeftPadBytes(signer.Bytes(), 32),
			common.LeftPadBytes(taker.Bytes(), 32),
			bigIntTo32Bytes(tokenID),
			bigIntTo32Bytes(makerAmt),
			bigIntTo32Bytes(takerAmt),
			bigIntTo32Bytes(expiration),
			bigIntTo32Bytes(nonce),
			bigIntTo32Bytes(feeRate),
			bigIntTo32Bytes(big.NewInt(int64(o.Side))),
			bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
		),
	), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
