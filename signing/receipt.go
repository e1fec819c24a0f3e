package signing

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidReceipt signals a receipt that fails signature or claim checks.
var ErrInvalidReceipt = errors.New("signing: invalid receipt")

const minReceiptSecret = 16

// ReceiptClaims is the payload of a signature receipt.
type ReceiptClaims struct {
	DocumentID string `json:"doc"`
	Signer     string `json:"signer,omitempty"`
	Digest     string `json:"digest"`
	jwt.RegisteredClaims
}

// ReceiptIssuer mints HS256 receipts attesting a SignatureEvent.
type ReceiptIssuer struct {
	secret []byte
	issuer string
}

// NewReceiptIssuer creates an issuer. The secret must be at least 16 bytes.
func NewReceiptIssuer(secret, issuer string) (*ReceiptIssuer, error) {
	if len(secret) < minReceiptSecret {
		return nil, fmt.Errorf("signing: receipt secret must be at least %d bytes", minReceiptSecret)
	}
	return &ReceiptIssuer{secret: []byte(secret), issuer: issuer}, nil
}

// Issue returns a signed receipt for ev.
func (r *ReceiptIssuer) Issue(ev SignatureEvent) (string, error) {
	claims := ReceiptClaims{
		DocumentID: ev.DocumentID,
		Signer:     ev.SignerName,
		Digest:     ev.Digest,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       ev.ID,
			Issuer:   r.issuer,
			Subject:  ev.DocumentID,
			IssuedAt: jwt.NewNumericDate(ev.Timestamp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("signing: sign receipt: %w", err)
	}
	return signed, nil
}

// Verify checks a receipt and returns its claims.
func (r *ReceiptIssuer) Verify(receipt string) (ReceiptClaims, error) {
	var claims ReceiptClaims
	token, err := jwt.ParseWithClaims(receipt, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithIssuer(r.issuer))
	if err != nil {
		return ReceiptClaims{}, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if !token.Valid {
		return ReceiptClaims{}, ErrInvalidReceipt
	}
	return claims, nil
}
