package apple_notification

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt"
)

const appleRootCAG3RootPem = `-----BEGIN CERTIFICATE-----
MIICQzCCAcmgAwIBAgIILcX8iNLFS5UwCgYIKoZIzj0EAwMwZzEbMBkGA1UEAwwS
QXBwbGUgUm9vdCBDQSAtIEczMSYwJAYDVQQLDB1BcHBsZSBDZXJ0aWZpY2F0aW9u
IEF1dGhvcml0eTETMBEGA1UECgwKQXBwbGUgSW5jLjELMAkGA1UEBhMCVVMwHhcN
MTQwNDMwMTgxOTA2WhcNMzkwNDMwMTgxOTA2WjBnMRswGQYDVQQDDBJBcHBsZSBS
b290IENBIC0gRzMxJjAkBgNVBAsMHUFwcGxlIENlcnRpZmljYXRpb24gQXV0aG9y
aXR5MRMwEQYDVQQKDApBcHBsZSBJbmMuMQswCQYDVQQGEwJVUzB2MBAGByqGSM49
AgEGBSuBBAAiA2IABJjpLz1AcqTtkyJygRMc3RCV8cWjTnHcFBbZDuWmBSp3ZHtf
TjjTuxxEtX/1H7YyYl3J6YRbTzBPEVoA/VhYDKX1DyxNB0cTddqXl5dvMVztK517
IDvYuVTZXpmkOlEKMaNCMEAwHQYDVR0OBBYEFLuw3qFYM4iapIqZ3r6966/ayySr
MA8GA1UdEwEB/wQFMAMBAf8wDgYDVR0PAQH/BAQDAgEGMAoGCCqGSM49BAMDA2gA
MGUCMQCD6cHEFl4aXTQY2e3v9GwOAEZLuN+yRhHFD/3meoyhpmvOwgPUnPWTxnS4
at+qIxUCMG1mihDK1A3UT82NQz60imOlM27jbdoXt2QfyFMm+YhidDkLF1vLUagM
6BgD56KyKA==
-----END CERTIFICATE-----`

// Parse verifies a signedPayload against the Apple root CA and decodes the
// notification together with its signed transaction and renewal info.
func Parse(signedPayload string) (*AppStoreServerNotification, error) {
	asn := &AppStoreServerNotification{appleRootCert: appleRootCAG3RootPem}
	if err := asn.parseJwtSignedPayload(signedPayload); err != nil {
		return nil, err
	}
	return asn, nil
}

// ParseRequest decodes the JSON body Apple posts and verifies its payload.
func ParseRequest(body []byte) (*AppStoreServerNotification, error) {
	var req AppStoreServerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("failed to decode notification body: %w", err)
	}
	if req.SignedPayload == "" {
		return nil, errors.New("signedPayload is empty")
	}
	return Parse(req.SignedPayload)
}

func extractCert(token string, index int) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("token is not a compact JWS")
	}

	headerByte, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	var header NotificationHeader
	if err := json.Unmarshal(headerByte, &header); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}
	if index >= len(header.X5c) {
		return nil, fmt.Errorf("x5c header has %d certificates, need index %d", len(header.X5c), index)
	}

	return base64.StdEncoding.DecodeString(header.X5c[index])
}

func (asn *AppStoreServerNotification) verifyChain(token string) error {
	leaf, err := extractCert(token, 0)
	if err != nil {
		return err
	}
	intermediate, err := extractCert(token, 1)
	if err != nil {
		return err
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM([]byte(asn.appleRootCert)) {
		return errors.New("root certificate couldn't be parsed")
	}
	interCert, err := x509.ParseCertificate(intermediate)
	if err != nil {
		return errors.New("intermediate certificate couldn't be parsed")
	}
	intermediates := x509.NewCertPool()
	intermediates.AddCert(interCert)

	cert, err := x509.ParseCertificate(leaf)
	if err != nil {
		return err
	}
	_, err = cert.Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
	return err
}

func publicKey(token string) (*ecdsa.PublicKey, error) {
	certByte, err := extractCert(token, 0)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(certByte)
	if err != nil {
		return nil, err
	}
	pk, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("appstore public key must be of type ecdsa.PublicKey")
	}
	return pk, nil
}

// parseSigned verifies token's x5c chain and signature, then decodes claims.
func (asn *AppStoreServerNotification) parseSigned(token string, claims jwt.Claims) error {
	if err := asn.verifyChain(token); err != nil {
		return err
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return publicKey(token)
	})
	return err
}

func (asn *AppStoreServerNotification) parseJwtSignedPayload(payload string) error {
	notificationPayload := &NotificationPayload{}
	if err := asn.parseSigned(payload, notificationPayload); err != nil {
		return err
	}
	asn.Payload = notificationPayload
	asn.IsTestNotification = notificationPayload.NotificationType == "TEST"
	asn.IsSandbox = notificationPayload.Data.Environment == "Sandbox"

	if asn.IsTestNotification {
		asn.IsValid = true
		return nil
	}

	transactionInfo := &TransactionInfo{}
	if err := asn.parseSigned(notificationPayload.Data.SignedTransactionInfo, transactionInfo); err != nil {
		return fmt.Errorf("failed to parse transaction info: %w", err)
	}
	asn.TransactionInfo = transactionInfo

	if notificationPayload.Data.SignedRenewalInfo != "" {
		renewalInfo := &RenewalInfo{}
		if err := asn.parseSigned(notificationPayload.Data.SignedRenewalInfo, renewalInfo); err != nil {
			return fmt.Errorf("failed to parse renewal info: %w", err)
		}
		asn.RenewalInfo = renewalInfo
	}

	asn.IsValid = true
	return nil
}
