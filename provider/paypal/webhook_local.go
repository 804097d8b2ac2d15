package paypal

import (
	"context"
	"crypto"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"net/url"
	"strings"
	"time"

	"github.com/mstgnz/paygate/provider"
)

const (
	defaultCertHost = "paypal.com"
	maxCertCacheAge = 24 * time.Hour
)

// LocalVerifier checks webhook signatures against the processor's signing
// certificate instead of calling the verification endpoint. The signed
// message is transmission_id|transmission_time|webhook_id|crc32(body).
type LocalVerifier struct {
	cfg       Config
	client    *provider.ProviderHTTPClient
	certs     *provider.Cache[*x509.Certificate]
	certHosts []string
	now       func() time.Time
}

// NewLocalVerifier creates a verifier that only fetches certificates over
// https from certHosts or their subdomains
func NewLocalVerifier(cfg Config, client *provider.ProviderHTTPClient, certHosts ...string) *LocalVerifier {
	if len(certHosts) == 0 {
		certHosts = []string{defaultCertHost}
	}
	return &LocalVerifier{
		cfg:       cfg,
		client:    client,
		certs:     provider.NewCache[*x509.Certificate](32, 0),
		certHosts: certHosts,
		now:       time.Now,
	}
}

// Verify returns (false, nil) when the signature does not match. An error
// means no verdict could be reached.
func (v *LocalVerifier) Verify(ctx context.Context, env provider.NotificationEnvelope) (bool, error) {
	const op = "verify webhook locally"

	if v.cfg.WebhookID == "" {
		return false, provider.NewError(provider.KindConfig, providerName, op, provider.ErrMissingWebhookID)
	}

	t := transmissionFrom(env)
	if t.ID == "" || t.Time == "" || t.Sig == "" || t.CertURL == "" {
		return false, provider.NewError(provider.KindProtocol, providerName, op,
			errors.New("missing transmission headers"))
	}

	hash, err := hashForAlgo(t.AuthAlgo)
	if err != nil {
		return false, provider.NewError(provider.KindProtocol, providerName, op, err)
	}

	cert, err := v.certificate(ctx, t.CertURL)
	if err != nil {
		return false, err
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false, provider.NewError(provider.KindProtocol, providerName, op,
			fmt.Errorf("certificate key is %T, not RSA", cert.PublicKey))
	}

	sig, err := provider.DecodeBase64(t.Sig)
	if err != nil {
		return false, nil
	}

	message := fmt.Sprintf("%s|%s|%s|%d", t.ID, t.Time, v.cfg.WebhookID, crc32.ChecksumIEEE(env.Body))
	h := hash.New()
	h.Write([]byte(message))
	if err := rsa.VerifyPKCS1v15(pub, hash, h.Sum(nil), sig); err != nil {
		return false, nil
	}
	return true, nil
}

func hashForAlgo(algo string) (crypto.Hash, error) {
	switch strings.ToUpper(algo) {
	case "SHA256WITHRSA":
		return crypto.SHA256, nil
	case "SHA512WITHRSA":
		return crypto.SHA512, nil
	case "SHA1WITHRSA":
		return crypto.SHA1, nil
	default:
		return 0, fmt.Errorf("unsupported auth algorithm %q", algo)
	}
}

// certificate returns the cached certificate for certURL, fetching it when absent
func (v *LocalVerifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	const op = "fetch signing certificate"

	if err := v.checkCertURL(certURL); err != nil {
		return nil, provider.NewError(provider.KindProtocol, providerName, op, err)
	}

	cert, ok := v.certs.Get(certURL)
	if !ok {
		resp, err := v.client.SendRaw(ctx, &provider.HTTPRequest{Method: "GET", Endpoint: certURL})
		if err != nil {
			return nil, provider.NewError(provider.KindTransport, providerName, op, err)
		}
		cert, err = parseCertificate(resp.Body)
		if err != nil {
			return nil, provider.NewError(provider.KindProtocol, providerName, op, err)
		}
		ttl := cert.NotAfter.Sub(v.now())
		if ttl > maxCertCacheAge {
			ttl = maxCertCacheAge
		}
		v.certs.SetWithTTL(certURL, cert, ttl)
	}

	now := v.now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return nil, provider.NewError(provider.KindProtocol, providerName, op,
			fmt.Errorf("certificate not valid at %s", now.UTC().Format(time.RFC3339)))
	}
	return cert, nil
}

func (v *LocalVerifier) checkCertURL(certURL string) error {
	u, err := url.Parse(certURL)
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrUntrustedCertURL, err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", provider.ErrUntrustedCertURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range v.certHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", provider.ErrUntrustedCertURL, host)
}

// parseCertificate reads the first certificate of a PEM bundle, or DER
func parseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}
