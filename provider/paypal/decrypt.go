package paypal

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"

	"github.com/mstgnz/paygate/provider"
)

const gcmTagSize = 16

// PayloadDecryptor opens AES-256-GCM sealed resources with a pre-shared key
type PayloadDecryptor struct {
	key []byte
}

// NewPayloadDecryptor decodes and checks a base64 32-byte key
func NewPayloadDecryptor(encodedKey string) (*PayloadDecryptor, error) {
	if encodedKey == "" {
		return nil, provider.NewError(provider.KindConfig, providerName, "configure", provider.ErrMissingEncryptKey)
	}
	key, err := provider.DecodeKey256(encodedKey)
	if err != nil {
		return nil, provider.NewError(provider.KindConfig, providerName, "configure", err)
	}
	return &PayloadDecryptor{key: key}, nil
}

// Decrypt authenticates and decrypts res. It never returns partial plaintext.
func (d *PayloadDecryptor) Decrypt(res provider.EncryptedResource) ([]byte, error) {
	const op = "decrypt resource"

	fail := func(format string, args ...any) error {
		return provider.NewError(provider.KindCrypto, providerName, op,
			fmt.Errorf("%w: %s", provider.ErrDecryptFailed, fmt.Sprintf(format, args...)))
	}

	ciphertext, err := provider.DecodeBase64(res.Ciphertext)
	if err != nil {
		return nil, fail("ciphertext: %v", err)
	}
	iv, err := provider.DecodeBase64(res.IV)
	if err != nil {
		return nil, fail("iv: %v", err)
	}
	if len(iv) == 0 {
		return nil, fail("iv is empty")
	}
	tag, err := provider.DecodeBase64(res.Tag)
	if err != nil {
		return nil, fail("tag: %v", err)
	}
	if len(tag) != gcmTagSize {
		return nil, fail("tag must be %d bytes, got %d", gcmTagSize, len(tag))
	}

	block, err := aes.NewCipher(d.key)
	if err != nil {
		return nil, fail("cipher: %v", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, fail("gcm: %v", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, []byte(res.AAD))
	if err != nil {
		return nil, fail("authentication failed")
	}
	return plaintext, nil
}

// ExtractEncryptedResource finds resource.{ciphertext,iv,tag,aad} in a webhook event
func ExtractEncryptedResource(event []byte) (provider.EncryptedResource, bool) {
	var envelope struct {
		Resource *provider.EncryptedResource `json:"resource"`
	}
	if err := json.Unmarshal(event, &envelope); err != nil || envelope.Resource == nil {
		return provider.EncryptedResource{}, false
	}
	r := *envelope.Resource
	if r.Ciphertext == "" || r.IV == "" || r.Tag == "" {
		return provider.EncryptedResource{}, false
	}
	return r, true
}
