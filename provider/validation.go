package provider

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Field types understood by ValidateConfigFields
const (
	FieldString  = "string"
	FieldURL     = "url"
	FieldBoolean = "boolean"
	FieldKey256  = "key256" // base64 that decodes to 32 bytes
	FieldEnum    = "enum"
)

// ValidateConfigFields checks config against field definitions. Optional fields
// are only checked when present and non-empty.
func ValidateConfigFields(providerName string, config map[string]string, fields []ConfigField) error {
	for _, field := range fields {
		value, exists := config[field.Key]
		if strings.TrimSpace(value) == "" {
			if !field.Required {
				continue
			}
			if !exists {
				return fmt.Errorf("%s: required field '%s' is missing", providerName, field.Key)
			}
			return fmt.Errorf("%s: required field '%s' cannot be empty", providerName, field.Key)
		}

		if err := validateFieldType(providerName, field, value); err != nil {
			return err
		}
		if err := validateFieldPattern(providerName, field, value); err != nil {
			return err
		}
		if err := validateFieldLength(providerName, field, value); err != nil {
			return err
		}
	}

	return nil
}

func validateFieldType(providerName string, field ConfigField, value string) error {
	switch field.Type {
	case FieldBoolean:
		if value != "true" && value != "false" {
			return fmt.Errorf("%s: field '%s' must be 'true' or 'false'", providerName, field.Key)
		}
	case FieldURL:
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: field '%s' must be an absolute URL", providerName, field.Key)
		}
	case FieldKey256:
		if _, err := DecodeKey256(value); err != nil {
			return fmt.Errorf("%s: field '%s': %w", providerName, field.Key, err)
		}
	case FieldEnum:
		if len(field.Options) > 0 && !slices.Contains(field.Options, value) {
			return fmt.Errorf("%s: field '%s' must be one of: %s", providerName, field.Key, strings.Join(field.Options, ", "))
		}
	}
	return nil
}

func validateFieldPattern(providerName string, field ConfigField, value string) error {
	if field.Pattern == "" {
		return nil
	}

	matched, err := regexp.MatchString(field.Pattern, value)
	if err != nil {
		return fmt.Errorf("%s: invalid pattern for field '%s': %v", providerName, field.Key, err)
	}
	if !matched {
		return fmt.Errorf("%s: field '%s' does not match required pattern", providerName, field.Key)
	}
	return nil
}

func validateFieldLength(providerName string, field ConfigField, value string) error {
	if field.MinLength > 0 && len(value) < field.MinLength {
		return fmt.Errorf("%s: field '%s' must be at least %d characters", providerName, field.Key, field.MinLength)
	}
	if field.MaxLength > 0 && len(value) > field.MaxLength {
		return fmt.Errorf("%s: field '%s' must not exceed %d characters", providerName, field.Key, field.MaxLength)
	}
	return nil
}

// DecodeBase64 accepts standard and URL alphabets, padded or not
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// DecodeKey256 decodes a base64 AES-256 key
func DecodeKey256(s string) ([]byte, error) {
	key, err := DecodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncryptKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidEncryptKey, len(key))
	}
	return key, nil
}
