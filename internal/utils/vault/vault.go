package vault

import (
	"context"
	"encoding/base64"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const DefaultServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// VaultClient reads the wallet secret from Vault using Kubernetes auth.
type VaultClient struct {
	client       *resty.Client
	kvSecretPath string
	role         string
	token        string
}

type vaultErrors struct {
	Errors []string `json:"errors"`
}

type loginResponse struct {
	Auth *struct {
		ClientToken string `json:"client_token"`
	} `json:"auth"`
}

type kvResponse struct {
	Data *struct {
		// KV v2 nests the secret under data.data
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
}

type decryptResponse struct {
	Data *struct {
		Plaintext string `json:"plaintext"`
	} `json:"data"`
}

// New logs in with the pod's service account token read from tokenPath.
func New(ctx context.Context, addr, kvSecretPath, role, tokenPath string) (*VaultClient, error) {
	vc := &VaultClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(addr, "/")).
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
		role:         role,
		kvSecretPath: strings.Trim(kvSecretPath, "/"),
	}

	jwt, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read service account token")
	}
	if err := vc.login(ctx, strings.TrimSpace(string(jwt))); err != nil {
		return nil, err
	}
	return vc, nil
}

func (vc *VaultClient) login(ctx context.Context, jwt string) error {
	var result loginResponse
	var failure vaultErrors
	resp, err := vc.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"jwt": jwt, "role": vc.role}).
		SetResult(&result).
		SetError(&failure).
		Post("/v1/auth/kubernetes/login")
	if err != nil {
		return errors.Wrap(err, "vault login")
	}
	if resp.IsError() {
		return errors.Errorf("vault authentication failed with status %d: %s", resp.StatusCode(), strings.Join(failure.Errors, "; "))
	}
	if result.Auth == nil || result.Auth.ClientToken == "" {
		return errors.New("vault returned empty client_token")
	}

	vc.token = result.Auth.ClientToken
	return nil
}

// GetKV retrieves one string value from the configured KV v2 secret.
func (vc *VaultClient) GetKV(ctx context.Context, secretKey string) (string, error) {
	var result kvResponse
	var failure vaultErrors
	resp, err := vc.client.R().
		SetContext(ctx).
		SetHeader("X-Vault-Token", vc.token).
		SetResult(&result).
		SetError(&failure).
		Get("/v1/" + vc.kvSecretPath)
	if err != nil {
		return "", errors.Wrap(err, "vault KV get")
	}
	if resp.IsError() {
		return "", errors.Errorf("vault KV get failed with status %d: %s", resp.StatusCode(), strings.Join(failure.Errors, "; "))
	}
	if result.Data == nil || result.Data.Data == nil {
		return "", errors.New("vault response missing nested 'data' field")
	}

	raw, ok := result.Data.Data[secretKey]
	if !ok {
		return "", errors.Errorf("secret key '%s' not found", secretKey)
	}
	secret, ok := raw.(string)
	if !ok {
		return "", errors.Errorf("secret value for key '%s' is not a string", secretKey)
	}
	return secret, nil
}

// DecryptData decrypts a transit ciphertext ("vault:v1:...").
func (vc *VaultClient) DecryptData(ctx context.Context, transitKey, ciphertext string) (string, error) {
	var result decryptResponse
	var failure vaultErrors
	resp, err := vc.client.R().
		SetContext(ctx).
		SetHeader("X-Vault-Token", vc.token).
		SetBody(map[string]string{"ciphertext": ciphertext}).
		SetResult(&result).
		SetError(&failure).
		Post("/v1/transit/decrypt/" + transitKey)
	if err != nil {
		return "", errors.Wrap(err, "vault decrypt")
	}
	if resp.IsError() {
		return "", errors.Errorf("vault decrypt failed with status %d: %s", resp.StatusCode(), strings.Join(failure.Errors, "; "))
	}
	if result.Data == nil {
		return "", errors.New("vault response missing 'data' field")
	}

	plaintext, err := base64.StdEncoding.DecodeString(result.Data.Plaintext)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode base64 plaintext")
	}
	return string(plaintext), nil
}

// Mnemonic fetches the wallet mnemonic. When transitKey is set the stored
// value is a transit ciphertext and is decrypted first.
func (vc *VaultClient) Mnemonic(ctx context.Context, secretKey, transitKey string) (string, error) {
	value, err := vc.GetKV(ctx, secretKey)
	if err != nil {
		return "", err
	}
	if transitKey == "" {
		return value, nil
	}
	return vc.DecryptData(ctx, transitKey, value)
}
