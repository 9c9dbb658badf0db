// Package credentials 校验签名端回传的身份断言（ES256 JWT），
// 在配置了私钥时也可签发断言，供签名端或测试使用。
package credentials

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-sign/connect/pkg/apierrors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnknownIssuer 表示无法为断言的签发者找到公钥。
var ErrUnknownIssuer = errors.New("unknown issuer")

// KeyResolver 根据签发者标识查找验签公钥。
type KeyResolver interface {
	ResolveKey(ctx context.Context, issuer string) (*ecdsa.PublicKey, error)
}

// StaticKeys 是固定的签发者→公钥表。
type StaticKeys map[string]*ecdsa.PublicKey

// ResolveKey 实现 KeyResolver。
func (s StaticKeys) ResolveKey(_ context.Context, issuer string) (*ecdsa.PublicKey, error) {
	if key, ok := s[issuer]; ok && key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownIssuer, issuer)
}

// Settings 配置 Credentials。Signer 非空时具备签发能力。
type Settings struct {
	Signer   *ecdsa.PrivateKey
	Issuer   string
	Resolver KeyResolver
	// Leeway 是校验 exp/iat 时允许的时钟偏差。
	Leeway time.Duration
}

// Profile 是通过校验的身份断言。
type Profile struct {
	Address string
	Name    string
	Issuer  string
	Claims  map[string]any
	Token   string
}

// Credentials 负责断言的校验与签发。
type Credentials struct {
	settings Settings
}

// New 构造 Credentials。
func New(settings Settings) *Credentials {
	return &Credentials{settings: settings}
}

// Settings 返回配置副本。
func (c *Credentials) Settings() Settings {
	return c.settings
}

// CanSign 表示是否配置了签名私钥。
func (c *Credentials) CanSign() bool {
	return c.settings.Signer != nil
}

// Receive 校验 token 并解析出 Profile，requested 中列出的 claim 必须存在。
func (c *Credentials) Receive(ctx context.Context, token string, requested []string) (*Profile, error) {
	if c.settings.Resolver == nil {
		return nil, apierrors.New(apierrors.CodeVerificationFailed, "no key resolver configured")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		issuer, err := t.Claims.GetIssuer()
		if err != nil || issuer == "" {
			return nil, errors.New("token has no issuer")
		}
		key, err := c.settings.Resolver.ResolveKey(ctx, issuer)
		if err != nil {
			return nil, err
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}), jwt.WithLeeway(c.settings.Leeway), jwt.WithIssuedAt())
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeVerificationFailed, "credential rejected", err)
	}
	for _, name := range requested {
		if _, ok := claims[name]; !ok {
			return nil, apierrors.New(apierrors.CodeVerificationFailed, "credential is missing requested claim "+name)
		}
	}
	issuer, _ := claims.GetIssuer()
	profile := &Profile{
		Address: issuer,
		Issuer:  issuer,
		Claims:  map[string]any(claims),
		Token:   token,
	}
	if address, ok := claims["address"].(string); ok && address != "" {
		profile.Address = address
	}
	if name, ok := claims["name"].(string); ok {
		profile.Name = name
	}
	return profile, nil
}

// Issue 用 Signer 签发断言，自动填充 iss/iat/exp/jti。
func (c *Credentials) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	if c.settings.Signer == nil {
		return "", errors.New("credentials have no signer")
	}
	if c.settings.Issuer == "" {
		return "", errors.New("credentials have no issuer")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	now := time.Now()
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iss"] = c.settings.Issuer
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(ttl).Unix()
	mc["jti"] = uuid.NewString()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, mc).SignedString(c.settings.Signer)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	return signed, nil
}
