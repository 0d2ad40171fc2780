package smartcar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// AuthConfig 授权客户端配置
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	Mode         string // live, test, simulated
	Timeout      time.Duration
}

// AuthClient Smartcar OAuth2 授权客户端
type AuthClient struct {
	config     *oauth2.Config
	mode       string
	httpClient *http.Client
	now        func() time.Time
}

// NewAuthClient 创建授权客户端
func NewAuthClient(cfg AuthConfig) *AuthClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		mode:       cfg.Mode,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// AuthURL 生成授权跳转地址，state 原样带回回调
func (a *AuthClient) AuthURL(scopes []string, state string) string {
	cfg := *a.config
	cfg.Scopes = scopes

	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("approval_prompt", "auto")}
	if a.mode != "" && a.mode != "live" {
		opts = append(opts, oauth2.SetAuthURLParam("mode", a.mode))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// ExchangeCode 用授权码换取令牌
func (a *AuthClient) ExchangeCode(ctx context.Context, code string) (*Access, error) {
	tok, err := a.config.Exchange(a.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return a.toAccess(tok)
}

// ExchangeRefreshToken 用刷新令牌换取新的访问令牌
func (a *AuthClient) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*Access, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	// 没有 AccessToken 的令牌视为无效，TokenSource 会直接走刷新流程
	src := a.config.TokenSource(a.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return a.toAccess(tok)
}

func (a *AuthClient) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func (a *AuthClient) toAccess(tok *oauth2.Token) (*Access, error) {
	if tok.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(tok.Expiry.Sub(a.now()).Round(time.Second) / time.Second)
	}

	return &Access{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}
