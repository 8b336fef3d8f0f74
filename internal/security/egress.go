// Package security は外部への通信を制限するHTTPクライアントを提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrNonPublicEndpoint はエンドポイントが内部ネットワークを指している場合のエラー。
var ErrNonPublicEndpoint = errors.New("endpoint is not a public https URL")

// blockedNetworks はDNS解決前の静的検証でブロックするネットワーク範囲。
// 解決後のIPはsafeurlのDialerが検証する。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// NewEgressClient はhttps(443)の公開アドレスにのみ接続できるHTTPクライアントを生成する。
// プライベートIP、ループバック、リンクローカルへの接続はDNS解決後に拒否される。
func NewEgressClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// CheckPublicEndpoint はURLが公開httpsエンドポイントを指しているかをDNS解決なしで検証する。
// 空文字列は既定のエンドポイントを使うことを意味するため許可する。
func CheckPublicEndpoint(rawURL string) error {
	if rawURL == "" {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNonPublicEndpoint, err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("%w: scheme %q", ErrNonPublicEndpoint, parsed.Scheme)
	}
	if p := parsed.Port(); p != "" && p != "443" {
		return fmt.Errorf("%w: port %s", ErrNonPublicEndpoint, p)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrNonPublicEndpoint)
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: %s", ErrNonPublicEndpoint, host)
	}
	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return fmt.Errorf("%w: %s", ErrNonPublicEndpoint, ip)
	}
	return nil
}

// TokenExchangeClient はトークン交換に使うHTTPクライアントを選ぶ。
// 公開エンドポイントには制限付きクライアントを使い、ローカルのエミュレーター等を指す場合は
// 通常のクライアントを返す。guardedは制限付きかどうか。
func TokenExchangeClient(tokenURL string, timeout time.Duration) (client *http.Client, guarded bool) {
	if err := CheckPublicEndpoint(tokenURL); err != nil {
		return &http.Client{Timeout: timeout}, false
	}
	return NewEgressClient(timeout), true
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
