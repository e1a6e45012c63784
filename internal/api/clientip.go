package api

import (
	"net"
	"net/http"
	"strings"
)

// 文档注释：可信代理判定
// 背景：代理头可被客户端伪造；仅当直连地址落在可信网段时才采信头部，否则回退 RemoteAddr。
// 约束：网段为空时信任所有代理头（单层网关部署的默认行为）；无法解析的网段忽略。
type proxyTrust struct {
	nets []*net.IPNet
}

func newProxyTrust(cidrs []string) *proxyTrust {
	t := &proxyTrust{}
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !strings.Contains(c, "/") {
			if ip := net.ParseIP(c); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				t.nets = append(t.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			}
			continue
		}
		if _, n, err := net.ParseCIDR(c); err == nil {
			t.nets = append(t.nets, n)
		}
	}
	return t
}

func (t *proxyTrust) trusted(remote string) bool {
	if len(t.nets) == 0 {
		return true
	}
	ip := net.ParseIP(remote)
	if ip == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// 文档注释：获取访问者 IP（用于 IP 定位与提交去重）
// 背景：多层代理环境下，依次读取常见反向代理头，最后回退远端地址。
// 约束：头部仅在直连方可信时采信；Forwarded 只取首个 for= 值。
func (t *proxyTrust) visitorIP(r *http.Request) string {
	remote := remoteHost(r.RemoteAddr)
	if !t.trusted(remote) {
		return remote
	}
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, k := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip", "x-edge-client-ip", "x-edgeone-ip", "X-EO-Client-IP"} {
		if x := h.Get(k); x != "" {
			return strings.TrimSpace(x)
		}
	}
	if x := h.Get("forwarded"); x != "" {
		i := strings.Index(strings.ToLower(x), "for=")
		if i >= 0 {
			y := x[i+4:]
			if p := strings.IndexByte(y, ';'); p >= 0 {
				y = y[:p]
			}
			if p := strings.IndexByte(y, ','); p >= 0 {
				y = y[:p]
			}
			y = strings.Trim(y, "\" ")
			y = strings.TrimSuffix(strings.TrimPrefix(y, "["), "]")
			return y
		}
	}
	return remote
}

func remoteHost(addr string) string {
	if addr == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
