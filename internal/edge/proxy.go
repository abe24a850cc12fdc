package edge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type upstream struct {
	route Route
	proxy *httputil.ReverseProxy
}

// Proxy dispatches by longest matching route prefix and serves the SPA for
// everything else.
type Proxy struct {
	upstreams []upstream
	static    http.Handler
	logger    *zap.SugaredLogger
}

func NewProxy(routes []Route, staticDir string, logger *zap.SugaredLogger) (*Proxy, error) {
	p := &Proxy{logger: logger}
	for _, r := range routes {
		target, err := url.Parse(r.Target)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("route %s: invalid target %q", r.Prefix, r.Target)
		}
		r.Prefix = "/" + strings.Trim(r.Prefix, "/")
		p.upstreams = append(p.upstreams, upstream{route: r, proxy: p.newReverseProxy(r, target)})
	}
	sort.SliceStable(p.upstreams, func(i, j int) bool {
		return len(p.upstreams[i].route.Prefix) > len(p.upstreams[j].route.Prefix)
	})
	if staticDir != "" {
		p.static = spaHandler(staticDir)
	}
	return p, nil
}

func (p *Proxy) newReverseProxy(r Route, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// In carries the cleaned path the guard and the route match saw
			pr.Out.URL.Path = pr.In.URL.Path
			if r.StripPrefix {
				pr.Out.URL.Path = stripPrefix(pr.In.URL.Path, r.Prefix)
			}
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			// Authorization is forwarded as is; backends verify it again
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			p.logger.Warnw("upstream unavailable", "prefix", r.Prefix, "path", req.URL.Path, "err", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad gateway"})
		},
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// same cleaning as the guard, so the path forwarded is the one checked
	clean := path.Clean("/" + r.URL.Path)
	for _, u := range p.upstreams {
		if matchPrefix(clean, u.route.Prefix) {
			out := r.Clone(r.Context())
			out.URL.Path = clean
			out.URL.RawPath = ""
			u.proxy.ServeHTTP(w, out)
			return
		}
	}
	if p.static == nil {
		http.NotFound(w, r)
		return
	}
	p.static.ServeHTTP(w, r)
}

func matchPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func stripPrefix(p, prefix string) string {
	rest := strings.TrimPrefix(p, prefix)
	if rest == "" || rest[0] != '/' {
		rest = "/" + rest
	}
	return rest
}

// spaHandler serves files from dir and falls back to index.html for
// extension-less paths so client-side routes load the app.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean))); err != nil && path.Ext(clean) == "" {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}
