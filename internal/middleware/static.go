package middleware

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const fallbackLogoSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><path d="M100 60c-22.1 0-40 17.9-40 40s17.9 40 40 40 40-17.9 40-40-17.9-40-40-40zm0 65c-13.8 0-25-11.2-25-25s11.2-25 25-25 25 11.2 25 25-11.2 25-25 25z" fill="#999"/><text x="100" y="170" text-anchor="middle" font-family="Arial" font-size="14" fill="#666">SACCO</text></svg>`

// Logo uploads are restricted to these formats, so the server refuses to
// hand out anything else that may land in the directory.
var logoContentTypes = map[string]string{
	".svg": "image/svg+xml",
	".png": "image/png",
}

// TenantLogoServer serves uploaded society logos. Requests for anything
// other than a logo format are refused, and tenants without an uploaded
// logo get a generic placeholder with a shorter cache life so a later
// upload shows up within a day.
func TenantLogoServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Clean(r.URL.Path)
		if _, ok := logoContentTypes[strings.ToLower(filepath.Ext(name))]; !ok {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(fallbackLogoSVG))
	})
}
