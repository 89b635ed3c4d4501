package tracking

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler serves the open pixel and the click redirect.
type Handler struct {
	pub *Publisher
}

// NewHandler creates the tracking HTTP handler.
func NewHandler(pub *Publisher) *Handler {
	return &Handler{pub: pub}
}

// Routes mounts the tracking endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/open.gif", h.HandleOpen)
	r.Get("/click", h.HandleClick)
	return r
}

// HandleOpen serves the tracking pixel. The pixel is always returned, even
// for requests missing parameters; a broken image in a recipient's inbox is
// never acceptable.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if campaignID := q.Get("c"); campaignID != "" {
		h.pub.Publish(Event{
			Kind:       "view",
			CampaignID: campaignID,
			Email:      q.Get("e"),
			IPAddress:  realIP(r),
			UserAgent:  r.UserAgent(),
			Timestamp:  time.Now().UTC(),
		})
	}
	h.servePixel(w)
}

// HandleClick records the click and redirects to the target URL. Only
// absolute http(s) targets are accepted; anything else 400s rather than
// becoming an open redirect.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("u")
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		http.Error(w, "invalid target url", http.StatusBadRequest)
		return
	}

	if campaignID := q.Get("c"); campaignID != "" {
		h.pub.Publish(Event{
			Kind:       "click",
			CampaignID: campaignID,
			Email:      q.Get("e"),
			LinkURL:    target,
			IPAddress:  realIP(r),
			UserAgent:  r.UserAgent(),
			Timestamp:  time.Now().UTC(),
		})
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}
