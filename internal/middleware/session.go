package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"alphadroid.org/devices-web/internal/observability"
)

const sessionCookieName = "ALPHADROID_WEB_SESSION"

// SessionData is the signed, cookie-backed client session. Server-side
// navigation state is keyed by ID.
type SessionData struct {
	ID        string    `json:"id"`
	Locale    string    `json:"locale,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// internal dirty flag; not serialized
	dirty bool
}

// SessionOptions configures the Session middleware.
type SessionOptions struct {
	// SigningKey signs cookies; empty generates a process-ephemeral key.
	SigningKey []byte
	Secure     bool
	MaxAge     time.Duration
	Logger     *zap.Logger
}

type sessionCodec struct {
	key    []byte
	secure bool
	maxAge time.Duration
}

// Session loads or initializes a session and stores it in request context.
func Session(opts SessionOptions) func(http.Handler) http.Handler {
	codec := &sessionCodec{key: opts.SigningKey, secure: opts.Secure, maxAge: opts.MaxAge}
	if len(codec.key) == 0 {
		codec.key = make([]byte, 32)
		if _, err := rand.Read(codec.key); err != nil {
			codec.key = []byte("insecure-dev-key-please-set-WEB_SESSION_SIGNING_KEY")
		}
		observability.OrNop(opts.Logger).Warn("session: using ephemeral signing key; set WEB_SESSION_SIGNING_KEY for production")
	}
	if codec.maxAge <= 0 {
		codec.maxAge = 30 * 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sd, fromCookie := codec.read(r)
			if sd.ID == "" {
				sd.ID = randID()
				sd.CreatedAt = time.Now().UTC()
				sd.UpdatedAt = sd.CreatedAt
				sd.dirty = true
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sd)
			rw, ok := w.(*ResponseRecorder)
			if !ok {
				rw = NewResponseRecorder(w)
			}
			// ensure cookie is set just before first write if needed
			rw.SetBeforeWrite(func(w http.ResponseWriter) {
				if sd.dirty || !fromCookie {
					codec.write(w, sd)
				}
			})
			next.ServeHTTP(rw, r.WithContext(ctx))
			// If nothing was written yet (e.g., HEAD), persist cookie now
			if !rw.Written() && (sd.dirty || !fromCookie) {
				codec.write(rw.ResponseWriter, sd)
			}
		})
	}
}

// GetSession returns session data from context
func GetSession(r *http.Request) *SessionData {
	if v := r.Context().Value(ctxKeySession); v != nil {
		if sd, ok := v.(*SessionData); ok {
			return sd
		}
	}
	return &SessionData{}
}

// MarkDirty flags the session for writing at end of request
func (s *SessionData) MarkDirty() { s.dirty = true; s.UpdatedAt = time.Now().UTC() }

// SetHash records the client's current route.
func (s *SessionData) SetHash(hash string) {
	if s.Hash != hash {
		s.Hash = hash
		s.MarkDirty()
	}
}

// read parses and verifies the session cookie
func (c *sessionCodec) read(r *http.Request) (*SessionData, bool) {
	ck, err := r.Cookie(sessionCookieName)
	if err != nil || ck.Value == "" {
		return &SessionData{}, false
	}
	payload, sig, ok := strings.Cut(ck.Value, ".")
	if !ok {
		return &SessionData{}, false
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return &SessionData{}, false
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return &SessionData{}, false
	}
	if !hmac.Equal(sigB, c.sign(payloadB)) {
		return &SessionData{}, false
	}
	var sd SessionData
	if err := json.Unmarshal(payloadB, &sd); err != nil {
		return &SessionData{}, false
	}
	return &sd, true
}

func (c *sessionCodec) write(w http.ResponseWriter, sd *SessionData) {
	b, _ := json.Marshal(sd)
	val := base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(c.sign(b))
	// httpOnly to prevent JS access
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    val,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(c.maxAge),
	})
}

func (c *sessionCodec) sign(b []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(b)
	return mac.Sum(nil)
}

func randID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
