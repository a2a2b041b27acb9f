package portal

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ronin-rb/ronin-web-server/webserver-srv/config"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/logger"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/stats"
	"github.com/ronin-rb/ronin-web-server/webserver-srv/web"
)

const (
	// SessionCookieName is the name of the authentication session cookie
	SessionCookieName = "roninweb_portal_session"
	// SessionTimeout is how long a session stays valid
	SessionTimeout = 24 * time.Hour
)

// Portal is the management surface mounted into the main server app:
// a login form, a JWT session cookie, a status page and a JSON stats
// endpoint. Session-gated routes fall through to a redirect to the login
// page when the cookie is missing or invalid.
type Portal struct {
	cfg       *config.PortalConfig
	collector stats.Collector
	version   string
	jwtSecret []byte
}

// NewApp builds the portal as a routing application ready to be mounted
// under cfg.PathPrefix.
func NewApp(cfg *config.PortalConfig, collector stats.Collector, version string) *web.App {
	// Generate a random JWT secret on the fly
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		// Fallback to a deterministic secret if random generation fails
		secret = fmt.Appendf(nil, "roninweb-portal-%d", time.Now().Unix())
	}

	p := &Portal{
		cfg:       cfg,
		collector: collector,
		version:   version,
		jwtSecret: secret,
	}

	app := web.NewApp()
	if err := app.Get("/login", web.HandlerFunc(p.loginForm)); err != nil {
		logger.Fatal("Failed to register portal route: %v", err)
	}
	if err := app.Post("/login", web.HandlerFunc(p.login)); err != nil {
		logger.Fatal("Failed to register portal route: %v", err)
	}
	if err := app.Get("/logout", web.HandlerFunc(p.logout)); err != nil {
		logger.Fatal("Failed to register portal route: %v", err)
	}

	session := web.ConditionFunc(p.hasValidSession)
	if err := app.Get("/", web.HandlerFunc(p.status), session); err != nil {
		logger.Fatal("Failed to register portal route: %v", err)
	}
	if err := app.Get("/api/stats", web.HandlerFunc(p.apiStats), session); err != nil {
		logger.Fatal("Failed to register portal route: %v", err)
	}

	// Unauthenticated requests to gated paths end up here
	app.Default(web.HandlerFunc(func(req *web.Request) (*web.Response, error) {
		resp := web.NewResponse(http.StatusSeeOther)
		resp.SetHeader("Location", p.prefixed("/login"))
		return resp, nil
	}))

	return app
}

func (p *Portal) prefixed(path string) string {
	return p.cfg.PathPrefix + path
}

func (p *Portal) credentials() (string, string) {
	username := p.cfg.Username
	password := p.cfg.Password
	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = "admin"
	}
	return username, password
}

func (p *Portal) hasValidSession(req *web.Request) (bool, error) {
	value := req.Cookie(SessionCookieName)
	if value == "" {
		return false, nil
	}
	token, err := p.parseJWTToken(value)
	if err != nil {
		logger.Debug("JWT token validation failed: %v", err)
		return false, nil
	}
	return token.Valid, nil
}

func (p *Portal) parseJWTToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			logger.Warn("Unexpected JWT signing method: %v", token.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.jwtSecret, nil
	})
}

func (p *Portal) createSession(username string) (string, error) {
	claims := jwt.MapClaims{
		"username": username,
		"exp":      time.Now().Add(SessionTimeout).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (p *Portal) loginForm(req *web.Request) (*web.Response, error) {
	return p.renderLogin(http.StatusOK, ""), nil
}

func (p *Portal) login(req *web.Request) (*web.Response, error) {
	form, err := url.ParseQuery(string(req.Body()))
	if err != nil {
		return p.renderLogin(http.StatusBadRequest, "Malformed login request"), nil
	}
	username := form.Get("username")
	password := form.Get("password")

	logger.Debug("Login attempt for username: %s from %s", username, req.ClientIP())

	wantUser, wantPass := p.credentials()

	// Constant-time comparison to prevent timing attacks
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1

	if !usernameMatch || !passwordMatch {
		logger.Warn("Failed login attempt for username: %s from %s", username, req.ClientIP())
		return p.renderLogin(http.StatusUnauthorized, "Invalid username or password"), nil
	}

	token, err := p.createSession(username)
	if err != nil {
		logger.Error("Failed to create JWT session token: %v", err)
		return web.NewResponse(http.StatusInternalServerError), nil
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(SessionTimeout.Seconds()),
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info("Successful login for username: %s from %s", username, req.ClientIP())

	resp := web.NewResponse(http.StatusSeeOther)
	resp.Header.Add("Set-Cookie", cookie.String())
	resp.SetHeader("Location", p.prefixed("/"))
	return resp, nil
}

func (p *Portal) logout(req *web.Request) (*web.Response, error) {
	logger.Info("User logged out from %s", req.ClientIP())

	expired := &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	}

	resp := web.NewResponse(http.StatusSeeOther)
	resp.Header.Add("Set-Cookie", expired.String())
	resp.SetHeader("Location", p.prefixed("/login"))
	return resp, nil
}

func (p *Portal) status(req *web.Request) (*web.Response, error) {
	summary, err := p.collector.Summary(context.Background())
	if err != nil {
		logger.Error("Failed to query statistics summary: %v", err)
		summary = &stats.Summary{StatusCounts: map[int]int64{}}
	}

	var hosts string
	for _, hs := range summary.TopHosts {
		hosts += fmt.Sprintf("<tr><td>%s</td><td>%d</td></tr>", hs.Host, hs.RequestCount)
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Server Status</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background-color: #f4f4f4; color: #333; }
        .container { background-color: #fff; padding: 20px; border-radius: 5px; box-shadow: 0 0 10px rgba(0,0,0,0.1); }
        table { border-collapse: collapse; }
        td, th { padding: 4px 12px; border-bottom: 1px solid #ddd; text-align: left; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Server Status</h1>
        <p>Version: %s</p>
        <p>Total requests: %d</p>
        <p>Proxy errors: %d</p>
        <h2>Top Hosts</h2>
        <table><tr><th>Host</th><th>Requests</th></tr>%s</table>
        <p><a href="%s">Logout</a></p>
    </div>
</body>
</html>`, p.version, summary.TotalRequests, summary.TotalErrors, hosts, p.prefixed("/logout"))

	resp := web.NewResponse(http.StatusOK)
	resp.SetHeader("Content-Type", "text/html; charset=utf-8")
	resp.SetBodyString(body)
	return resp, nil
}

func (p *Portal) apiStats(req *web.Request) (*web.Response, error) {
	summary, err := p.collector.Summary(context.Background())
	if err != nil {
		logger.Error("Failed to query statistics summary: %v", err)
		resp := web.NewResponse(http.StatusInternalServerError)
		resp.SetHeader("Content-Type", "application/json")
		resp.SetBodyString(`{"error":"statistics unavailable"}`)
		return resp, nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode statistics summary: %w", err)
	}

	resp := web.NewResponse(http.StatusOK)
	resp.SetHeader("Content-Type", "application/json")
	resp.AppendBody(data)
	return resp, nil
}

func (p *Portal) renderLogin(status int, message string) *web.Response {
	var note string
	if message != "" {
		note = fmt.Sprintf(`<p class="error">%s</p>`, message)
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Login</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background-color: #f4f4f4; color: #333; }
        .container { background-color: #fff; padding: 20px; border-radius: 5px; box-shadow: 0 0 10px rgba(0,0,0,0.1); max-width: 360px; }
        .error { color: #d9534f; }
        input { display: block; margin: 8px 0; padding: 6px; width: 100%%; box-sizing: border-box; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Login</h1>
        %s
        <form method="POST" action="%s">
            <input type="text" name="username" placeholder="Username" autofocus>
            <input type="password" name="password" placeholder="Password">
            <input type="submit" value="Login">
        </form>
    </div>
</body>
</html>`, note, p.prefixed("/login"))

	resp := web.NewResponse(status)
	resp.SetHeader("Content-Type", "text/html; charset=utf-8")
	resp.SetBodyString(body)
	return resp
}
