package rest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
	"github.com/uptrace/bunrouter"

	"github.com/gosom/pingwatch/internal/entities"
)

const maxBodySize = 1 << 20

func Bind(r bunrouter.Request, ans any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return io.EOF
	}
	if err := sonic.Unmarshal(body, ans); err != nil {
		return ValidationError{"invalid json"}
	}
	return nil
}

func JSON(w http.ResponseWriter, statusCode int, value interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if value == nil {
		return nil
	}
	b, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func logHandler(log zerolog.Logger) func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		return func(w http.ResponseWriter, req bunrouter.Request) error {
			rec := NewResponseWriter(w)
			now := time.Now()
			err := next(rec.Wrapped, req)
			realIp, _ := getIP(req)
			dur := time.Since(now)
			statusCode := rec.StatusCode()
			ev := log.Info()
			// heartbeats are the bulk of the traffic
			if err == nil && statusCode < 400 && strings.HasPrefix(req.URL.Path, "/ping/") {
				ev = log.Debug()
			}
			ev = ev.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("statusCode", statusCode).
				IPAddr("ip", realIp).
				Dur("duration", dur)
			if err != nil {
				ev.Err(err)
			}
			ev.Msg(http.StatusText(statusCode))
			return err
		}
	}
}

type ResponseWriter struct {
	Wrapped    http.ResponseWriter
	statusCode int
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	var rw ResponseWriter
	rw.Wrapped = httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(statusCode int) {
				if rw.statusCode == 0 {
					rw.statusCode = statusCode
				}
				next(statusCode)
			}
		},
	})
	return &rw
}

func (w *ResponseWriter) StatusCode() int {
	if w.statusCode != 0 {
		return w.statusCode
	}
	return http.StatusOK
}

// getIP resolves the client address from X-Real-IP, then
// X-Forwarded-For, then the connection's remote address.
func getIP(r bunrouter.Request) (net.IP, error) {
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(strings.TrimSpace(ip))
	if len(netIP) > 0 {
		return netIP, nil
	}

	ips := r.Header.Get("X-FORWARDED-FOR")
	for _, ip := range strings.Split(ips, ",") {
		netIP := net.ParseIP(strings.TrimSpace(ip))
		if len(netIP) > 0 {
			return netIP, nil
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return nil, err
	}
	netIP = net.ParseIP(ip)
	if len(netIP) > 0 {
		return netIP, nil
	}
	return nil, errors.New("no valid ip found")
}

func sourceAddress(r bunrouter.Request) string {
	ip, err := getIP(r)
	if err != nil {
		return ""
	}
	return ip.String()
}

func formatOptionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := entities.FormatTime(t)
	return &s
}

func parseIntParam(r bunrouter.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if len(raw) == 0 {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ValidationError{fmt.Sprintf("%s must be an integer", name)}
	}
	return v, nil
}
