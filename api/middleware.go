package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyMiddleware decompresses gzip-encoded request bodies and caps the
// decoded size at limit bytes. Invalid gzip payloads are rejected with a 400.
func RequestBodyMiddleware(limit int64) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			body := req.Body
			var reader io.Reader = body
			if hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				gr, err := gzip.NewReader(body)
				if err != nil {
					_ = body.Close()
					return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid gzip body"})
				}
				reader = gr
				req.ContentLength = -1
				req.Header.Del(echo.HeaderContentEncoding)
				req.Header.Del(echo.HeaderContentLength)
			}
			req.Body = &limitedBody{r: reader, remaining: limit, body: body}
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	if header == "" {
		return false
	}
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

// limitedBody fails with errBodyTooLarge once more than the allowed number of
// bytes has been read.
type limitedBody struct {
	r         io.Reader
	remaining int64
	body      io.Closer
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errBodyTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errBodyTooLarge
	}
	return n, err
}

func (l *limitedBody) Close() error {
	var err error
	if gr, ok := l.r.(*gzip.Reader); ok {
		err = gr.Close()
	}
	if l.body != nil {
		if cerr := l.body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// decodeJSON reads one JSON document from the request body.
func decodeJSON(c echo.Context, v any) error {
	body := c.Request().Body
	if body == nil || body == http.NoBody {
		return io.EOF
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return io.EOF
	}
	return sonic.ConfigStd.Unmarshal(data, v)
}
