package web

import (
	"net/http"
	"strconv"
	"strings"
)

// Response is the outcome of handling one request: status, headers and a
// fully-buffered body held as an ordered sequence of chunks. The header
// mapping never contains Transfer-Encoding; the body length is computed
// from the buffered chunks instead of replaying chunked framing.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       [][]byte
}

// NewResponse creates an empty response with the given status code.
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
	}
}

// CopyHeaders copies all headers from src, dropping any Transfer-Encoding
// entry regardless of case.
func (resp *Response) CopyHeaders(src http.Header) {
	for name, values := range src {
		if strings.EqualFold(name, "Transfer-Encoding") {
			continue
		}
		for _, v := range values {
			resp.Header.Add(name, v)
		}
	}
}

// SetHeader sets a single header value, silently refusing Transfer-Encoding.
func (resp *Response) SetHeader(name, value string) {
	if strings.EqualFold(name, "Transfer-Encoding") {
		return
	}
	resp.Header.Set(name, value)
}

// AppendBody appends one body chunk.
func (resp *Response) AppendBody(chunk []byte) {
	resp.Body = append(resp.Body, chunk)
}

// SetBodyString replaces the body with a single chunk.
func (resp *Response) SetBodyString(body string) {
	resp.Body = [][]byte{[]byte(body)}
}

// BodyBytes joins all body chunks into one byte slice.
func (resp *Response) BodyBytes() []byte {
	switch len(resp.Body) {
	case 0:
		return nil
	case 1:
		return resp.Body[0]
	}
	total := 0
	for _, chunk := range resp.Body {
		total += len(chunk)
	}
	joined := make([]byte, 0, total)
	for _, chunk := range resp.Body {
		joined = append(joined, chunk...)
	}
	return joined
}

// ContentLength returns the total buffered body size.
func (resp *Response) ContentLength() int {
	total := 0
	for _, chunk := range resp.Body {
		total += len(chunk)
	}
	return total
}

// WriteTo writes the response to a standard ResponseWriter.
func (resp *Response) WriteTo(w http.ResponseWriter) error {
	header := w.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			header.Add(name, v)
		}
	}
	header.Set("Content-Length", strconv.Itoa(resp.ContentLength()))
	w.WriteHeader(resp.StatusCode)
	for _, chunk := range resp.Body {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}
