package gate

import (
	"net/http"
)

// Response is the header-only response produced alongside session
// resolution. It carries status and cookies; bodies are written by whichever
// handler ends up serving the request.
type Response struct {
	Status int
	Header http.Header
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{Status: http.StatusOK, Header: make(http.Header)}
}

// NewRedirect returns a 302 response to location.
func NewRedirect(location string) *Response {
	resp := &Response{Status: http.StatusFound, Header: make(http.Header)}
	resp.Header.Set("Location", location)
	return resp
}

// SetCookie appends a Set-Cookie header. Invalid cookies are dropped.
func (r *Response) SetCookie(c *http.Cookie) {
	if v := c.String(); v != "" {
		r.Header.Add("Set-Cookie", v)
	}
}

// Cookies parses the response's Set-Cookie headers.
func (r *Response) Cookies() []*http.Cookie {
	if r == nil {
		return nil
	}
	return (&http.Response{Header: r.Header}).Cookies()
}

// TransferCookies copies every Set-Cookie header of src onto dst and returns
// dst. A nil dst is replaced by an empty response.
func TransferCookies(src, dst *Response) *Response {
	if dst == nil {
		dst = NewResponse()
	}
	if dst.Header == nil {
		dst.Header = make(http.Header)
	}
	if src == nil {
		return dst
	}
	for _, v := range src.Header.Values("Set-Cookie") {
		dst.Header.Add("Set-Cookie", v)
	}
	return dst
}

// writeHeaders merges the response headers into w without writing a status.
func (r *Response) writeHeaders(w http.ResponseWriter) {
	if r == nil {
		return
	}
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
}

// writeTo sends the response as the final answer to the request.
func (r *Response) writeTo(w http.ResponseWriter) {
	r.writeHeaders(w)
	w.WriteHeader(r.Status)
}
