package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/url"
)

// WriteConcernHeader carries the requested acknowledgement level on REST
// writes.
const WriteConcernHeader = "X-Write-Concern"

// REST talks to a REST-style document store:
//
//	GET    /ping
//	POST   /db/{db}/{collection}   insert one JSON document
//	DELETE /db/{db}/{collection}   drop every document
//	GET    /db/{db}/{collection}   NDJSON stream of documents
type REST struct {
	opts Options
}

// NewREST returns a REST adapter.
func NewREST(opts Options) *REST {
	return &REST{opts: opts.withDefaults()}
}

func (r *REST) Name() string { return "rest" }

func (r *REST) Connect(ctx context.Context, host string, port int) (Conn, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: r.opts.ConnectTimeout}).DialContext
	t.MaxIdleConnsPerHost = 1

	conn := &restConn{
		client:    &http.Client{Transport: t},
		transport: t,
		base:      "http://" + Addr(host, port),
		db:        r.opts.Database,
		wc:        r.opts.WriteConcern,
		user:      r.opts.Username,
		pass:      r.opts.Password,
	}

	pingCtx, cancel := context.WithTimeout(ctx, r.opts.ConnectTimeout)
	defer cancel()

	resp, err := conn.do(pingCtx, http.MethodGet, conn.base+"/ping", nil)
	if err != nil {
		t.CloseIdleConnections()
		return nil, connectError(host, port, err)
	}
	drain(resp)

	return conn, nil
}

type restConn struct {
	client    *http.Client
	transport *http.Transport
	base      string
	db        string
	wc        WriteConcern
	user      string
	pass      string
}

func (c *restConn) collectionURL(collection string) string {
	return fmt.Sprintf("%s/db/%s/%s", c.base, url.PathEscape(c.db), url.PathEscape(collection))
}

// do issues a request and turns non-2xx answers into errors.
func (c *restConn) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(WriteConcernHeader, string(c.wc))
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %s: %s",
			method, target, resp.Status, bytes.TrimSpace(msg))
	}
	return resp, nil
}

func (c *restConn) Write(ctx context.Context, collection string, doc Doc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return writeError(collection, err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.collectionURL(collection), body)
	if err != nil {
		return writeError(collection, err)
	}
	drain(resp)
	return nil
}

func (c *restConn) Clear(ctx context.Context, collection string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.collectionURL(collection), nil)
	if err != nil {
		return writeError(collection, err)
	}
	drain(resp)
	return nil
}

func (c *restConn) Scan(ctx context.Context, collection string) iter.Seq2[Doc, error] {
	return func(yield func(Doc, error) bool) {
		resp, err := c.do(ctx, http.MethodGet, c.collectionURL(collection), nil)
		if err != nil {
			yield(nil, err)
			return
		}
		defer drain(resp)

		dec := json.NewDecoder(resp.Body)
		for dec.More() {
			var doc Doc
			if err := dec.Decode(&doc); err != nil {
				yield(nil, fmt.Errorf("decode %s: %w", collection, err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (c *restConn) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
