// Package etag implements the RFC 7232 conditional-response contract
// (C2) for derived snapshot endpoints: a deterministic hash of the
// response body, with 304 short-circuiting on a matching If-None-Match.
package etag

import (
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Compute returns the quoted, lowercase 32-hex ETag of the canonical
// JSON of body.
func Compute(body any) (string, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(canonical)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum)), nil
}

// canonicalJSON re-marshals through a generic map so struct field order
// doesn't leak into the hash input, and keys are sorted by
// encoding/json's own deterministic map-key ordering.
func canonicalJSON(body any) ([]byte, error) {
	interim, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(interim, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Respond computes the ETag for body, sets the standard caching
// headers, and either writes "304 Not Modified" (if the request's
// If-None-Match matches) or writes status with the JSON body.
func Respond(c *gin.Context, status int, body any) {
	tag, err := Compute(body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute etag", "statusCode": http.StatusInternalServerError})
		return
	}

	c.Header("ETag", tag)
	c.Header("Cache-Control", "max-age=30, must-revalidate")

	if status < 200 || status >= 300 {
		c.JSON(status, body)
		return
	}

	if match := c.GetHeader("If-None-Match"); match != "" && match == tag {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(status, body)
}
